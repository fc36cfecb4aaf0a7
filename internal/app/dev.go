package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"codedojo/internal/catalog"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/session"
)

func (a *App) devRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/__dev/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.getDevState())
	})
	r.Post("/__dev/demo", func(w http.ResponseWriter, r *http.Request) {
		var req demoRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
			return
		}
		req.Demo = strings.TrimSpace(req.Demo)
		if req.Demo == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "demo is required"})
			return
		}
		a.logger.Info("dev.demo.request", map[string]any{"demo": req.Demo})

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		resolved, err := a.runDemoScenario(ctx, req.Demo)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "state": resolved})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": resolved, "requested": req.Demo})
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	return r
}

// startDevHTTP binds the dev listener and serves it until ctx ends or the
// app closes.
func (a *App) startDevHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.DevHTTP)
	if err != nil {
		return fmt.Errorf("listen dev http: %w", err)
	}
	srv := &http.Server{Handler: a.devRoutes(), ReadHeaderTimeout: 5 * time.Second}
	ctx, a.devStop = context.WithCancel(ctx)
	a.devDone = make(chan struct{})
	a.setDevState("challenges", a.cfg.DemoScenario)

	go func() {
		defer close(a.devDone)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ln) }()
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("dev_http.serve_failed", map[string]any{"addr": a.cfg.DevHTTP, "err": err})
			}
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
	}()
	a.logger.Info("dev_http.listening", map[string]any{"addr": ln.Addr().String()})
	return nil
}

func (a *App) runDemoScenario(ctx context.Context, requested string) (string, error) {
	resolved := a.demo.Resolve(requested).Name
	a.logger.Info("dev.demo.dispatch.begin", map[string]any{"requested": requested, "resolved": resolved})
	a.setDevPending(resolved, requested)

	a.demoMu.Lock()
	defer a.demoMu.Unlock()

	if err := a.applyDemoScenario(ctx, requested); err != nil {
		a.logger.Error("dev.demo.dispatch.apply_failed", map[string]any{"requested": requested, "resolved": resolved, "err": err})
		a.setDevError(resolved, requested, err.Error())
		_ = a.demo.SetState(ctx, a.devCacheDir(), resolved, false)
		return resolved, err
	}
	a.setDevState(resolved, requested)
	if err := a.demo.SetState(ctx, a.devCacheDir(), resolved, true); err != nil {
		a.logger.Error("dev_state.write_failed", map[string]any{"state": resolved, "err": err})
	}
	return resolved, nil
}

// applyDemoScenario drives the view into a fixed state without touching the
// network: results, hints and explanations are fabricated locally.
func (a *App) applyDemoScenario(ctx context.Context, scenario string) error {
	s := a.demo.Resolve(scenario)
	if !s.Session {
		a.OnBackToList()
		if s.StatsOpen {
			a.OnOpenStats()
		}
		return nil
	}

	ch, err := a.ensureDemoChallenge(ctx)
	if err != nil {
		return err
	}
	snap := a.session.Snapshot()
	a.mu.Lock()
	path, started := a.codePath, a.startedAt
	a.mu.Unlock()
	st := sessionState(snap, path, started, false)

	if s.ResultPass != nil {
		results := a.demo.DemoResults(ch, *s.ResultPass)
		st.Stage = int(session.RunTests - session.UnderstandProblem)
		st.Results = resultRows(results)
		st.Summary = grading.Summarize(results).String()
		st.CanSubmit = grading.CanSubmit(results)
		st.CanRetire = true
		if !st.CanSubmit {
			st.FailedRuns = 1
		}
	}
	if s.Explanation {
		st.Stage = int(session.Submit - session.UnderstandProblem)
	}
	a.view.SetSession(st)

	if s.HintsOpen {
		a.setHintsOpen(true)
		a.view.SetHints(hintsState(demoHintSnapshot(ch.ID, a.demo.DemoHints(ch), s.ConfirmFinal), true))
	}
	if s.Explanation {
		out := a.demo.DemoSubmission(ch)
		a.view.SetExplanation(submitExplanation(out, out.Diff.After))
	}
	a.logger.Info("dev.demo.apply.ready", map[string]any{"requested": scenario, "resolved": s.Name})
	return nil
}

func (a *App) ensureDemoChallenge(ctx context.Context) (catalog.Challenge, error) {
	a.mu.Lock()
	ch := a.challenge
	a.mu.Unlock()
	if ch.ID != "" && a.session.Snapshot().Active {
		return ch, nil
	}
	items, err := a.catalog.List(ctx)
	if err != nil {
		return catalog.Challenge{}, err
	}
	if len(items) == 0 {
		return catalog.Challenge{}, errors.New("no challenges available for demo")
	}
	a.OnOpenChallenge(items[0].ID)
	a.mu.Lock()
	ch = a.challenge
	a.mu.Unlock()
	if ch.ID == "" {
		return catalog.Challenge{}, fmt.Errorf("could not open challenge %s", items[0].ID)
	}
	return ch, nil
}

// demoHintSnapshot unlocks the first level, or everything below the last
// level with the reveal confirmation pending.
func demoHintSnapshot(challengeID string, hs []hints.Hint, confirm bool) hints.Snapshot {
	snap := hints.Snapshot{ChallengeID: challengeID, State: hints.Ready, Hints: hs}
	if len(hs) == 0 {
		return snap
	}
	snap.UnlockedLevel = hs[0].Level
	snap.HighestLevel = hs[len(hs)-1].Level
	if confirm && len(hs) > 1 {
		snap.UnlockedLevel = hs[len(hs)-2].Level
		snap.ConfirmPending = true
	}
	snap.VisibleLevel = snap.UnlockedLevel
	for _, h := range hs {
		if h.Level > snap.UnlockedLevel {
			snap.NextLevel = h.Level
			break
		}
	}
	return snap
}

// markState records a UI state for dev tooling. Outside dev mode it only
// updates the in-memory report.
func (a *App) markState(state string) {
	a.setDevState(state, state)
	if !a.cfg.Dev {
		return
	}
	if err := a.demo.SetState(context.Background(), a.devCacheDir(), state, true); err != nil {
		a.logger.Error("dev_state.write_failed", map[string]any{"state": state, "err": err})
	}
}

func (a *App) devCacheDir() string {
	return filepath.Join(a.cfg.DataDir, "dev")
}

func (a *App) setDevState(state, demo string) {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	a.devState.State = state
	a.devState.Demo = demo
	a.devState.Rendered = true
	a.devState.Pending = false
	a.devState.Error = ""
	a.devState.RenderSeq++
}

func (a *App) setDevPending(state, demo string) {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	a.devState.State = state
	a.devState.Demo = demo
	a.devState.Rendered = false
	a.devState.Pending = true
	a.devState.Error = ""
	a.devState.RenderSeq++
}

func (a *App) setDevError(state, demo, errText string) {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	a.devState.State = state
	a.devState.Demo = demo
	a.devState.Rendered = false
	a.devState.Pending = false
	a.devState.Error = errText
	a.devState.RenderSeq++
}

func (a *App) getDevState() DevState {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	out := a.devState
	out.OK = true
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
