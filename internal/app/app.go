package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/devtools"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/session"
	"codedojo/internal/state"
	"codedojo/internal/telemetry"
	"codedojo/internal/ui"
)

type App struct {
	cfg Config

	logger  *telemetry.Logger
	logFile *telemetry.Logger
	metrics *telemetry.Metrics
	backend Backend
	catalog catalog.Catalog
	store   *state.SQLiteStore
	kv      state.KV
	kvOwned bool
	hints   *hints.Engine
	session *session.Controller
	demo    *devtools.Manager

	view      ui.View
	sessionID string
	now       func() time.Time

	mu         sync.Mutex
	challenge  catalog.Challenge
	codePath   string
	watcher    *solutionWatcher
	startedAt  time.Time
	hintsOpen  bool
	explaining bool

	devMu    sync.Mutex
	devState DevState
	demoMu   sync.Mutex
	devStop  context.CancelFunc
	devDone  chan struct{}
}

func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	settings, serr := store.LoadSettings(context.Background())
	if serr == nil {
		cfg.ApplySettings(settings)
	}
	logger, err := telemetry.NewLogger(cfg.LogPath, cfg.Debug)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if serr != nil {
		logger.Warn("state.settings_failed", map[string]any{"err": serr})
	}
	metrics := telemetry.NewMetrics()
	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:       cfg.APIBaseURL,
		Timeout:       cfg.HTTPTimeout,
		RatePerSecond: cfg.RequestRate,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}
	view := ui.New(ui.Options{
		ASCIIOnly:    cfg.UI.ASCIIOnly,
		Debug:        cfg.Debug,
		StyleVariant: cfg.UI.StyleVariant,
		MotionLevel:  cfg.UI.MotionLevel,
	})
	a, err := newApp(cfg, store, client, view, logger, metrics)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}
	a.logFile = logger
	return a, nil
}

// OpenStore opens the progress database under dataDir and applies the
// schema.
func OpenStore(dataDir string) (*state.SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	store, err := state.NewSQLite(filepath.Join(dataDir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("prepare state: %w", err)
	}
	return store, nil
}

// newApp wires the controller. The store is owned by the returned App.
func newApp(cfg Config, store *state.SQLiteStore, be Backend, view ui.View, logger *telemetry.Logger, metrics *telemetry.Metrics) (*App, error) {
	kv, owned, err := state.OpenKV(cfg.KVBackend, cfg.DataDir, store)
	if err != nil {
		return nil, err
	}

	sources := make([]catalog.Catalog, 0, 2)
	if cfg.ChallengeDir != "" {
		if _, err := os.Stat(cfg.ChallengeDir); err == nil {
			sources = append(sources, catalog.NewDirCatalog(cfg.ChallengeDir))
		} else {
			logger.Warn("catalog.dir_missing", map[string]any{"dir": cfg.ChallengeDir})
		}
	}
	sources = append(sources, be)

	engine := hints.NewEngine(be, kv, hints.WithLogger(logger), hints.WithMetrics(metrics))
	sessionID := uuid.NewString()
	a := &App{
		cfg:     cfg,
		logger:  logger.With(map[string]any{"session": sessionID}),
		metrics: metrics,
		backend: be,
		catalog: catalog.NewMerged(sources...),
		store:   store,
		kv:      kv,
		kvOwned: owned,
		hints:   engine,
		session: session.New(session.Config{
			Backend:    be,
			Hints:      engine,
			History:    store,
			SessionID:  sessionID,
			Difficulty: cfg.Difficulty,
			Logger:     logger,
			Metrics:    metrics,
		}),
		demo:      devtools.NewManager(),
		view:      view,
		sessionID: sessionID,
		now:       time.Now,
	}
	view.SetController(a)
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("app.start", map[string]any{"api": a.backend.BaseURL(), "kv": a.cfg.KVBackend})

	hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.backend.Health(hctx)
	cancel()
	if err != nil {
		a.logger.Warn("backend.unreachable", map[string]any{"api": a.backend.BaseURL(), "err": err})
		a.view.SetSetupError("Backend unreachable at "+a.backend.BaseURL(), backend.UserMessage(err))
	}

	a.view.SetScreen(ui.ScreenChallenges)
	a.OnRefreshCatalog()

	if a.cfg.Dev {
		if err := a.startDevHTTP(ctx); err != nil {
			return err
		}
		if a.cfg.DemoScenario != "" {
			if _, err := a.runDemoScenario(ctx, a.cfg.DemoScenario); err != nil {
				a.logger.Error("dev.demo.initial_failed", map[string]any{"demo": a.cfg.DemoScenario, "err": err})
			}
		}
	}

	return a.view.Run()
}

func (a *App) Close() {
	if a.devStop != nil {
		a.devStop()
		<-a.devDone
	}
	a.stopWatcher()
	a.session.Leave()
	if a.kvOwned {
		_ = a.kv.Close()
	}
	_ = a.store.Close()
	_ = a.logFile.Close()
}

// OnOpenChallenge enters a challenge and writes its buffer to the solution
// file the editor works on.
func (a *App) OnOpenChallenge(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ch, err := a.catalog.Get(ctx, id)
	if err != nil {
		a.logger.Warn("ui.open_challenge_failed", map[string]any{"challenge": id, "err": err})
		a.view.FlashStatus("Could not open challenge: " + backend.UserMessage(err))
		return
	}
	if err := a.session.Enter(ctx, ch); err != nil {
		a.view.FlashStatus("Could not start session: " + backend.UserMessage(err))
		return
	}

	a.stopWatcher()
	path := a.solutionPath(ch.ID)
	a.mu.Lock()
	a.challenge = ch
	a.codePath = path
	a.startedAt = a.now()
	a.hintsOpen = false
	a.explaining = false
	a.mu.Unlock()

	if err := a.writeSolution(a.session.Snapshot().Code); err != nil {
		a.logger.Warn("session.write_solution_failed", map[string]any{"path": path, "err": err})
	}
	a.startWatcher(path)

	a.view.SetScreen(ui.ScreenSession)
	a.pushSession()
	a.pushHints()
	a.markState("session")
}

func (a *App) OnBackToList() {
	a.session.Leave()
	a.stopWatcher()
	a.mu.Lock()
	a.challenge = catalog.Challenge{}
	a.codePath = ""
	a.hintsOpen = false
	a.explaining = false
	a.mu.Unlock()
	a.view.SetScreen(ui.ScreenChallenges)
	a.OnRefreshCatalog()
	a.markState("challenges")
}

func (a *App) OnRefreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	items, err := a.catalog.List(ctx)
	if err != nil {
		a.logger.Warn("catalog.list_failed", map[string]any{"err": err})
		a.view.SetCatalog(ui.CatalogState{Source: a.catalogSource()})
		a.view.SetSetupError("Could not load challenges", backend.UserMessage(err))
		return
	}
	progress, err := a.store.GetProgressMap(ctx)
	if err != nil {
		a.logger.Warn("state.progress_failed", map[string]any{"err": err})
	}
	rows := challengeRows(items, progress, a.now())
	a.view.SetCatalog(ui.CatalogState{
		Items:  rows,
		Source: a.catalogSource(),
		Totals: catalogTotals(rows),
	})
}

func (a *App) OnOpenHints() {
	a.setHintsOpen(true)
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	if err := a.session.OpenHints(ctx); err != nil && !errors.Is(err, session.ErrStale) {
		a.view.FlashStatus(backend.UserMessage(err))
	}
	a.pushHints()
	a.pushSession()
	a.markState("hints_open")
}

func (a *App) OnCloseHints() {
	a.session.CloseHints()
	a.setHintsOpen(false)
	a.pushHints()
}

func (a *App) OnHintStep(delta int) {
	if _, err := a.session.StepHint(delta); err != nil {
		a.view.FlashStatus(backend.UserMessage(err))
	}
	a.pushHints()
}

func (a *App) OnMoreHint() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	adv, err := a.session.MoreHint(ctx)
	switch {
	case errors.Is(err, hints.ErrExhausted):
		a.view.FlashStatus("Every hint is already unlocked")
	case err != nil:
		a.view.FlashStatus(backend.UserMessage(err))
	case adv.NeedsConfirm:
		a.markState("confirm_final")
	}
	a.pushHints()
	a.pushSession()
}

func (a *App) OnConfirmFinalHint() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.session.ConfirmFinalHint(ctx); err != nil {
		a.view.FlashStatus(backend.UserMessage(err))
	}
	a.pushHints()
	a.pushSession()
}

func (a *App) OnCancelFinalHint() {
	err := a.session.CancelFinalHint()
	if kind, ok := backend.KindOf(err); ok && kind == backend.UserDeclined {
		a.view.FlashStatus("Final hint stays hidden")
	} else if err != nil {
		a.view.FlashStatus(backend.UserMessage(err))
	}
	a.pushHints()
}

func (a *App) OnRegenerateHints() {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	if err := a.session.RegenerateHints(ctx); err != nil && !errors.Is(err, session.ErrStale) {
		a.view.FlashStatus(backend.UserMessage(err))
	}
	a.pushHints()
	a.pushSession()
}

// OnEditCode flushes the buffer to the solution file and hands it to the
// configured editor.
func (a *App) OnEditCode() {
	path := a.currentPath()
	if path == "" {
		return
	}
	if err := a.writeSolution(a.session.Snapshot().Code); err != nil {
		a.view.FlashStatus("Could not write " + path + ": " + err.Error())
		return
	}
	a.view.OpenEditor(editorArgv(a.cfg.Editor, path))
}

func (a *App) OnEditorExited(err error) {
	if err != nil {
		a.logger.Warn("editor.exit", map[string]any{"err": err})
		a.view.FlashStatus("Editor exited: " + err.Error())
	}
	path := a.currentPath()
	if path == "" {
		return
	}
	body, rerr := os.ReadFile(path)
	if rerr != nil {
		a.view.FlashStatus("Could not read " + filepath.Base(path) + ": " + rerr.Error())
		return
	}
	a.loadEditedCode(string(body), "Loaded "+filepath.Base(path))
}

func (a *App) OnGenerateCode() {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	err := a.session.GenerateCode(ctx)
	if errors.Is(err, session.ErrStale) {
		return
	}
	if err != nil {
		a.view.FlashStatus(backend.UserMessage(err))
		a.pushSession()
		return
	}
	if werr := a.writeSolution(a.session.Snapshot().Code); werr != nil {
		a.logger.Warn("session.write_solution_failed", map[string]any{"err": werr})
	}
	a.pushSession()
	a.view.FlashStatus("Starter code generated")
}

// OnRunTests streams a run with no deadline of its own; a hung stream leaves
// the session in its running state.
func (a *App) OnRunTests() {
	report, err := a.session.RunTests(context.Background(), func(_ grading.TestResult) { a.pushSession() })
	switch {
	case errors.Is(err, session.ErrStale):
		return
	case errors.Is(err, session.ErrRunInFlight):
		a.view.FlashStatus("A test run is already in progress")
		return
	case err != nil:
		a.view.FlashStatus(backend.UserMessage(err))
		a.pushSession()
		return
	}
	a.pushSession()
	a.pushHints()
	if report.Err != nil {
		a.view.FlashStatus(backend.UserMessage(report.Err))
	} else {
		a.view.FlashStatus(report.Summary.String())
	}
	if report.Err == nil && grading.CanSubmit(report.Results) {
		a.markState("results_pass")
	} else {
		a.markState("results_fail")
	}
}

func (a *App) OnSubmit() {
	if a.session.Snapshot().Running {
		a.view.FlashStatus("Wait for the test run to finish before submitting")
		return
	}
	if !a.session.CanSubmit() {
		a.view.FlashStatus("Every test must pass before you can submit")
		return
	}
	a.setExplaining(true)
	a.pushSession()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	out, err := a.session.Submit(ctx)
	a.setExplaining(false)
	if errors.Is(err, session.ErrStale) {
		return
	}
	if err != nil {
		a.view.FlashStatus(backend.UserMessage(err))
		a.pushSession()
		return
	}
	a.view.SetExplanation(submitExplanation(out, a.session.Snapshot().Code))
	a.pushSession()
	a.markState("explanation")
}

func (a *App) OnRetire() {
	a.setExplaining(true)
	a.pushSession()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	out, err := a.session.Retire(ctx)
	a.setExplaining(false)
	if errors.Is(err, session.ErrStale) {
		return
	}
	if err != nil {
		a.view.FlashStatus(backend.UserMessage(err))
		a.pushSession()
		return
	}
	a.view.SetExplanation(retireExplanation(out))
	a.pushSession()
	a.markState("retire")
}

func (a *App) OnOpenStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := a.store.GetSummary(ctx)
	if err != nil {
		a.view.FlashStatus("Failed to load stats: " + err.Error())
		return
	}
	progress, err := a.store.GetProgressMap(ctx)
	if err != nil {
		a.logger.Warn("state.progress_failed", map[string]any{"err": err})
	}
	recent, err := a.store.RecentRuns(ctx, "", 8)
	if err != nil {
		a.logger.Warn("state.recent_runs_failed", map[string]any{"err": err})
	}
	a.view.SetStats(statsState(sum, progress, recent, a.now()))
	a.markState("stats")
}

func (a *App) OnQuit() {
	a.view.Stop()
}

func (a *App) pushSession() {
	snap := a.session.Snapshot()
	if !snap.Active {
		return
	}
	a.mu.Lock()
	path, started, explaining := a.codePath, a.startedAt, a.explaining
	a.mu.Unlock()
	a.view.SetSession(sessionState(snap, path, started, explaining))
}

func (a *App) pushHints() {
	a.mu.Lock()
	open := a.hintsOpen
	a.mu.Unlock()
	a.view.SetHints(hintsState(a.hints.Snapshot(), open))
}

func (a *App) loadEditedCode(code, notice string) {
	if !a.session.Snapshot().Active || code == a.session.Snapshot().Code {
		return
	}
	a.session.SetCode(code)
	a.pushSession()
	a.view.FlashStatus(notice)
}

func (a *App) startWatcher(path string) {
	if !a.cfg.Watch.Enabled {
		return
	}
	w, err := newSolutionWatcher(path, a.cfg.WatchDebounce(), a.logger, func(code string) {
		a.loadEditedCode(code, "Reloaded "+filepath.Base(path))
	})
	if err != nil {
		a.logger.Warn("watch.start_failed", map[string]any{"path": path, "err": err})
		return
	}
	w.Start(context.Background())
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
}

func (a *App) stopWatcher() {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()
	if w != nil {
		_ = w.Stop()
	}
}

func (a *App) writeSolution(code string) error {
	a.mu.Lock()
	path, w := a.codePath, a.watcher
	a.mu.Unlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if w != nil {
		w.Remember(code)
	}
	return os.WriteFile(path, []byte(code), 0o644)
}

func (a *App) solutionPath(challengeID string) string {
	return filepath.Join(a.cfg.DataDir, "work", challengeID, "solution.py")
}

func (a *App) currentPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.codePath
}

func (a *App) setHintsOpen(open bool) {
	a.mu.Lock()
	a.hintsOpen = open
	a.mu.Unlock()
}

func (a *App) setExplaining(v bool) {
	a.mu.Lock()
	a.explaining = v
	a.mu.Unlock()
}

func (a *App) catalogSource() string {
	parts := make([]string, 0, 2)
	if a.cfg.ChallengeDir != "" {
		parts = append(parts, a.cfg.ChallengeDir)
	}
	parts = append(parts, a.backend.BaseURL())
	return strings.Join(parts, " + ")
}

// editorArgv splits the editor setting so values such as "code --wait"
// work.
func editorArgv(editor, path string) []string {
	argv := strings.Fields(editor)
	if len(argv) == 0 {
		argv = []string{"vi"}
	}
	return append(argv, path)
}

var _ ui.Controller = (*App)(nil)
