package hints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"codedojo/internal/backend"
	"codedojo/internal/telemetry"
)

const (
	msgNoHints       = "ヒントが取得できませんでした。"
	msgTargetMissing = "指定レベルのヒントが取得できませんでした。"
	msgGenerate      = "ヒントの生成中にエラーが発生しました。"
	msgConnect       = "ヒント生成サービスへの接続に失敗しました。"
)

type Option func(*Engine)

func WithLogger(l *telemetry.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine owns the hint ladder and watermark for the active challenge and is
// the only writer of its persisted record.
type Engine struct {
	gen     Generator
	store   Store
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	flight  singleflight.Group

	mu          sync.Mutex
	challengeID string
	epoch       uint64
	state       State
	progress    Progress
	visible     int
	confirming  bool
	err         error
}

func NewEngine(gen Generator, store Store, opts ...Option) *Engine {
	e := &Engine{gen: gen, store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enter switches to a challenge and seeds state from storage. No network
// request is made.
func (e *Engine) Enter(ctx context.Context, challengeID string) error {
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.challengeID = challengeID
	e.state = Idle
	e.progress = Progress{}
	e.visible = 0
	e.confirming = false
	e.err = nil
	e.mu.Unlock()

	if challengeID == "" || e.store == nil {
		return nil
	}
	raw, ok, err := e.store.Get(ctx, StorageKey(challengeID))
	if err != nil {
		e.log.Warn("hints.restore_failed", map[string]any{"challenge": challengeID, "err": err})
		return fmt.Errorf("restore hint progress: %w", err)
	}
	if !ok {
		return nil
	}
	var rec Progress
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		e.log.Warn("hints.record_corrupt", map[string]any{"challenge": challengeID, "err": err})
		return nil
	}
	rec = sanitize(rec)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return ErrStale
	}
	e.progress = rec
	if len(rec.Hints) > 0 {
		e.state = Ready
	}
	e.log.Debug("hints.restored", map[string]any{
		"challenge": challengeID,
		"unlocked":  rec.UnlockedLevel,
		"count":     len(rec.Hints),
	})
	return nil
}

// Load fetches the ladder. A ladder that is already loaded is a cache hit
// unless opts.Force is set.
func (e *Engine) Load(ctx context.Context, in backend.HintRequest, opts LoadOptions) error {
	e.mu.Lock()
	id := e.challengeID
	if id == "" {
		e.mu.Unlock()
		return ErrNoChallenge
	}
	if e.gen == nil && (opts.Force || len(e.progress.Hints) == 0) {
		e.mu.Unlock()
		return ErrNoGenerator
	}
	if !opts.Force && len(e.progress.Hints) > 0 {
		e.state = Ready
		e.mu.Unlock()
		e.metrics.HintLoad("cache_hit")
		return nil
	}
	epoch := e.epoch
	e.state = Loading
	e.err = nil
	e.mu.Unlock()

	v, err, _ := e.flight.Do(id, func() (any, error) {
		return e.gen.GenerateHints(ctx, in)
	})
	var prepared []Hint
	if err == nil {
		cands, _ := v.([]backend.HintCandidate)
		prepared, err = Validate(cands)
		if err != nil {
			err = &backend.Error{Kind: backend.ValidationError, Op: "load hints", Message: msgNoHints, Err: err}
		}
	} else {
		err = loadError(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return ErrStale
	}
	if err != nil {
		return e.failLocked(err)
	}

	if opts.TargetLevel > 0 && len(e.progress.Hints) > 0 && !opts.ResetProgress {
		target, ok := find(prepared, opts.TargetLevel)
		if !ok {
			return e.failLocked(&backend.Error{Kind: backend.ValidationError, Op: "load hints", Message: msgTargetMissing, Err: ErrTargetMissing})
		}
		e.progress.Hints = replaceLevel(e.progress.Hints, target)
		if e.progress.UnlockedLevel < target.Level {
			e.progress.UnlockedLevel = target.Level
		}
		e.visible = target.Level
	} else {
		first := prepared[0].Level
		e.progress.Hints = prepared
		if opts.ResetProgress || e.progress.UnlockedLevel <= 0 {
			e.progress.UnlockedLevel = first
		}
		if opts.ResetProgress || e.visible == 0 {
			e.visible = first
		} else if _, ok := find(prepared, e.visible); !ok {
			e.visible = first
		}
	}
	e.state = Ready
	e.metrics.HintLoad("ok")
	e.log.Info("hints.loaded", map[string]any{
		"challenge": id,
		"count":     len(e.progress.Hints),
		"unlocked":  e.progress.UnlockedLevel,
		"forced":    opts.Force,
	})
	e.persistLocked(ctx)
	return nil
}

func (e *Engine) failLocked(err error) error {
	if len(e.progress.Hints) > 0 {
		e.state = Ready
	} else {
		e.state = Idle
	}
	e.err = err
	e.metrics.HintLoad("error")
	e.log.Warn("hints.load_failed", map[string]any{"challenge": e.challengeID, "err": err})
	return err
}

func loadError(err error) error {
	var be *backend.Error
	if errors.As(err, &be) {
		msg := be.Message
		switch {
		case be.Kind == backend.NetworkFailure:
			msg = msgConnect
		case msg == "":
			msg = msgGenerate
		}
		return &backend.Error{Kind: be.Kind, Op: "load hints", Message: msg, StatusCode: be.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &backend.Error{Kind: backend.NetworkFailure, Op: "load hints", Message: msgConnect, Err: err}
	}
	return &backend.Error{Kind: backend.NetworkFailure, Op: "load hints", Message: msgGenerate, Err: err}
}

// RequestMore unlocks the next level. The last level of a full ladder is not
// unlocked here; the caller has to Confirm or Cancel first.
func (e *Engine) RequestMore(ctx context.Context) (Advance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.progress.Hints) == 0 {
		return Advance{}, ErrNoHints
	}
	next := e.nextLocked()
	if next == 0 {
		return Advance{}, ErrExhausted
	}
	if next == e.highestLocked() && next >= LevelCount {
		e.confirming = true
		return Advance{Level: next, NeedsConfirm: true}, nil
	}
	e.unlockLocked(ctx, next)
	return Advance{Level: next}, nil
}

// Confirm grants the pending final level.
func (e *Engine) Confirm(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.confirming {
		return 0, ErrNotPending
	}
	e.confirming = false
	next := e.nextLocked()
	if next == 0 {
		return 0, ErrExhausted
	}
	e.unlockLocked(ctx, next)
	return next, nil
}

// Cancel drops the pending confirmation. The watermark is unchanged.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.confirming {
		return ErrNotPending
	}
	e.confirming = false
	return &backend.Error{Kind: backend.UserDeclined, Op: "unlock final hint", Err: ErrDeclined}
}

// Show selects an already unlocked level for display.
func (e *Engine) Show(level int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := find(e.progress.Hints, level); !ok || level > e.unlockedLocked() {
		return fmt.Errorf("show hint %d: %w", level, ErrLevelLocked)
	}
	e.visible = level
	return nil
}

// Step moves the visible level to the previous (-1) or next (+1) unlocked
// hint.
func (e *Engine) Step(delta int) (int, error) {
	e.mu.Lock()
	hs := e.progress.Hints
	cur := e.visibleLocked()
	unlocked := e.unlockedLocked()
	e.mu.Unlock()

	idx := -1
	for i, h := range hs {
		if h.Level == cur {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, ErrNoHints
	}
	j := idx + delta
	if j < 0 || j >= len(hs) || hs[j].Level > unlocked {
		return cur, nil
	}
	return hs[j].Level, e.Show(hs[j].Level)
}

// Reset clears the ladder and watermark, removes the persisted record, and
// regenerates from scratch.
func (e *Engine) Reset(ctx context.Context, in backend.HintRequest) error {
	e.mu.Lock()
	id := e.challengeID
	if id == "" {
		e.mu.Unlock()
		return ErrNoChallenge
	}
	e.progress = Progress{}
	e.visible = 0
	e.confirming = false
	e.state = Idle
	e.err = nil
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Delete(ctx, StorageKey(id)); err != nil {
			e.log.Warn("hints.clear_failed", map[string]any{"challenge": id, "err": err})
		}
	}
	return e.Load(ctx, in, LoadOptions{Force: true, ResetProgress: true})
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := make([]Hint, len(e.progress.Hints))
	copy(hs, e.progress.Hints)
	return Snapshot{
		ChallengeID:    e.challengeID,
		State:          e.state,
		Hints:          hs,
		UnlockedLevel:  e.unlockedLocked(),
		VisibleLevel:   e.visibleLocked(),
		NextLevel:      e.nextLocked(),
		HighestLevel:   e.highestLocked(),
		ConfirmPending: e.confirming,
		Err:            e.err,
	}
}

// Progress returns the raw record as persisted.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	hs := make([]Hint, len(e.progress.Hints))
	copy(hs, e.progress.Hints)
	return Progress{UnlockedLevel: e.progress.UnlockedLevel, Hints: hs}
}

func (e *Engine) unlockLocked(ctx context.Context, level int) {
	if level > e.progress.UnlockedLevel {
		e.progress.UnlockedLevel = level
	}
	e.visible = level
	e.metrics.HintUnlock(strconv.Itoa(level))
	e.log.Info("hints.unlocked", map[string]any{"challenge": e.challengeID, "level": level})
	e.persistLocked(ctx)
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.store == nil || e.challengeID == "" {
		return
	}
	hs := e.progress.Hints
	if hs == nil {
		hs = []Hint{}
	}
	raw, err := json.Marshal(Progress{UnlockedLevel: e.progress.UnlockedLevel, Hints: hs})
	if err != nil {
		e.log.Error("hints.persist_failed", map[string]any{"challenge": e.challengeID, "err": err})
		return
	}
	if err := e.store.Set(ctx, StorageKey(e.challengeID), string(raw)); err != nil {
		e.log.Warn("hints.persist_failed", map[string]any{"challenge": e.challengeID, "err": err})
	}
}

// unlockedLocked is the effective watermark: the lowest level when not yet
// initialised, capped at the highest loaded level.
func (e *Engine) unlockedLocked() int {
	hs := e.progress.Hints
	if len(hs) == 0 {
		return 0
	}
	if e.progress.UnlockedLevel <= 0 {
		return hs[0].Level
	}
	return min(e.progress.UnlockedLevel, e.highestLocked())
}

func (e *Engine) visibleLocked() int {
	if len(e.progress.Hints) == 0 {
		return 0
	}
	if e.visible > 0 {
		if _, ok := find(e.progress.Hints, e.visible); ok {
			return e.visible
		}
	}
	if _, ok := find(e.progress.Hints, e.unlockedLocked()); ok {
		return e.unlockedLocked()
	}
	return e.progress.Hints[0].Level
}

func (e *Engine) nextLocked() int {
	unlocked := e.unlockedLocked()
	for _, h := range e.progress.Hints {
		if h.Level > unlocked {
			return h.Level
		}
	}
	return 0
}

func (e *Engine) highestLocked() int {
	hs := e.progress.Hints
	if len(hs) == 0 {
		return LevelCount
	}
	return hs[len(hs)-1].Level
}

func find(hs []Hint, level int) (Hint, bool) {
	for _, h := range hs {
		if h.Level == level {
			return h, true
		}
	}
	return Hint{}, false
}

func replaceLevel(hs []Hint, h Hint) []Hint {
	out := make([]Hint, 0, len(hs)+1)
	for _, x := range hs {
		if x.Level != h.Level {
			out = append(out, x)
		}
	}
	out = append(out, h)
	for i := len(out) - 1; i > 0 && out[i].Level < out[i-1].Level; i-- {
		out[i], out[i-1] = out[i-1], out[i]
	}
	return out
}
