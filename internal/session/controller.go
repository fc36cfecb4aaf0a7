package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/content"
	"codedojo/internal/diff"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/state"
	"codedojo/internal/stream"
	"codedojo/internal/telemetry"
)

const (
	msgGenerateFailed = "コード生成中にエラーが発生しました。もう一度お試しください。"
	msgExplainFailed  = "詳細解説の生成に失敗しました"
	msgRetireFailed   = "解説の生成に失敗しました。"
	msgNoContext      = "解説に必要な情報が不足しています。"
)

type Config struct {
	Backend    Backend
	Hints      *hints.Engine
	History    History
	Consumer   *stream.Consumer
	SessionID  string
	Difficulty string
	Logger     *telemetry.Logger
	Metrics    *telemetry.Metrics
	Now        func() time.Time
}

// Controller drives one challenge session. Every asynchronous operation
// captures the liveness token at its start and drops its completion if the
// user has entered another challenge since.
type Controller struct {
	be       Backend
	hints    *hints.Engine
	history  History
	consumer *stream.Consumer
	session  string
	level    string
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	mu          sync.Mutex
	token       uint64
	challenge   catalog.Challenge
	active      bool
	stage       Stage
	code        string
	results     []grading.TestResult
	running     bool
	generating  bool
	hintOpen    bool
	aiCode      string
	lastFailing string
	genNotes    string
	failedRuns  int
	runID       int64
}

func New(cfg Config) *Controller {
	c := &Controller{
		be:       cfg.Backend,
		hints:    cfg.Hints,
		history:  cfg.History,
		consumer: cfg.Consumer,
		session:  cfg.SessionID,
		level:    cfg.Difficulty,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		stage:    UnderstandProblem,
	}
	if c.consumer == nil {
		c.consumer = stream.NewConsumer(stream.WithLogger(cfg.Logger), stream.WithMetrics(cfg.Metrics))
	}
	if c.hints == nil {
		gen, _ := cfg.Backend.(hints.Generator)
		c.hints = hints.NewEngine(gen, nil, hints.WithLogger(cfg.Logger), hints.WithMetrics(cfg.Metrics))
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Enter resets the session for ch. Persisted hint progress is restored
// before anything touches the network.
func (c *Controller) Enter(ctx context.Context, ch catalog.Challenge) error {
	c.mu.Lock()
	c.token++
	token := c.token
	c.challenge = ch
	c.active = true
	c.stage = UnderstandProblem
	c.code = ch.StarterCode
	c.results = nil
	c.running = false
	c.generating = false
	c.hintOpen = false
	c.aiCode = ""
	c.lastFailing = ""
	c.genNotes = ""
	c.failedRuns = 0
	c.runID = 0
	c.mu.Unlock()

	if err := c.hints.Enter(ctx, ch.ID); err != nil && !errors.Is(err, hints.ErrStale) {
		c.log.Warn("session.hints_restore_failed", map[string]any{"challenge": ch.ID, "err": err})
	}
	c.log.Info("session.enter", map[string]any{"challenge": ch.ID, "session": c.session})

	if c.history == nil {
		return nil
	}
	runID, err := c.history.StartRun(ctx, state.ChallengeRun{
		SessionID:   c.session,
		ChallengeID: ch.ID,
		Difficulty:  c.level,
		StartTS:     c.now(),
	})
	if err != nil {
		c.log.Warn("session.start_run_failed", map[string]any{"challenge": ch.ID, "err": err})
		return nil
	}
	c.mu.Lock()
	if c.token == token {
		c.runID = runID
	}
	c.mu.Unlock()
	return nil
}

// Leave deactivates the session. In-flight completions are dropped.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token++
	c.active = false
	c.running = false
	c.generating = false
	c.hintOpen = false
}

// SetCode replaces the editable buffer.
func (c *Controller) SetCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
}

// GenerateCode asks the backend for starter code. On success the buffer is
// replaced and the session moves to WriteCode.
func (c *Controller) GenerateCode(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNoChallenge
	}
	token := c.token
	ch := c.challenge
	c.generating = true
	c.mu.Unlock()

	resp, err := c.be.GenerateCode(ctx, backend.CodeRequest{
		Challenge:  ch.Instructions,
		Difficulty: c.level,
		TestCases:  ch.TestCases,
	})
	if err == nil && strings.TrimSpace(resp.Code) == "" {
		err = &backend.Error{Kind: backend.ProtocolError, Op: "generate code", Message: msgGenerateFailed, Err: ErrEmptyGeneration}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return ErrStale
	}
	c.generating = false
	if err != nil {
		c.log.Warn("session.generate_failed", map[string]any{"challenge": ch.ID, "err": err})
		return withMessage(err, msgGenerateFailed)
	}
	c.code = resp.Code
	c.aiCode = resp.Code
	c.genNotes = resp.Explanation
	c.stage = max(c.stage, WriteCode)
	c.log.Info("session.code_generated", map[string]any{"challenge": ch.ID, "bytes": len(resp.Code)})
	return nil
}

// RunTests streams a test run of the current buffer. onResult, if set, is
// called for each result as it arrives and after it has been recorded.
func (c *Controller) RunTests(ctx context.Context, onResult func(grading.TestResult)) (RunReport, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return RunReport{}, ErrNoChallenge
	}
	if c.running {
		c.mu.Unlock()
		return RunReport{}, ErrRunInFlight
	}
	token := c.token
	ch := c.challenge
	code := c.code
	runID := c.runID
	c.running = true
	c.stage = max(c.stage, RunTests)
	c.results = nil
	c.mu.Unlock()

	sink := func(r grading.TestResult) {
		c.mu.Lock()
		if c.token != token {
			c.mu.Unlock()
			return
		}
		c.results = append(c.results, r)
		c.mu.Unlock()
		if onResult != nil {
			onResult(r)
		}
	}

	var stats stream.Stats
	body, err := c.be.RunTests(ctx, code, ch.TestCases)
	if err != nil {
		c.log.Warn("session.run_open_failed", map[string]any{"challenge": ch.ID, "err": err})
		sink(grading.TestResult{TestCase: 1, Status: grading.StatusError, Message: backend.UserMessage(err)})
		stats.Err = err
	} else {
		stats = c.consumer.Consume(ctx, body, sink)
		_ = body.Close()
	}

	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		return RunReport{}, ErrStale
	}
	c.running = false
	results := append([]grading.TestResult(nil), c.results...)
	passed := stats.Err == nil && grading.CanSubmit(results)
	if !passed {
		c.lastFailing = code
		c.failedRuns++
	}
	c.mu.Unlock()

	sum := grading.Summarize(results)
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	c.metrics.TestRun(outcome)
	c.log.Info("session.run_finished", map[string]any{
		"challenge": ch.ID,
		"summary":   sum.String(),
		"dropped":   stats.Dropped,
	})
	if c.history != nil && runID != 0 {
		if herr := c.history.RecordAttempt(ctx, runID, state.Attempt{
			Passed:    passed,
			Total:     sum.Total,
			Succeeded: sum.Passed,
			At:        c.now(),
		}); herr != nil {
			c.log.Warn("session.record_attempt_failed", map[string]any{"challenge": ch.ID, "err": herr})
		}
	}
	return RunReport{Results: results, Summary: sum, Dropped: stats.Dropped, Err: stats.Err}, nil
}

// CanSubmit reports whether a finished run passed every case.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submittableLocked()
}

func (c *Controller) submittableLocked() bool {
	return c.active && !c.running && grading.CanSubmit(c.results)
}

// Submit accepts a fully passing run, moves to the Submit stage and asks for
// an explanation of the change against the last AI generated or failing
// snapshot.
func (c *Controller) Submit(ctx context.Context) (SubmitOutcome, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return SubmitOutcome{}, ErrNoChallenge
	}
	if c.running {
		c.mu.Unlock()
		return SubmitOutcome{}, ErrRunInFlight
	}
	if !grading.CanSubmit(c.results) {
		c.mu.Unlock()
		return SubmitOutcome{}, &backend.Error{Kind: backend.ValidationError, Op: "submit", Message: "すべてのテストに合格すると提出できます。", Err: ErrCannotSubmit}
	}
	token := c.token
	ch := c.challenge
	code := c.code
	results := append([]grading.TestResult(nil), c.results...)
	baseline := diff.Baseline(c.aiCode, c.lastFailing)
	failed := c.failedRuns
	runID := c.runID
	c.stage = Submit
	c.mu.Unlock()

	hs := c.hints.Snapshot()
	out := SubmitOutcome{
		Summary: grading.Summarize(results),
		Score:   grading.ComputeScore(grading.ScoreRequest{HintsUnlocked: hs.UnlockedLevel, FailedAttempts: failed}),
		Diff:    diff.NewView(baseline, code),
	}
	c.metrics.Outcome("submit")
	c.log.Info("session.submitted", map[string]any{"challenge": ch.ID, "score": out.Score.TotalPoints})
	if c.history != nil && runID != 0 {
		if err := c.history.MarkSubmitted(ctx, runID); err != nil {
			c.log.Warn("session.mark_submitted_failed", map[string]any{"err": err})
		}
		if err := c.history.UpsertProgress(ctx, state.ProgressUpdate{
			ChallengeID:  ch.ID,
			Solved:       true,
			Score:        out.Score.TotalPoints,
			Attempts:     failed + 1,
			LastPlayedTS: c.now(),
		}); err != nil {
			c.log.Warn("session.progress_failed", map[string]any{"err": err})
		}
	}

	exp, err := c.be.Explain(ctx, explanationRequest(ch, baseline, code, results))
	if c.stale(token) {
		return SubmitOutcome{}, ErrStale
	}
	if err != nil {
		out.ExplanationErr = withMessage(err, msgExplainFailed)
		c.log.Warn("session.explain_failed", map[string]any{"challenge": ch.ID, "err": err})
		return out, nil
	}
	out.Explanation = exp
	out.Reason = content.Parse(exp.Reason)
	out.DiffNotes = content.Parse(exp.ExplainDiff)
	return out, nil
}

// Retire gives up on the challenge and fetches the reference answer with an
// explanation. It does not need passing tests.
func (c *Controller) Retire(ctx context.Context) (RetireOutcome, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return RetireOutcome{}, ErrNoChallenge
	}
	if c.stage < WriteCode {
		c.mu.Unlock()
		return RetireOutcome{}, ErrRetireUnavailable
	}
	token := c.token
	ch := c.challenge
	code := c.code
	results := append([]grading.TestResult(nil), c.results...)
	baseline := diff.Baseline(c.aiCode, c.lastFailing)
	aiCode, lastFailing := c.aiCode, c.lastFailing
	runID := c.runID
	c.mu.Unlock()

	if !hasContext(ch.Instructions, ch.Examples, aiCode, lastFailing, code) {
		return RetireOutcome{}, &backend.Error{Kind: backend.ValidationError, Op: "retire", Message: msgNoContext, Err: ErrNoContext}
	}

	c.metrics.Outcome("retire")
	c.log.Info("session.retired", map[string]any{"challenge": ch.ID})
	if c.history != nil && runID != 0 {
		if err := c.history.MarkRetired(ctx, runID); err != nil {
			c.log.Warn("session.mark_retired_failed", map[string]any{"err": err})
		}
		if err := c.history.UpsertProgress(ctx, state.ProgressUpdate{ChallengeID: ch.ID, Retired: true, LastPlayedTS: c.now()}); err != nil {
			c.log.Warn("session.progress_failed", map[string]any{"err": err})
		}
	}

	raw, err := c.be.ExplainRetire(ctx, explanationRequest(ch, baseline, code, results))
	if c.stale(token) {
		return RetireOutcome{}, ErrStale
	}
	if err != nil {
		return RetireOutcome{}, withMessage(err, msgRetireFailed)
	}
	md := RetireMarkdown(raw)
	if md == "" {
		return RetireOutcome{}, &backend.Error{Kind: backend.ProtocolError, Op: "retire", Message: msgRetireFailed, Err: ErrEmptyExplanation}
	}
	return RetireOutcome{
		Raw:      raw,
		Markdown: md,
		Nodes:    content.Parse(md),
		Diff:     diff.NewView(code, strings.TrimSpace(raw.AnswerCode)),
	}, nil
}

// RetireMarkdown assembles the answer, explanation and advice sections that
// are present.
func RetireMarkdown(r backend.RetireExplanation) string {
	var parts []string
	if s := strings.TrimSpace(r.AnswerCode); s != "" {
		parts = append(parts, "## 正解コード\n```python\n"+s+"\n```")
	}
	if s := strings.TrimSpace(r.Explanation); s != "" {
		parts = append(parts, "## 解説\n"+s)
	}
	if s := strings.TrimSpace(r.Advice); s != "" {
		parts = append(parts, "## アドバイス\n"+s)
	}
	return strings.Join(parts, "\n\n")
}

// OpenHints loads the ladder if needed and marks the hint panel open.
func (c *Controller) OpenHints(ctx context.Context) error {
	token, in, err := c.hintRequest()
	if err != nil {
		return err
	}
	if err := c.hints.Load(ctx, in, hints.LoadOptions{}); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return ErrStale
	}
	c.hintOpen = true
	return nil
}

func (c *Controller) CloseHints() {
	c.mu.Lock()
	c.hintOpen = false
	c.mu.Unlock()
	_ = c.hints.Cancel()
}

func (c *Controller) MoreHint(ctx context.Context) (hints.Advance, error) {
	return c.hints.RequestMore(ctx)
}

func (c *Controller) ConfirmFinalHint(ctx context.Context) (int, error) {
	return c.hints.Confirm(ctx)
}

func (c *Controller) CancelFinalHint() error {
	return c.hints.Cancel()
}

func (c *Controller) StepHint(delta int) (int, error) {
	return c.hints.Step(delta)
}

// RegenerateHints discards the ladder and watermark and loads a fresh one.
func (c *Controller) RegenerateHints(ctx context.Context) error {
	token, in, err := c.hintRequest()
	if err != nil {
		return err
	}
	if err := c.hints.Reset(ctx, in); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return ErrStale
	}
	c.hintOpen = true
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	out := Snapshot{
		Challenge:       c.challenge,
		Active:          c.active,
		Stage:           c.stage,
		Code:            c.code,
		Results:         append([]grading.TestResult(nil), c.results...),
		Summary:         grading.Summarize(c.results),
		CanSubmit:       c.submittableLocked(),
		Running:         c.running,
		Generating:      c.generating,
		HintOpen:        c.hintOpen,
		AIGeneratedCode: c.aiCode,
		LastFailingCode: c.lastFailing,
		GeneratedNotes:  c.genNotes,
		FailedRuns:      c.failedRuns,
		RunID:           c.runID,
	}
	c.mu.Unlock()
	out.Hints = c.hints.Snapshot()
	return out
}

func (c *Controller) hintRequest() (uint64, backend.HintRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return 0, backend.HintRequest{}, ErrNoChallenge
	}
	results := make([]grading.TestResult, len(c.results))
	copy(results, c.results)
	return c.token, backend.HintRequest{
		Code:         c.code,
		Instructions: c.challenge.Instructions,
		Examples:     c.challenge.Examples,
		TestResults:  results,
	}, nil
}

func (c *Controller) stale(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != token
}

func explanationRequest(ch catalog.Challenge, before, after string, results []grading.TestResult) backend.ExplanationRequest {
	if results == nil {
		results = []grading.TestResult{}
	}
	return backend.ExplanationRequest{
		BeforeCode:   before,
		AfterCode:    after,
		Instructions: ch.Instructions,
		Examples:     ch.Examples,
		TestResults:  results,
	}
}

func hasContext(items ...string) bool {
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// withMessage gives err a user-facing message when it has none.
func withMessage(err error, msg string) error {
	var be *backend.Error
	if errors.As(err, &be) {
		if be.Message != "" {
			return err
		}
		return &backend.Error{Kind: be.Kind, Op: be.Op, Message: msg, StatusCode: be.StatusCode, Err: be.Err}
	}
	return &backend.Error{Kind: backend.NetworkFailure, Op: "session", Message: msg, Err: err}
}
