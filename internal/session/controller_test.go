package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/content"
	"codedojo/internal/diff"
	"codedojo/internal/grading"
	"codedojo/internal/hints"
	"codedojo/internal/state"
)

const (
	passingStream = "data: {\"testCase\":1,\"status\":\"success\",\"message\":\"ok\"}\n\n" +
		"data: {\"testCase\":2,\"status\":\"success\",\"message\":\"ok\"}\n\n"
	failingStream = "data: {\"testCase\":1,\"status\":\"success\",\"message\":\"ok\"}\n\n" +
		"data: {\"testCase\":2,\"status\":\"failure\",\"message\":\"expected 6\"}\n\n"
)

type fakeBackend struct {
	mu          sync.Mutex
	stream      string
	runErr      error
	runGate     chan struct{}
	runStarted  chan struct{}
	openBody    func(ctx context.Context) io.ReadCloser
	code        backend.CodeResponse
	codeErr     error
	explain     backend.Explanation
	explainErr  error
	retire      backend.RetireExplanation
	retireErr   error
	hints       []backend.HintCandidate
	hintCalls   int
	lastCode    backend.CodeRequest
	lastExplain backend.ExplanationRequest
	lastRetire  backend.ExplanationRequest
	lastHint    backend.HintRequest
}

func (f *fakeBackend) RunTests(ctx context.Context, code string, cases []catalog.TestCase) (io.ReadCloser, error) {
	f.mu.Lock()
	gate, started := f.runGate, f.runStarted
	body, err := f.stream, f.runErr
	open := f.openBody
	f.mu.Unlock()
	if open != nil {
		return open(ctx), nil
	}
	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBackend) GenerateCode(ctx context.Context, in backend.CodeRequest) (backend.CodeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCode = in
	return f.code, f.codeErr
}

func (f *fakeBackend) Explain(ctx context.Context, in backend.ExplanationRequest) (backend.Explanation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastExplain = in
	return f.explain, f.explainErr
}

func (f *fakeBackend) ExplainRetire(ctx context.Context, in backend.ExplanationRequest) (backend.RetireExplanation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRetire = in
	return f.retire, f.retireErr
}

func (f *fakeBackend) GenerateHints(ctx context.Context, in backend.HintRequest) ([]backend.HintCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hintCalls++
	f.lastHint = in
	return f.hints, nil
}

type fakeHistory struct {
	mu        sync.Mutex
	runs      []state.ChallengeRun
	attempts  []state.Attempt
	submitted int
	retired   int
	progress  []state.ProgressUpdate
}

func (h *fakeHistory) StartRun(_ context.Context, run state.ChallengeRun) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return int64(len(h.runs)), nil
}

func (h *fakeHistory) RecordAttempt(_ context.Context, _ int64, a state.Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, a)
	return nil
}

func (h *fakeHistory) MarkSubmitted(context.Context, int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.submitted++
	return nil
}

func (h *fakeHistory) MarkRetired(context.Context, int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retired++
	return nil
}

func (h *fakeHistory) UpsertProgress(_ context.Context, u state.ProgressUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = append(h.progress, u)
	return nil
}

func sumChallenge() catalog.Challenge {
	return catalog.Challenge{
		ID:           "sum-to-n",
		Title:        "Sum to N",
		Instructions: "Return the sum of 1..n.",
		Examples:     "main(3) -> 6",
		TestCases:    []catalog.TestCase{{Input: []any{3}, Expected: 6}, {Input: []any{1}, Expected: 1}},
		StarterCode:  "def main(n):\n    pass\n",
	}
}

type fixture struct {
	be      *fakeBackend
	history *fakeHistory
	kv      *state.MemoryKV
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	be := &fakeBackend{
		stream: passingStream,
		hints: []backend.HintCandidate{
			{Level: 1, Content: "think about range"},
			{Level: 2, Content: "range(1, n+1)"},
		},
	}
	kv := state.NewMemoryKV()
	history := &fakeHistory{}
	ctrl := New(Config{
		Backend:    be,
		Hints:      hints.NewEngine(be, kv),
		History:    history,
		SessionID:  "s1",
		Difficulty: "やさしい",
	})
	return &fixture{be: be, history: history, kv: kv, ctrl: ctrl}
}

func TestEnterResetsAndSeedsHintsWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.kv.Set(ctx, hints.StorageKey("sum-to-n"), `{"unlockedLevel":2,"hints":[{"level":1,"content":"a"},{"level":2,"content":"b"}]}`))

	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	snap := f.ctrl.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, UnderstandProblem, snap.Stage)
	assert.Equal(t, "def main(n):\n    pass\n", snap.Code)
	assert.Empty(t, snap.Results)
	assert.Equal(t, 2, snap.Hints.UnlockedLevel)
	assert.Equal(t, int64(1), snap.RunID)

	require.NoError(t, f.ctrl.OpenHints(ctx))
	assert.Equal(t, 0, f.be.hintCalls)
	assert.True(t, f.ctrl.Snapshot().HintOpen)
	require.Len(t, f.history.runs, 1)
	assert.Equal(t, "やさしい", f.history.runs[0].Difficulty)
}

func TestOpenHintsSendsSessionContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	require.NoError(t, f.ctrl.OpenHints(ctx))
	assert.Equal(t, 1, f.be.hintCalls)
	assert.Equal(t, "Return the sum of 1..n.", f.be.lastHint.Instructions)
	assert.NotNil(t, f.be.lastHint.TestResults)

	require.NoError(t, f.ctrl.OpenHints(ctx))
	assert.Equal(t, 1, f.be.hintCalls)

	require.NoError(t, f.ctrl.RegenerateHints(ctx))
	assert.Equal(t, 2, f.be.hintCalls)
}

func TestGenerateCodeMovesToWriteCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.code = backend.CodeResponse{Code: "def main(n):\n    return 0\n", Explanation: "buggy on purpose"}
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	require.NoError(t, f.ctrl.GenerateCode(ctx))
	snap := f.ctrl.Snapshot()
	assert.Equal(t, WriteCode, snap.Stage)
	assert.Equal(t, f.be.code.Code, snap.Code)
	assert.Equal(t, f.be.code.Code, snap.AIGeneratedCode)
	assert.Equal(t, "buggy on purpose", snap.GeneratedNotes)
	assert.Equal(t, "Return the sum of 1..n.", f.be.lastCode.Challenge)
	assert.Equal(t, "やさしい", f.be.lastCode.Difficulty)
	assert.Len(t, f.be.lastCode.TestCases, 2)
}

func TestGenerateCodeFailureKeepsStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	f.be.code = backend.CodeResponse{}
	err := f.ctrl.GenerateCode(ctx)
	assert.ErrorIs(t, err, ErrEmptyGeneration)
	assert.Equal(t, UnderstandProblem, f.ctrl.Snapshot().Stage)

	f.be.codeErr = &backend.Error{Kind: backend.RemoteFailure, Op: "generate code", Message: "quota"}
	err = f.ctrl.GenerateCode(ctx)
	assert.Equal(t, "quota", backend.UserMessage(err))
	assert.False(t, f.ctrl.Snapshot().Generating)
}

func TestRunTestsStreamsInOrderAndEnablesSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	var seen []int
	report, err := f.ctrl.RunTests(ctx, func(r grading.TestResult) { seen = append(seen, r.TestCase) })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, 2, report.Summary.Passed)
	assert.True(t, f.ctrl.CanSubmit())

	snap := f.ctrl.Snapshot()
	assert.Equal(t, RunTests, snap.Stage)
	assert.False(t, snap.Running)
	assert.Empty(t, snap.LastFailingCode)
	require.Len(t, f.history.attempts, 1)
	assert.True(t, f.history.attempts[0].Passed)
	assert.Equal(t, 2, f.history.attempts[0].Succeeded)
}

func TestFailingRunBlocksSubmitAndRemembersCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.stream = failingStream
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	f.ctrl.SetCode("def main(n):\n    return n\n")

	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)
	assert.False(t, f.ctrl.CanSubmit())
	snap := f.ctrl.Snapshot()
	assert.Equal(t, "def main(n):\n    return n\n", snap.LastFailingCode)
	assert.Equal(t, 1, snap.FailedRuns)

	_, err = f.ctrl.Submit(ctx)
	assert.ErrorIs(t, err, ErrCannotSubmit)
	assert.Equal(t, RunTests, f.ctrl.Snapshot().Stage)
}

func TestRunOpenFailureYieldsSingleErrorResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.runErr = &backend.Error{Kind: backend.NetworkFailure, Op: "run tests", Message: "テストランナーに接続できませんでした。", Err: errors.New("refused")}
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	report, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, grading.StatusError, report.Results[0].Status)
	assert.Equal(t, "テストランナーに接続できませんでした。", report.Results[0].Message)
	assert.Error(t, report.Err)
	assert.False(t, f.ctrl.CanSubmit())
}

func TestRunClearsPreviousResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.stream = failingStream
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	f.be.stream = "data: {\"testCase\":1,\"status\":\"success\"}\n\n"
	report, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Len(t, f.ctrl.Snapshot().Results, 1)
}

func TestStageNeverMovesBackward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.code = backend.CodeResponse{Code: "x = 1"}
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, RunTests, f.ctrl.Snapshot().Stage)

	require.NoError(t, f.ctrl.GenerateCode(ctx))
	assert.Equal(t, RunTests, f.ctrl.Snapshot().Stage)

	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	assert.Equal(t, UnderstandProblem, f.ctrl.Snapshot().Stage)
}

func TestSubmitDiffsAgainstGeneratedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.code = backend.CodeResponse{Code: "a\nb\nc"}
	f.be.explain = backend.Explanation{Reason: "Use `range` here.", ExplainDiff: "```python\nprint(1)\n```"}
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	require.NoError(t, f.ctrl.GenerateCode(ctx))
	f.ctrl.SetCode("a\nx\nc")
	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	out, err := f.ctrl.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Submit, f.ctrl.Snapshot().Stage)
	require.Equal(t, diff.ModeDiff, out.Diff.Mode)
	var kinds []diff.Kind
	for _, op := range out.Diff.Ops {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []diff.Kind{diff.Unchanged, diff.Removed, diff.Added, diff.Unchanged}, kinds)
	assert.Equal(t, "a\nb\nc", f.be.lastExplain.BeforeCode)
	assert.Equal(t, "a\nx\nc", f.be.lastExplain.AfterCode)
	assert.Len(t, f.be.lastExplain.TestResults, 2)
	assert.NoError(t, out.ExplanationErr)

	require.NotEmpty(t, out.Reason)
	var inline bool
	for _, n := range out.Reason {
		inline = inline || n.Kind == content.InlineCode
	}
	assert.True(t, inline)
	require.Len(t, out.DiffNotes, 1)
	assert.Equal(t, content.CodeBlock, out.DiffNotes[0].Kind)

	assert.Equal(t, 1000, out.Score.TotalPoints)
	assert.Equal(t, 1, f.history.submitted)
	require.Len(t, f.history.progress, 1)
	assert.True(t, f.history.progress[0].Solved)
}

func TestSubmitWithoutBaselineSkipsDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	out, err := f.ctrl.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, diff.ModeNoBaseline, out.Diff.Mode)
	assert.Equal(t, "def main(n):\n    pass\n", out.Diff.After)
}

func TestSubmitBaselineFallsBackToLastFailing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	f.be.stream = failingStream
	f.ctrl.SetCode("broken")
	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	f.be.stream = passingStream
	f.ctrl.SetCode("fixed")
	_, err = f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	f.be.explainErr = &backend.Error{Kind: backend.RemoteFailure, Op: "generate explanation"}
	out, err := f.ctrl.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "broken", f.be.lastExplain.BeforeCode)
	assert.Equal(t, diff.ModeDiff, out.Diff.Mode)
	require.Error(t, out.ExplanationErr)
	assert.Equal(t, msgExplainFailed, backend.UserMessage(out.ExplanationErr))
	assert.Equal(t, 950, out.Score.TotalPoints)
}

func TestRetireGatedByStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.code = backend.CodeResponse{Code: "def main(n):\n    return 0\n"}
	f.be.retire = backend.RetireExplanation{AnswerCode: "def main(n):\n    return n * (n + 1) // 2\n", Explanation: "Gauss", Advice: "Check edges"}
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	_, err := f.ctrl.Retire(ctx)
	assert.ErrorIs(t, err, ErrRetireUnavailable)

	require.NoError(t, f.ctrl.GenerateCode(ctx))
	out, err := f.ctrl.Retire(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Markdown, "## 正解コード\n```python\ndef main(n):"))
	assert.Contains(t, out.Markdown, "\n\n## 解説\nGauss")
	assert.Contains(t, out.Markdown, "\n\n## アドバイス\nCheck edges")
	assert.Equal(t, diff.ModeDiff, out.Diff.Mode)
	assert.Equal(t, f.be.code.Code, f.be.lastRetire.BeforeCode)
	assert.Equal(t, 1, f.history.retired)
	assert.NotEmpty(t, out.Nodes)
}

func TestRetireWithoutContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.stream = failingStream
	require.NoError(t, f.ctrl.Enter(ctx, catalog.Challenge{ID: "blank"}))
	_, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	_, err = f.ctrl.Retire(ctx)
	assert.ErrorIs(t, err, ErrNoContext)
	assert.Equal(t, msgNoContext, backend.UserMessage(err))
	assert.Equal(t, 0, f.history.retired)
}

func TestRetireEmptyResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.be.code = backend.CodeResponse{Code: "x"}
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	require.NoError(t, f.ctrl.GenerateCode(ctx))

	_, err := f.ctrl.Retire(ctx)
	assert.ErrorIs(t, err, ErrEmptyExplanation)
	assert.Equal(t, msgRetireFailed, backend.UserMessage(err))
}

func TestRunCompletingAfterChallengeSwitchIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := make(chan struct{})
	started := make(chan struct{})
	f.be.runGate = gate
	f.be.runStarted = started
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.RunTests(ctx, nil)
		done <- err
	}()
	<-started

	f.be.mu.Lock()
	f.be.runGate = nil
	f.be.runStarted = nil
	f.be.mu.Unlock()
	other := sumChallenge()
	other.ID = "other"
	require.NoError(t, f.ctrl.Enter(ctx, other))
	close(gate)

	assert.ErrorIs(t, <-done, ErrStale)
	snap := f.ctrl.Snapshot()
	assert.Equal(t, "other", snap.Challenge.ID)
	assert.Empty(t, snap.Results)
	assert.Equal(t, UnderstandProblem, snap.Stage)
	assert.False(t, snap.Running)
}

func TestRunRejectedWhileInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := make(chan struct{})
	started := make(chan struct{})
	f.be.runGate = gate
	f.be.runStarted = started
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.RunTests(ctx, nil)
		done <- err
	}()
	<-started
	assert.True(t, f.ctrl.Snapshot().Running)
	_, err := f.ctrl.RunTests(ctx, nil)
	assert.ErrorIs(t, err, ErrRunInFlight)
	close(gate)
	assert.NoError(t, <-done)
}

func TestOperationsNeedActiveChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.ctrl.GenerateCode(ctx), ErrNoChallenge)
	_, err := f.ctrl.RunTests(ctx, nil)
	assert.ErrorIs(t, err, ErrNoChallenge)
	_, err = f.ctrl.Submit(ctx)
	assert.ErrorIs(t, err, ErrNoChallenge)
	assert.ErrorIs(t, f.ctrl.OpenHints(ctx), ErrNoChallenge)

	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))
	f.ctrl.Leave()
	assert.False(t, f.ctrl.Snapshot().Active)
	assert.False(t, f.ctrl.CanSubmit())
}

func TestRetireMarkdownSkipsBlankSections(t *testing.T) {
	assert.Equal(t, "", RetireMarkdown(backend.RetireExplanation{Advice: "  "}))
	assert.Equal(t, "## 解説\nonly", RetireMarkdown(backend.RetireExplanation{Explanation: " only "}))
}

func TestStageLabels(t *testing.T) {
	labels := make([]string, 0, len(Stages))
	for _, s := range Stages {
		labels = append(labels, s.Label())
	}
	assert.Equal(t, []string{"問題を理解", "コード作成", "テスト実行", "提出"}, labels)
	assert.Equal(t, "submit", Submit.String())
}

// heldBody sends one passing event, then blocks until release closes or ctx
// ends.
type heldBody struct {
	ctx     context.Context
	release chan struct{}
	sent    bool
}

func (b *heldBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, "data: {\"testCase\":1,\"status\":\"success\",\"message\":\"ok\"}\n\n"), nil
	}
	select {
	case <-b.release:
		return 0, io.EOF
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	}
}

func (b *heldBody) Close() error { return nil }

func TestInterruptedRunIsNotAPass(t *testing.T) {
	f := newFixture(t)
	f.be.openBody = func(ctx context.Context) io.ReadCloser {
		return &heldBody{ctx: ctx, release: make(chan struct{})}
	}
	require.NoError(t, f.ctrl.Enter(context.Background(), sumChallenge()))
	f.ctrl.SetCode("def main(n):\n    return n\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	report, err := f.ctrl.RunTests(ctx, nil)
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, grading.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, grading.StatusError, report.Results[1].Status)
	assert.ErrorIs(t, report.Err, context.DeadlineExceeded)

	snap := f.ctrl.Snapshot()
	assert.False(t, snap.CanSubmit)
	assert.False(t, f.ctrl.CanSubmit())
	assert.Equal(t, 1, snap.FailedRuns)
	assert.Equal(t, "def main(n):\n    return n\n", snap.LastFailingCode)
	require.Len(t, f.history.attempts, 1)
	assert.False(t, f.history.attempts[0].Passed)

	_, err = f.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, ErrCannotSubmit)
}

func TestSubmitRejectedWhileRunStreams(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.be.openBody = func(ctx context.Context) io.ReadCloser {
		return &heldBody{ctx: ctx, release: release}
	}
	ctx := context.Background()
	require.NoError(t, f.ctrl.Enter(ctx, sumChallenge()))

	first := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.RunTests(ctx, func(grading.TestResult) { once.Do(func() { close(first) }) })
		done <- err
	}()
	<-first

	snap := f.ctrl.Snapshot()
	assert.True(t, snap.Running)
	require.Len(t, snap.Results, 1)
	assert.False(t, snap.CanSubmit)
	assert.False(t, f.ctrl.CanSubmit())

	_, err := f.ctrl.Submit(ctx)
	assert.ErrorIs(t, err, ErrRunInFlight)
	assert.Equal(t, RunTests, f.ctrl.Snapshot().Stage)
	assert.Zero(t, f.history.submitted)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.ctrl.Snapshot().Running)
}
