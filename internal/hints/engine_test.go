package hints

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codedojo/internal/backend"
)

type mapStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMapStore() *mapStore { return &mapStore{m: map[string]string{}} }

func (s *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *mapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *mapStore) record(t *testing.T, id string) (Progress, bool) {
	t.Helper()
	raw, ok, _ := s.Get(context.Background(), StorageKey(id))
	if !ok {
		return Progress{}, false
	}
	var p Progress
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p, true
}

type fakeGen struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, in backend.HintRequest) ([]backend.HintCandidate, error)
}

func (g *fakeGen) GenerateHints(ctx context.Context, in backend.HintRequest) ([]backend.HintCandidate, error) {
	g.mu.Lock()
	g.calls++
	fn := g.fn
	g.mu.Unlock()
	return fn(ctx, in)
}

func (g *fakeGen) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func ladder(levels ...int) func(context.Context, backend.HintRequest) ([]backend.HintCandidate, error) {
	return func(context.Context, backend.HintRequest) ([]backend.HintCandidate, error) {
		out := make([]backend.HintCandidate, 0, len(levels))
		for _, l := range levels {
			out = append(out, backend.HintCandidate{Level: backend.Level(l), Content: "hint " + string(rune('0'+l))})
		}
		return out, nil
	}
}

func decodeCandidates(t *testing.T, raw string) []backend.HintCandidate {
	t.Helper()
	var out []backend.HintCandidate
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestValidateDropsInvalidEntries(t *testing.T) {
	cands := decodeCandidates(t, `[
		{"level":1,"content":"x"},
		{"level":1,"content":"y"},
		{"level":9,"content":"z"},
		{"level":"bad","content":"w"}
	]`)

	got, err := Validate(cands)
	require.NoError(t, err)
	assert.Equal(t, []Hint{{Level: 1, Content: "x"}}, got)
}

func TestValidateNormalisesAndSorts(t *testing.T) {
	cands := decodeCandidates(t, `[
		{"level":3,"title":"  third  ","content":" c "},
		{"level":2,"content":"   "},
		{"level":"2","title":"   ","content":"b"},
		{"level":1.5,"content":"half"},
		{"level":0,"content":"zero"},
		{"level":1,"content":"a"}
	]`)

	got, err := Validate(cands)
	require.NoError(t, err)
	assert.Equal(t, []Hint{
		{Level: 1, Content: "a"},
		{Level: 2, Content: "b"},
		{Level: 3, Title: "third", Content: "c"},
	}, got)
}

func TestValidateEmpty(t *testing.T) {
	_, err := Validate(decodeCandidates(t, `[{"level":5,"content":"x"},{"level":"nope","content":"y"}]`))
	assert.ErrorIs(t, err, ErrNoHints)

	_, err = Validate(nil)
	assert.ErrorIs(t, err, ErrNoHints)
}

func TestLoadInitialisesWatermarkAndPersists(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	gen := &fakeGen{fn: ladder(2, 1, 3, 4)}
	e := NewEngine(gen, store)

	require.NoError(t, e.Enter(ctx, "sum-to-n"))
	assert.Equal(t, Idle, e.Snapshot().State)
	require.NoError(t, e.Load(ctx, backend.HintRequest{Code: "x"}, LoadOptions{}))

	snap := e.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, 1, snap.UnlockedLevel)
	assert.Equal(t, 1, snap.VisibleLevel)
	assert.Equal(t, 2, snap.NextLevel)
	assert.Equal(t, 4, snap.HighestLevel)
	require.Len(t, snap.Hints, 4)
	assert.Equal(t, 1, snap.Hints[0].Level)

	rec, ok := store.record(t, "sum-to-n")
	require.True(t, ok)
	assert.Equal(t, 1, rec.UnlockedLevel)
	assert.Len(t, rec.Hints, 4)
}

func TestLoadIsCacheHitOnceReady(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{fn: ladder(1, 2, 3, 4)}
	e := NewEngine(gen, newMapStore())
	require.NoError(t, e.Enter(ctx, "c"))

	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))
	assert.Equal(t, 1, gen.count())

	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{Force: true}))
	assert.Equal(t, 2, gen.count())
}

func TestWatermarkMonotonicWithFinalGate(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	e := NewEngine(&fakeGen{fn: ladder(1, 2, 3, 4)}, store)
	require.NoError(t, e.Enter(ctx, "c"))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))

	prev := e.Snapshot().UnlockedLevel
	for _, want := range []int{2, 3} {
		adv, err := e.RequestMore(ctx)
		require.NoError(t, err)
		assert.Equal(t, Advance{Level: want}, adv)
		cur := e.Snapshot().UnlockedLevel
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}

	adv, err := e.RequestMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Advance{Level: 4, NeedsConfirm: true}, adv)
	assert.Equal(t, 3, e.Snapshot().UnlockedLevel)
	assert.True(t, e.Snapshot().ConfirmPending)

	err = e.Cancel()
	assert.ErrorIs(t, err, ErrDeclined)
	kind, ok := backend.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, backend.UserDeclined, kind)
	assert.Equal(t, 3, e.Snapshot().UnlockedLevel)
	assert.False(t, e.Snapshot().ConfirmPending)

	_, err = e.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = e.RequestMore(ctx)
	require.NoError(t, err)
	level, err := e.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, level)

	snap := e.Snapshot()
	assert.Equal(t, 4, snap.UnlockedLevel)
	assert.Equal(t, 4, snap.VisibleLevel)
	assert.Equal(t, 0, snap.NextLevel)

	_, err = e.RequestMore(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	rec, _ := store.record(t, "c")
	assert.Equal(t, 4, rec.UnlockedLevel)
}

func TestShortLadderHasNoFinalGate(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&fakeGen{fn: ladder(1, 2)}, newMapStore())
	require.NoError(t, e.Enter(ctx, "c"))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))

	adv, err := e.RequestMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, Advance{Level: 2}, adv)
	assert.Equal(t, 2, e.Snapshot().UnlockedLevel)
}

func TestEnterSeedsFromStoreWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	require.NoError(t, store.Set(ctx, StorageKey("c"), `{"unlockedLevel":2,"hints":[
		{"level":1,"content":"a"},{"level":2,"title":"Hint 2: keys","content":"b"},{"level":3,"content":"c"}
	]}`))
	gen := &fakeGen{fn: ladder(1, 2, 3, 4)}
	e := NewEngine(gen, store)

	require.NoError(t, e.Enter(ctx, "c"))
	snap := e.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, 2, snap.UnlockedLevel)
	assert.Equal(t, 2, snap.VisibleLevel)
	active, ok := snap.Active()
	require.True(t, ok)
	assert.Equal(t, "keys", DisplayTitle(active))
	assert.Len(t, snap.Unlocked(), 2)

	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))
	assert.Equal(t, 0, gen.count())
}

func TestEnterIgnoresCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	require.NoError(t, store.Set(ctx, StorageKey("c"), `{not json`))
	e := NewEngine(&fakeGen{fn: ladder(1)}, store)

	require.NoError(t, e.Enter(ctx, "c"))
	assert.Equal(t, Idle, e.Snapshot().State)
	assert.Empty(t, e.Snapshot().Hints)
}

func TestFailedLoadLeavesProgressUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	gen := &fakeGen{fn: ladder(1, 2, 3, 4)}
	e := NewEngine(gen, store)
	require.NoError(t, e.Enter(ctx, "c"))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))
	_, err := e.RequestMore(ctx)
	require.NoError(t, err)
	before, _ := store.record(t, "c")

	gen.fn = func(context.Context, backend.HintRequest) ([]backend.HintCandidate, error) {
		return nil, &backend.Error{Kind: backend.NetworkFailure, Op: "generate hints", Err: errors.New("dial tcp: refused")}
	}
	err = e.Load(ctx, backend.HintRequest{}, LoadOptions{Force: true})
	require.Error(t, err)
	kind, _ := backend.KindOf(err)
	assert.Equal(t, backend.NetworkFailure, kind)
	assert.Equal(t, msgConnect, backend.UserMessage(err))

	snap := e.Snapshot()
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, 2, snap.UnlockedLevel)
	assert.Error(t, snap.Err)
	after, _ := store.record(t, "c")
	assert.Equal(t, before, after)
}

func TestInvalidResponseReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	e := NewEngine(&fakeGen{fn: ladder(7, 8)}, store)
	require.NoError(t, e.Enter(ctx, "c"))

	err := e.Load(ctx, backend.HintRequest{}, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoHints)
	kind, _ := backend.KindOf(err)
	assert.Equal(t, backend.ValidationError, kind)
	assert.Equal(t, Idle, e.Snapshot().State)
	_, ok := store.record(t, "c")
	assert.False(t, ok)
}

func TestResetClearsWatermarkAndReloads(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	gen := &fakeGen{fn: ladder(1, 2, 3, 4)}
	e := NewEngine(gen, store)
	require.NoError(t, e.Enter(ctx, "c"))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))
	_, _ = e.RequestMore(ctx)
	_, _ = e.RequestMore(ctx)
	require.Equal(t, 3, e.Snapshot().UnlockedLevel)

	require.NoError(t, e.Reset(ctx, backend.HintRequest{}))
	assert.Equal(t, 2, gen.count())
	snap := e.Snapshot()
	assert.Equal(t, 1, snap.UnlockedLevel)
	assert.Equal(t, 1, snap.VisibleLevel)
	rec, _ := store.record(t, "c")
	assert.Equal(t, 1, rec.UnlockedLevel)
}

func TestTargetLevelRefreshReplacesOneLevel(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{fn: ladder(1, 2, 3, 4)}
	e := NewEngine(gen, newMapStore())
	require.NoError(t, e.Enter(ctx, "c"))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))

	gen.fn = func(context.Context, backend.HintRequest) ([]backend.HintCandidate, error) {
		return []backend.HintCandidate{{Level: 3, Content: "fresh"}}, nil
	}
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{Force: true, TargetLevel: 3}))

	snap := e.Snapshot()
	require.Len(t, snap.Hints, 4)
	assert.Equal(t, "fresh", snap.Hints[2].Content)
	assert.Equal(t, 3, snap.UnlockedLevel)
	assert.Equal(t, 3, snap.VisibleLevel)

	err := e.Load(ctx, backend.HintRequest{}, LoadOptions{Force: true, TargetLevel: 4})
	assert.ErrorIs(t, err, ErrTargetMissing)
	assert.Equal(t, 3, e.Snapshot().UnlockedLevel)
}

func TestLoadCompletingAfterChallengeSwitchIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	started := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{fn: func(context.Context, backend.HintRequest) ([]backend.HintCandidate, error) {
		close(started)
		<-release
		return []backend.HintCandidate{{Level: 1, Content: "old"}}, nil
	}}
	e := NewEngine(gen, store)
	require.NoError(t, e.Enter(ctx, "a"))

	done := make(chan error, 1)
	go func() { done <- e.Load(ctx, backend.HintRequest{}, LoadOptions{}) }()
	<-started
	require.NoError(t, e.Enter(ctx, "b"))
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	snap := e.Snapshot()
	assert.Equal(t, "b", snap.ChallengeID)
	assert.Empty(t, snap.Hints)
	_, ok := store.record(t, "a")
	assert.False(t, ok)
}

func TestShowAndStepStayWithinUnlocked(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(&fakeGen{fn: ladder(1, 2, 3, 4)}, newMapStore())
	require.NoError(t, e.Enter(ctx, "c"))
	require.NoError(t, e.Load(ctx, backend.HintRequest{}, LoadOptions{}))
	_, _ = e.RequestMore(ctx)

	assert.ErrorIs(t, e.Show(3), ErrLevelLocked)
	require.NoError(t, e.Show(1))
	assert.Equal(t, 1, e.Snapshot().VisibleLevel)

	level, err := e.Step(+1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	level, err = e.Step(+1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	level, err = e.Step(-1)
	require.NoError(t, err)
	assert.Equal(t, 1, level)
	assert.Equal(t, 2, e.Snapshot().UnlockedLevel)
}

func TestDisplayTitle(t *testing.T) {
	assert.Equal(t, "ループの考え方", DisplayTitle(Hint{Level: 1, Title: "ヒント1：ループの考え方"}))
	assert.Equal(t, "loops", DisplayTitle(Hint{Level: 2, Title: "HINT 2 - loops"}))
	assert.Equal(t, DefaultTitles[3], DisplayTitle(Hint{Level: 3, Title: "Hint 3:"}))
	assert.Equal(t, DefaultTitles[4], DisplayTitle(Hint{Level: 4}))
	assert.Equal(t, "ヒント", DisplayTitle(Hint{Level: 7}))
	assert.Equal(t, "hint-progress-abc", StorageKey("abc"))
}
