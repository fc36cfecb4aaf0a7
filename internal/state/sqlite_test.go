package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second ensure schema: %v", err)
	}
}

func TestKVBackends(t *testing.T) {
	sq := newTestStore(t)
	bg, err := NewBadgerKV("")
	if err != nil {
		t.Fatalf("badger in memory: %v", err)
	}
	t.Cleanup(func() { _ = bg.Close() })

	for name, kv := range map[string]KV{
		"sqlite": sq,
		"badger": bg,
		"memory": NewMemoryKV(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := kv.Get(ctx, "hint-progress-a"); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}
			if err := kv.Set(ctx, "hint-progress-a", `{"unlockedLevel":1,"hints":[]}`); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := kv.Set(ctx, "hint-progress-a", `{"unlockedLevel":2,"hints":[]}`); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, ok, err := kv.Get(ctx, "hint-progress-a")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if got != `{"unlockedLevel":2,"hints":[]}` {
				t.Fatalf("expected overwritten value, got %q", got)
			}
			if err := kv.Delete(ctx, "hint-progress-a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := kv.Get(ctx, "hint-progress-a"); ok {
				t.Fatalf("expected key to be deleted")
			}
			if err := kv.Delete(ctx, "never-set"); err != nil {
				t.Fatalf("delete missing key: %v", err)
			}
		})
	}
}

func TestBadgerKVPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	kv, err := NewBadgerKV(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kv.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	kv, err = NewBadgerKV(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = kv.Close() }()
	got, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Fatalf("expected v after reopen, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestRunHistoryAndSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	runID, err := store.StartRun(ctx, ChallengeRun{SessionID: "s1", ChallengeID: "sum-to-n", Difficulty: " easy ", StartTS: start})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := store.RecordAttempt(ctx, runID, Attempt{Passed: false, Total: 4, Succeeded: 2}); err != nil {
		t.Fatalf("record failing attempt: %v", err)
	}
	if err := store.RecordAttempt(ctx, runID, Attempt{Passed: true, Total: 4, Succeeded: 4}); err != nil {
		t.Fatalf("record passing attempt: %v", err)
	}
	if err := store.MarkSubmitted(ctx, runID); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}

	other, err := store.StartRun(ctx, ChallengeRun{SessionID: "s1", ChallengeID: "reverse-words", StartTS: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("start second run: %v", err)
	}
	if err := store.MarkRetired(ctx, other); err != nil {
		t.Fatalf("mark retired: %v", err)
	}

	sum, err := store.GetSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Runs != 2 || sum.Attempts != 2 || sum.Passes != 1 || sum.Submits != 1 || sum.Retires != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	last, err := store.GetLastRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.ChallengeID != "reverse-words" || !last.Retired || last.Submitted {
		t.Fatalf("unexpected last run: %+v", last)
	}

	runs, err := store.RecentRuns(ctx, "sum-to-n", 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run for sum-to-n, got %d", len(runs))
	}
	if runs[0].Attempts != 2 || !runs[0].LastPassed || !runs[0].Submitted || !runs[0].StartTS.Equal(start) {
		t.Fatalf("unexpected run record: %+v", runs[0])
	}

	all, err := store.RecentRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("recent runs all: %v", err)
	}
	if len(all) != 2 || all[0].ChallengeID != "reverse-words" {
		t.Fatalf("expected newest first across challenges, got %+v", all)
	}
}

func TestGetLastRunEmpty(t *testing.T) {
	store := newTestStore(t)
	last, err := store.GetLastRun(context.Background())
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil last run, got %+v", last)
	}
}

func TestUpsertProgressKeepsBest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t1 := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	t3 := t2.Add(24 * time.Hour)

	updates := []ProgressUpdate{
		{ChallengeID: "sum-to-n", Solved: true, Score: 800, Attempts: 3, LastPlayedTS: t1},
		{ChallengeID: "sum-to-n", Solved: true, Score: 600, Attempts: 2, LastPlayedTS: t2},
		{ChallengeID: "sum-to-n", Retired: true, LastPlayedTS: t3},
		{ChallengeID: "  "},
	}
	for _, u := range updates {
		if err := store.UpsertProgress(ctx, u); err != nil {
			t.Fatalf("upsert %+v: %v", u, err)
		}
	}

	m, err := store.GetProgressMap(ctx)
	if err != nil {
		t.Fatalf("progress map: %v", err)
	}
	if len(m) != 1 {
		t.Fatalf("expected 1 progress row, got %d", len(m))
	}
	p := m["sum-to-n"]
	if p.SolvedCount != 2 || p.RetiredCount != 1 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if p.BestScore != 800 {
		t.Fatalf("expected best score 800, got %d", p.BestScore)
	}
	if p.FewestAttempts != 2 {
		t.Fatalf("expected fewest attempts 2, got %d", p.FewestAttempts)
	}
	if !p.LastPlayedTS.Equal(t3) {
		t.Fatalf("expected last played %v, got %v", t3, p.LastPlayedTS)
	}
	if !p.LastSolvedTS.Equal(t2) {
		t.Fatalf("expected last solved %v, got %v", t2, p.LastSolvedTS)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SaveSettings(ctx, map[string]string{"style_variant": "modern", " ": "skipped"}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if err := store.SaveSettings(ctx, map[string]string{"style_variant": "retro", "difficulty": "hard"}); err != nil {
		t.Fatalf("save settings again: %v", err)
	}
	got, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if len(got) != 2 || got["style_variant"] != "retro" || got["difficulty"] != "hard" {
		t.Fatalf("unexpected settings: %#v", got)
	}
}

func TestOpenKV(t *testing.T) {
	sq := newTestStore(t)
	kv, owned, err := OpenKV("", "", sq)
	if err != nil || owned || kv != KV(sq) {
		t.Fatalf("expected shared sqlite store, got owned=%v err=%v", owned, err)
	}
	kv, owned, err = OpenKV(KVMemory, "", nil)
	if err != nil || !owned {
		t.Fatalf("memory kv: owned=%v err=%v", owned, err)
	}
	if _, ok := kv.(*MemoryKV); !ok {
		t.Fatalf("expected *MemoryKV, got %T", kv)
	}
	kv, owned, err = OpenKV(KVBadger, t.TempDir(), nil)
	if err != nil || !owned {
		t.Fatalf("badger kv: owned=%v err=%v", owned, err)
	}
	_ = kv.Close()
	if _, _, err := OpenKV("etcd", "", nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, _, err := OpenKV(KVSQLite, "", nil); err == nil {
		t.Fatalf("expected error for sqlite without store")
	}
}
