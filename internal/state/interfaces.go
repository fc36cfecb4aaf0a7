package state

import (
	"context"
	"time"
)

// KV is device-local key/value storage. Every implementation satisfies
// hints.Store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Store interface {
	KV
	EnsureSchema(ctx context.Context) error
	StartRun(ctx context.Context, run ChallengeRun) (int64, error)
	RecordAttempt(ctx context.Context, runID int64, attempt Attempt) error
	MarkSubmitted(ctx context.Context, runID int64) error
	MarkRetired(ctx context.Context, runID int64) error
	UpsertProgress(ctx context.Context, update ProgressUpdate) error
	GetProgressMap(ctx context.Context) (map[string]ChallengeProgress, error)
	SaveSettings(ctx context.Context, values map[string]string) error
	LoadSettings(ctx context.Context) (map[string]string, error)
	GetSummary(ctx context.Context) (Summary, error)
	GetLastRun(ctx context.Context) (*LastRun, error)
	RecentRuns(ctx context.Context, challengeID string, limit int) ([]RunRecord, error)
}

type ChallengeRun struct {
	SessionID   string
	ChallengeID string
	Difficulty  string
	StartTS     time.Time
}

type Attempt struct {
	Passed    bool
	Total     int
	Succeeded int
	At        time.Time
}

type Summary struct {
	Runs     int
	Attempts int
	Passes   int
	Submits  int
	Retires  int
}

type LastRun struct {
	ChallengeID string
	Difficulty  string
	StartTS     time.Time
	LastPassed  bool
	Attempts    int
	Submitted   bool
	Retired     bool
}

type RunRecord struct {
	ID          int64
	ChallengeID string
	StartTS     time.Time
	Attempts    int
	LastPassed  bool
	Submitted   bool
	Retired     bool
}

type ChallengeProgress struct {
	ChallengeID    string
	SolvedCount    int
	RetiredCount   int
	BestScore      int
	FewestAttempts int
	LastPlayedTS   time.Time
	LastSolvedTS   time.Time
}

type ProgressUpdate struct {
	ChallengeID  string
	Solved       bool
	Retired      bool
	Score        int
	Attempts     int
	LastPlayedTS time.Time
}
