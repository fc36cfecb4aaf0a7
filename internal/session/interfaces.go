package session

import (
	"context"
	"io"

	"codedojo/internal/backend"
	"codedojo/internal/catalog"
	"codedojo/internal/state"
)

// Backend is the remote side of a session. *backend.Client implements it.
type Backend interface {
	RunTests(ctx context.Context, code string, cases []catalog.TestCase) (io.ReadCloser, error)
	GenerateCode(ctx context.Context, in backend.CodeRequest) (backend.CodeResponse, error)
	Explain(ctx context.Context, in backend.ExplanationRequest) (backend.Explanation, error)
	ExplainRetire(ctx context.Context, in backend.ExplanationRequest) (backend.RetireExplanation, error)
}

// History records runs. *state.SQLiteStore implements it.
type History interface {
	StartRun(ctx context.Context, run state.ChallengeRun) (int64, error)
	RecordAttempt(ctx context.Context, runID int64, attempt state.Attempt) error
	MarkSubmitted(ctx context.Context, runID int64) error
	MarkRetired(ctx context.Context, runID int64) error
	UpsertProgress(ctx context.Context, update state.ProgressUpdate) error
}
