package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writers run on several goroutines; more than one connection hits SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_ts TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE TABLE IF NOT EXISTS challenge_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			start_ts TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_passed INTEGER NOT NULL DEFAULT 0,
			submitted INTEGER NOT NULL DEFAULT 0,
			retired INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS test_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			attempt_ts TEXT NOT NULL DEFAULT (datetime('now')),
			passed INTEGER NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(run_id) REFERENCES challenge_runs(id)
		);`,
		`CREATE TABLE IF NOT EXISTS challenge_progress (
			challenge_id TEXT PRIMARY KEY,
			solved_count INTEGER NOT NULL DEFAULT 0,
			retired_count INTEGER NOT NULL DEFAULT 0,
			best_score INTEGER NOT NULL DEFAULT 0,
			fewest_attempts INTEGER NOT NULL DEFAULT 0,
			last_played_ts TEXT NOT NULL DEFAULT '',
			last_solved_ts TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	// Backfill databases created before challenge_runs.difficulty existed.
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE challenge_runs ADD COLUMN difficulty TEXT NOT NULL DEFAULT ''`); err != nil {
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "duplicate column name") {
			return fmt.Errorf("ensure schema alter challenge_runs.difficulty: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store(key, value, updated_ts) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts
	`, key, value, time.Now().UTC().Format(timeLayout))
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) StartRun(ctx context.Context, run ChallengeRun) (int64, error) {
	start := run.StartTS
	if start.IsZero() {
		start = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO challenge_runs(session_id, challenge_id, difficulty, start_ts) VALUES(?,?,?,?)`,
		run.SessionID,
		run.ChallengeID,
		strings.TrimSpace(run.Difficulty),
		start.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, runID int64, attempt Attempt) error {
	passedInt := ifThen(attempt.Passed, 1, 0)
	at := attempt.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO test_attempts(run_id, attempt_ts, passed, total, succeeded) VALUES(?, ?, ?, ?, ?)`,
		runID, at.UTC().Format(timeLayout), passedInt, max(0, attempt.Total), max(0, attempt.Succeeded),
	); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE challenge_runs SET attempts = attempts + 1, last_passed = ? WHERE id = ?`, passedInt, runID); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) MarkSubmitted(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE challenge_runs SET submitted = 1 WHERE id = ?`, runID)
	return err
}

func (s *SQLiteStore) MarkRetired(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE challenge_runs SET retired = 1 WHERE id = ?`, runID)
	return err
}

func (s *SQLiteStore) UpsertProgress(ctx context.Context, update ProgressUpdate) error {
	challengeID := strings.TrimSpace(update.ChallengeID)
	if challengeID == "" {
		return nil
	}
	playTS := update.LastPlayedTS
	if playTS.IsZero() {
		playTS = time.Now().UTC()
	}
	solvedTS := ""
	score := 0
	attempts := 0
	if update.Solved {
		solvedTS = playTS.UTC().Format(timeLayout)
		score = max(0, update.Score)
		attempts = max(0, update.Attempts)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_progress(challenge_id, solved_count, retired_count, best_score, fewest_attempts, last_played_ts, last_solved_ts)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(challenge_id) DO UPDATE SET
			solved_count = challenge_progress.solved_count + excluded.solved_count,
			retired_count = challenge_progress.retired_count + excluded.retired_count,
			best_score = CASE
				WHEN excluded.best_score > challenge_progress.best_score THEN excluded.best_score
				ELSE challenge_progress.best_score
			END,
			fewest_attempts = CASE
				WHEN excluded.fewest_attempts > 0 AND (challenge_progress.fewest_attempts = 0 OR excluded.fewest_attempts < challenge_progress.fewest_attempts) THEN excluded.fewest_attempts
				ELSE challenge_progress.fewest_attempts
			END,
			last_played_ts = excluded.last_played_ts,
			last_solved_ts = CASE
				WHEN excluded.last_solved_ts <> '' THEN excluded.last_solved_ts
				ELSE challenge_progress.last_solved_ts
			END
	`,
		challengeID,
		ifThen(update.Solved, 1, 0),
		ifThen(update.Retired, 1, 0),
		score,
		attempts,
		playTS.UTC().Format(timeLayout),
		solvedTS,
	)
	return err
}

func (s *SQLiteStore) GetProgressMap(ctx context.Context) (map[string]ChallengeProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT challenge_id, solved_count, retired_count, best_score, fewest_attempts, last_played_ts, last_solved_ts
		FROM challenge_progress
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]ChallengeProgress{}
	for rows.Next() {
		var (
			p          ChallengeProgress
			lastPlayed string
			lastSolved string
		)
		if err := rows.Scan(&p.ChallengeID, &p.SolvedCount, &p.RetiredCount, &p.BestScore, &p.FewestAttempts, &lastPlayed, &lastSolved); err != nil {
			return nil, err
		}
		p.LastPlayedTS = parseTS(lastPlayed)
		p.LastSolvedTS = parseTS(lastSolved)
		out[p.ChallengeID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for key, value := range values {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO app_settings(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, value); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context) (Summary, error) {
	var out Summary
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as runs,
			COALESCE(SUM(attempts),0) as attempts,
			COALESCE(SUM(last_passed),0) as passes,
			COALESCE(SUM(submitted),0) as submits,
			COALESCE(SUM(retired),0) as retires
		FROM challenge_runs
	`)
	if err := row.Scan(&out.Runs, &out.Attempts, &out.Passes, &out.Submits, &out.Retires); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *SQLiteStore) GetLastRun(ctx context.Context) (*LastRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT challenge_id, difficulty, start_ts, last_passed, attempts, submitted, retired
		FROM challenge_runs
		ORDER BY id DESC
		LIMIT 1
	`)
	var (
		out        LastRun
		startTSRaw string
		lastPassed int
		submitted  int
		retired    int
	)
	if err := row.Scan(&out.ChallengeID, &out.Difficulty, &startTSRaw, &lastPassed, &out.Attempts, &submitted, &retired); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out.StartTS = parseTS(startTSRaw)
	out.LastPassed = lastPassed == 1
	out.Submitted = submitted == 1
	out.Retired = retired == 1
	return &out, nil
}

// RecentRuns lists the newest runs first. An empty challengeID lists runs for
// every challenge.
func (s *SQLiteStore) RecentRuns(ctx context.Context, challengeID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, challenge_id, start_ts, attempts, last_passed, submitted, retired
		FROM challenge_runs
		WHERE ? = '' OR challenge_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, challengeID, challengeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			startTSRaw string
			lastPassed int
			submitted  int
			retired    int
		)
		if err := rows.Scan(&r.ID, &r.ChallengeID, &startTSRaw, &r.Attempts, &lastPassed, &submitted, &retired); err != nil {
			return nil, err
		}
		r.StartTS = parseTS(startTSRaw)
		r.LastPassed = lastPassed == 1
		r.Submitted = submitted == 1
		r.Retired = retired == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTS(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ifThen(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}
