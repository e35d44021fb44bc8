package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one subtitle generation run.
type Job struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename"`
	Engine     string     `json:"engine"`
	Model      string     `json:"model"`
	Language   string     `json:"language,omitempty"`
	Format     string     `json:"format"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Entries    int        `json:"entries"`
	DurationMS int64      `json:"duration_ms"`
	Subtitles  string     `json:"subtitles,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration is the media length as a time.Duration.
func (j *Job) Duration() time.Duration {
	return time.Duration(j.DurationMS) * time.Millisecond
}

// Elapsed is wall time from creation to completion, zero while running.
func (j *Job) Elapsed() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}

// Outcome carries the results recorded by Finish.
type Outcome struct {
	Language  string
	Entries   int
	Duration  time.Duration
	Subtitles string
}

const jobColumns = `id, filename, engine, model, language, format, status, error,
    entries, duration_ms, subtitles, created_at, finished_at`

// summaryColumns matches jobColumns with the subtitle body left out.
const summaryColumns = `id, filename, engine, model, language, format, status, error,
    entries, duration_ms, NULL, created_at, finished_at`

// Create inserts a running job; CreatedAt defaults to now.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = StatusRunning

	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, filename, engine, model, language, format, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Filename,
		job.Engine,
		job.Model,
		job.Language,
		job.Format,
		job.Status,
		job.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Finish marks a job succeeded and stores its subtitle document.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, language = COALESCE(NULLIF(?, ''), language),
            entries = ?, duration_ms = ?, subtitles = ?, error = NULL, finished_at = ?
         WHERE id = ?`,
		StatusSucceeded,
		out.Language,
		out.Entries,
		out.Duration.Milliseconds(),
		out.Subtitles,
		time.Now().UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return requireRow(res, id)
}

// Fail marks a job failed with the given cause.
func (s *Store) Fail(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		StatusFailed,
		msg,
		time.Now().UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res, id)
}

// Get fetches a job including its subtitle document.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the newest jobs first without subtitle bodies.
// A limit of zero or less returns every job.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + summaryColumns + ` FROM jobs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Prune deletes finished jobs created before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status != ? AND created_at < ?`,
		StatusRunning,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailInterrupted marks jobs left running by a previous process as failed.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		StatusFailed,
		"interrupted before completion",
		time.Now().UTC().Format(timeLayout),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts jobs per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job        Job
		status     string
		errMsg     sql.NullString
		subtitles  sql.NullString
		createdAt  string
		finishedAt sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Filename,
		&job.Engine,
		&job.Model,
		&job.Language,
		&job.Format,
		&status,
		&errMsg,
		&job.Entries,
		&job.DurationMS,
		&subtitles,
		&createdAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	job.Status = Status(status)
	job.Error = errMsg.String
	job.Subtitles = subtitles.String

	created, err := parseTimeString(createdAt)
	if err != nil {
		return nil, err
	}
	job.CreatedAt = created

	if finishedAt.Valid && finishedAt.String != "" {
		finished, err := parseTimeString(finishedAt.String)
		if err != nil {
			return nil, err
		}
		job.FinishedAt = &finished
	}
	return &job, nil
}
