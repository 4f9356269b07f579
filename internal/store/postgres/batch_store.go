package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

var submissionColumns = []string{"batch_id", "seq", "label", "nonce", "tx_hash", "error"}

// BatchStore implements domain.BatchStore and domain.ReportSink. Each report
// is one batch_reports row plus one batch_submissions row per attempted
// transaction.
type BatchStore struct {
	pool *pgxpool.Pool
}

// NewBatchStore creates a new BatchStore backed by the given connection pool.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

func (s *BatchStore) Name() string { return "postgres" }

// Record saves report.
func (s *BatchStore) Record(ctx context.Context, report domain.BatchReport) error {
	return s.SaveReport(ctx, report)
}

// SaveReport inserts the report and its submissions in one transaction.
// Saving the same batch id twice is a no-op.
func (s *BatchStore) SaveReport(ctx context.Context, r domain.BatchReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save report %s: %w", r.BatchID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insert = `
		INSERT INTO batch_reports (
			batch_id, job_id, method, sport, contract, account, policy,
			succeeded, failed, skipped, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (batch_id) DO NOTHING`
	tag, err := tx.Exec(ctx, insert,
		r.BatchID, r.JobID, string(r.Method), string(r.Sport), r.Contract, r.Account,
		string(r.Result.Policy), r.Result.Succeeded, r.Result.Failed, r.Result.Skipped,
		r.Error, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert report %s: %w", r.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if rows := submissionRows(r); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"batch_submissions"}, submissionColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("postgres: copy submissions %s: %w", r.BatchID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit report %s: %w", r.BatchID, err)
	}
	return nil
}

// submissionRows flattens the report's submissions for COPY.
func submissionRows(r domain.BatchReport) [][]any {
	rows := make([][]any, 0, len(r.Result.Submissions))
	for i, sub := range r.Result.Submissions {
		rows = append(rows, []any{r.BatchID, i, sub.Label, int64(sub.Nonce), sub.TxHash, sub.Err})
	}
	return rows
}

// ListRecent returns the most recently finished reports with their
// submissions, newest first.
func (s *BatchStore) ListRecent(ctx context.Context, limit int) ([]domain.BatchReport, error) {
	const query = `
		SELECT batch_id, job_id, method, sport, contract, account, policy,
		       succeeded, failed, skipped, error, started_at, finished_at
		FROM batch_reports
		ORDER BY finished_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports: %w", err)
	}
	defer rows.Close()

	var (
		reports []domain.BatchReport
		ids     []string
	)
	for rows.Next() {
		var (
			r                     domain.BatchReport
			method, sport, policy string
			started, finished     time.Time
		)
		if err := rows.Scan(
			&r.BatchID, &r.JobID, &method, &sport, &r.Contract, &r.Account, &policy,
			&r.Result.Succeeded, &r.Result.Failed, &r.Result.Skipped, &r.Error,
			&started, &finished,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		r.Method = domain.Method(method)
		r.Sport = domain.Sport(sport)
		r.Result.Policy = domain.Policy(policy)
		r.StartedAt = started.UTC()
		r.FinishedAt = finished.UTC()
		reports = append(reports, r)
		ids = append(ids, r.BatchID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reports rows: %w", err)
	}
	if len(reports) == 0 {
		return nil, nil
	}

	subs, err := s.submissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		reports[i].Result.Submissions = subs[reports[i].BatchID]
	}
	return reports, nil
}

func (s *BatchStore) submissions(ctx context.Context, ids []string) (map[string][]domain.Submission, error) {
	const query = `
		SELECT batch_id, label, nonce, tx_hash, error
		FROM batch_submissions
		WHERE batch_id = ANY($1)
		ORDER BY batch_id, seq`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list submissions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Submission, len(ids))
	for rows.Next() {
		var (
			batchID string
			nonce   int64
			sub     domain.Submission
		)
		if err := rows.Scan(&batchID, &sub.Label, &nonce, &sub.TxHash, &sub.Err); err != nil {
			return nil, fmt.Errorf("postgres: scan submission: %w", err)
		}
		sub.Nonce = uint64(nonce)
		out[batchID] = append(out[batchID], sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list submissions rows: %w", err)
	}
	return out, nil
}

var (
	_ domain.BatchStore = (*BatchStore)(nil)
	_ domain.ReportSink = (*BatchStore)(nil)
)
