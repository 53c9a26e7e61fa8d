package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, scope, request_text, status, message, progress_percent, result, error_detail, model_used, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_jobs (id, scope, request_text, status, message, progress_percent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Scope, job.RequestText, job.Status, job.Message, job.ProgressPercent, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// UpdateJob performs a compare-and-set on the job status: the row is only
// written when its current status is one the target may be reached from.
func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) (*models.Job, error) {
	params := NewJobUpdate(opts...)

	allowed := validTransitions[status]
	if allowed == nil {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if status == models.JobStatusDone {
		WithProgress(100)(&params)
	}

	set := []string{"status = $2", "updated_at = $3"}
	args := []any{id, status, time.Now().UTC()}
	add := func(expr string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	if params.Message != nil {
		add("message = $%d", *params.Message)
	}
	if params.Progress != nil {
		add("progress_percent = GREATEST(progress_percent, $%d)", *params.Progress)
	}
	if params.Result != nil {
		add("result = $%d", *params.Result)
	}
	if params.ModelUsed != nil {
		add("model_used = $%d", *params.ModelUsed)
	}
	if params.ErrorDetail != nil {
		add("error_detail = $%d", *params.ErrorDetail)
	}

	args = append(args, allowed)
	query := fmt.Sprintf(`UPDATE generation_jobs SET %s WHERE id = $1 AND status = ANY($%d) RETURNING %s`,
		strings.Join(set, ", "), len(args), jobColumns)

	j, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update job: %w", err)
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM generation_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) FailStaleJobs(ctx context.Context, before time.Time, message string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs
		 SET status = 'error', message = $1, error_detail = $1, updated_at = $2
		 WHERE status IN ('pending', 'processing') AND updated_at < $3`,
		message, time.Now().UTC(), before)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Scope, &j.RequestText, &j.Status, &j.Message, &j.ProgressPercent,
		&j.Result, &j.ErrorDetail, &j.ModelUsed, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
