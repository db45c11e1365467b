package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/obikwelu/resulthawk/pkg/models"
)

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

const jobColumns = `id, user_id, provider, request_id, payload, status, retry_count, max_retries,
	priority, result, error_message, started_at, completed_at, created_at, updated_at`

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, provider, request_id, payload, status, retry_count, max_retries, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.UserID, job.Provider, job.RequestID, payload, job.Status,
		job.RetryCount, job.MaxRetries, job.Priority, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimOldestPending atomically selects the oldest pending job (highest
// priority first) and marks it processing. FOR UPDATE SKIP LOCKED keeps two
// concurrent claimers, in this process or another instance, from ever
// receiving the same row.
func (s *PostgresStore) ClaimOldestPending(ctx context.Context) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = $1, started_at = NOW(), updated_at = NOW()
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status = $2
		   ORDER BY priority DESC, created_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		models.JobStatusProcessing, models.JobStatusPending)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingJobs
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id uuid.UUID, result *models.Outcome) error {
	resultJSON, err := marshalOutcome(result)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, models.JobStatusCompleted, resultJSON, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, result *models.Outcome) error {
	resultJSON, err := marshalOutcome(result)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result = $3, error_message = $4, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = $5`,
		id, models.JobStatusFailed, resultJSON, errMsg, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ReleaseForRetry moves a processing job back to pending after a transient
// infrastructure failure, incrementing its retry count. The status guard and
// retry ceiling are enforced in the same statement, so a job whose retries
// are exhausted can never re-enter the queue this way.
func (s *PostgresStore) ReleaseForRetry(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, retry_count = retry_count + 1, error_message = $3,
		        started_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $4 AND retry_count < max_retries`,
		id, models.JobStatusPending, errMsg, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("release job for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// RequeueStale recovers jobs abandoned mid-flight by a crashed or wedged
// instance: processing rows whose start timestamp is older than the cutoff
// go back to pending when retries remain, or straight to failed otherwise.
// Failed rows are returned so the caller can run their terminal bookkeeping.
func (s *PostgresStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, []*models.Job, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	requeuedTag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, retry_count = retry_count + 1,
		        error_message = 'requeued: processing past deadline',
		        started_at = NULL, updated_at = NOW()
		 WHERE status = $2 AND started_at < $3 AND retry_count < max_retries`,
		models.JobStatusPending, models.JobStatusProcessing, cutoff)
	if err != nil {
		return 0, nil, fmt.Errorf("requeue stale jobs: %w", err)
	}
	requeued := requeuedTag.RowsAffected()

	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = $1,
		        error_message = 'failed: processing past deadline, retries exhausted',
		        completed_at = NOW(), updated_at = NOW()
		 WHERE status = $2 AND started_at < $3 AND retry_count >= max_retries
		 RETURNING id, user_id, provider`,
		models.JobStatusFailed, models.JobStatusProcessing, cutoff)
	if err != nil {
		return requeued, nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	defer rows.Close()

	var failed []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.Provider); err != nil {
			return requeued, failed, fmt.Errorf("scan failed stale job: %w", err)
		}
		j.Status = models.JobStatusFailed
		failed = append(failed, &j)
	}
	if err := rows.Err(); err != nil {
		return requeued, failed, fmt.Errorf("fail stale jobs: %w", err)
	}
	return requeued, failed, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs by status: %w", err)
	}
	return count, nil
}

// --- Provider settings ---

func (s *PostgresStore) GetProviderSettings(ctx context.Context, key string) (*models.ProviderSettings, error) {
	var (
		ps        models.ProviderSettings
		selectors []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT key, portal_url, price, selectors, updated_at FROM provider_settings WHERE key = $1`,
		key,
	).Scan(&ps.Key, &ps.PortalURL, &ps.Price, &selectors, &ps.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider settings: %w", err)
	}

	if len(selectors) > 0 {
		if err := json.Unmarshal(selectors, &ps.Selectors); err != nil {
			return nil, fmt.Errorf("unmarshal provider selectors: %w", err)
		}
	}
	return &ps, nil
}

// --- Service request mirror ---

func (s *PostgresStore) UpdateServiceRequest(ctx context.Context, jobID uuid.UUID, status string, result *models.Outcome) error {
	resultJSON, err := marshalOutcome(result)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE service_requests SET status = $2, result = $3, updated_at = NOW() WHERE job_id = $1`,
		jobID, status, resultJSON)
	if err != nil {
		return fmt.Errorf("update service request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Artifacts ---

func (s *PostgresStore) SaveArtifact(ctx context.Context, jobID uuid.UUID, kind string, data string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (id, job_id, kind, data, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), jobID, kind, data)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// --- helpers ---

func marshalOutcome(result *models.Outcome) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal outcome: %w", err)
	}
	return b, nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j       models.Job
		payload []byte
		result  []byte
	)
	err := row.Scan(&j.ID, &j.UserID, &j.Provider, &j.RequestID, &payload, &j.Status,
		&j.RetryCount, &j.MaxRetries, &j.Priority, &result, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal job payload: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
	}
	return &j, nil
}
