package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/obikwelu/resulthawk/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrNoPendingJobs     = errors.New("no pending jobs")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Artifact kinds accepted by SaveArtifact.
const (
	ArtifactScreenshot = "screenshot"
	ArtifactDocument   = "document"
)

// Store is the data access interface. All database operations go through here.
// It is the single source of truth for job state and may be shared by several
// engine instances; ClaimOldestPending is the atomic claim that keeps a job
// owned by exactly one execution at a time.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ClaimOldestPending(ctx context.Context) (*models.Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, result *models.Outcome) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, result *models.Outcome) error
	ReleaseForRetry(ctx context.Context, id uuid.UUID, errMsg string) error
	// RequeueStale recovers processing jobs abandoned past the cutoff:
	// requeued is how many went back to pending, failed lists the jobs that
	// were failed terminally because their retries were exhausted. The caller
	// owes those jobs their terminal bookkeeping (refund, status mirror).
	RequeueStale(ctx context.Context, olderThan time.Duration) (requeued int64, failed []*models.Job, err error)
	CountByStatus(ctx context.Context, status string) (int, error)

	GetProviderSettings(ctx context.Context, key string) (*models.ProviderSettings, error)
	UpdateServiceRequest(ctx context.Context, jobID uuid.UUID, status string, result *models.Outcome) error
	SaveArtifact(ctx context.Context, jobID uuid.UUID, kind string, data string) error
}
