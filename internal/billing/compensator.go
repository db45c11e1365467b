// Package billing settles the money side of finished jobs. A user pays up
// front when a verification is requested; any job that ends without a
// verified result gets that charge credited back exactly once.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obikwelu/resulthawk/internal/cache"
	"github.com/obikwelu/resulthawk/internal/wallet"
	"github.com/obikwelu/resulthawk/pkg/models"
)

// claimTTL bounds how long a local refund claim shadows the reference. The
// wallet deduplicates by reference regardless, so expiry cannot double-credit.
const claimTTL = 24 * time.Hour

// PriceSource resolves the charged amount for a provider when the caller
// does not already hold it.
type PriceSource interface {
	GetProviderSettings(ctx context.Context, key string) (*models.ProviderSettings, error)
}

// Compensator issues refunds for jobs that ended without a verified result.
type Compensator struct {
	cache  cache.Cache
	wallet wallet.Client
	prices PriceSource
	logger *slog.Logger
}

// NewCompensator creates a new Compensator.
func NewCompensator(c cache.Cache, w wallet.Client, prices PriceSource, logger *slog.Logger) *Compensator {
	return &Compensator{cache: c, wallet: w, prices: prices, logger: logger}
}

// RefundReference builds the idempotency reference for a job's refund.
func RefundReference(job *models.Job) string {
	return fmt.Sprintf("job:%s", job.ID)
}

// Settle decides whether a terminal job owes the user a refund and issues it.
// A job is refundable unless it produced a verified outcome: not_found and
// error classifications refund, and so does a job that failed before any
// classification was reached. price is the amount charged for the provider,
// in the wallet's minor unit; pass 0 when the caller does not hold it and
// it is resolved from the provider settings here.
//
// Settle is idempotent per job: the reference job:<id> is claimed in Redis
// before calling the wallet, and the wallet itself deduplicates by reference,
// so redelivering the same terminal job cannot credit twice.
func (c *Compensator) Settle(ctx context.Context, job *models.Job, outcome *models.Outcome, price int64) error {
	if outcome != nil && outcome.Verified() {
		return nil
	}
	if price <= 0 {
		// The caller lost the provider settings somewhere (load failure,
		// janitor recovery). Resolve the price here rather than dropping
		// the refund: a returned error leaves the claim untaken, so a
		// redelivery retries the whole settle.
		settings, err := c.prices.GetProviderSettings(ctx, job.Provider)
		if err != nil {
			return fmt.Errorf("resolving refund price for job %s: %w", job.ID, err)
		}
		price = settings.Price
	}

	ref := RefundReference(job)
	claimed, err := c.cache.ClaimRefund(ctx, ref, claimTTL)
	if err != nil {
		// Redis being down should not block a refund; fall through to the
		// wallet, which dedupes on its own.
		c.logger.Warn("refund claim check failed, deferring to wallet dedup", "job_id", job.ID, "error", err)
	} else if !claimed {
		c.logger.Debug("refund already claimed", "job_id", job.ID, "reference", ref)
		return nil
	}

	result, err := c.wallet.Refund(ctx, job.UserID, price, ref)
	if err != nil {
		// Give the claim back so a later redelivery can retry the refund.
		if relErr := c.cache.ReleaseRefund(ctx, ref); relErr != nil {
			c.logger.Warn("releasing refund claim failed", "job_id", job.ID, "error", relErr)
		}
		return fmt.Errorf("refunding job %s: %w", job.ID, err)
	}

	c.logger.Info("refund settled",
		"job_id", job.ID,
		"user_id", job.UserID,
		"amount", price,
		"result", string(result),
	)
	return nil
}
