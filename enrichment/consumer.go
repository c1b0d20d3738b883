package enrichment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"dealdesk-api/domain"
)

// Store is the persistence surface the consumer needs.
type Store interface {
	DequeueEnrichmentJob(ctx context.Context) (*domain.EnrichmentJob, string, string, error)
	DeleteEnrichmentMessage(ctx context.Context, messageID, popReceipt string) error
	UpsertContacts(ctx context.Context, workspaceID string, results []domain.CompanyContacts) error
}

// ContactFinder resolves companies to contacts.
type ContactFinder interface {
	FindContacts(ctx context.Context, companies []domain.Company) []domain.CompanyContacts
}

const consumerIdleDelay = time.Second

// Consumer drains the enrichment queue: each job is resolved to contacts and
// stored, then the message is acknowledged. A job whose results cannot be
// stored is left on the queue for redelivery.
type Consumer struct {
	store  Store
	finder ContactFinder
	logger *log.Logger

	idleDelay time.Duration
}

func NewConsumer(store Store, finder ContactFinder, logger *log.Logger) *Consumer {
	if logger == nil {
		panic("Logger is not initialized")
	}
	return &Consumer{store: store, finder: finder, logger: logger, idleDelay: consumerIdleDelay}
}

// Run polls the queue until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("enrichment consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("enrichment consumer stopped")
			return
		default:
		}

		job, messageID, popReceipt, err := c.store.DequeueEnrichmentJob(ctx)
		if err != nil {
			if popReceipt != "" {
				// Undecodable message; drop it so the queue keeps moving.
				c.logger.WithError(err).Warn("dropping malformed enrichment message")
				if delErr := c.store.DeleteEnrichmentMessage(ctx, messageID, popReceipt); delErr != nil {
					c.logger.WithError(delErr).Error("delete malformed message failed")
				}
				continue
			}
			c.logger.WithError(err).Error("dequeue enrichment job failed")
			c.sleep(ctx)
			continue
		}
		if job == nil {
			c.sleep(ctx)
			continue
		}

		c.process(ctx, job, messageID, popReceipt)
	}
}

func (c *Consumer) process(ctx context.Context, job *domain.EnrichmentJob, messageID, popReceipt string) {
	results := c.finder.FindContacts(ctx, job.Companies)
	if len(results) > 0 {
		if err := c.store.UpsertContacts(ctx, job.WorkspaceID, results); err != nil {
			c.logger.WithFields(log.Fields{"workspace": job.WorkspaceID, "companies": len(job.Companies)}).WithError(err).Error("store contacts failed")
			return
		}
	}
	if err := c.store.DeleteEnrichmentMessage(ctx, messageID, popReceipt); err != nil {
		c.logger.WithError(err).Error("acknowledge enrichment message failed")
		return
	}
	c.logger.WithFields(log.Fields{
		"workspace": job.WorkspaceID,
		"companies": len(job.Companies),
		"found":     len(results),
	}).Info("enrichment job processed")
}

func (c *Consumer) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.idleDelay):
	}
}
