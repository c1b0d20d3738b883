package storage

import (
	"context"
	"encoding/json"
	"time"

	"dealdesk-api/domain"
)

const enrichmentBatchSize = 25

// EnqueueEnrichmentJobs splits the companies into queue-sized jobs and sends
// them to the enrichment queue.
func (s *Storage) EnqueueEnrichmentJobs(ctx context.Context, workspaceID string, companies []domain.Company) error {
	now := time.Now().UnixMilli()
	for start := 0; start < len(companies); start += enrichmentBatchSize {
		end := start + enrichmentBatchSize
		if end > len(companies) {
			end = len(companies)
		}
		job := domain.EnrichmentJob{
			WorkspaceID: workspaceID,
			Companies:   companies[start:end],
			EnqueuedAt:  now,
		}
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if _, err := s.enrichQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

// DequeueEnrichmentJob pops one job off the queue. It returns a nil job when
// the queue is empty. The message id and pop receipt must be passed to
// DeleteEnrichmentMessage once the job is done.
func (s *Storage) DequeueEnrichmentJob(ctx context.Context) (*domain.EnrichmentJob, string, string, error) {
	resp, err := s.enrichQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, "", "", err
	}
	if len(resp.Messages) == 0 {
		return nil, "", "", nil
	}
	msg := resp.Messages[0]
	var job domain.EnrichmentJob
	if err := json.Unmarshal([]byte(*msg.MessageText), &job); err != nil {
		// Poison message: hand back the receipt so the caller can drop it.
		return nil, *msg.MessageID, *msg.PopReceipt, err
	}
	return &job, *msg.MessageID, *msg.PopReceipt, nil
}

// DeleteEnrichmentMessage acknowledges a processed queue message.
func (s *Storage) DeleteEnrichmentMessage(ctx context.Context, messageID, popReceipt string) error {
	_, err := s.enrichQueue.DeleteMessage(ctx, messageID, popReceipt, nil)
	return err
}
