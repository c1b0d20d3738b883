package api

import (
	"context"

	"dealdesk-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchOpenTasks(ctx context.Context, workspaceID string) ([]domain.Task, error)
	FetchContacts(ctx context.Context, workspaceID string) ([]domain.CompanyContacts, error)
	EnqueueEnrichmentJobs(ctx context.Context, workspaceID string, companies []domain.Company) error
}

// Commander applies a command batch against the task pool and re-ranks it.
type Commander interface {
	ApplyAll(ctx context.Context, workspaceID string, cmds []domain.Command) error
}

// Authenticator is implemented by types able to extract workspace IDs from
// Authorization headers.
type Authenticator interface {
	WorkspaceIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, workspaceID, key string) (bool, error)
	// AddMany records the keys in one round trip; the result slice marks which
	// keys were newly added.
	AddMany(ctx context.Context, workspaceID string, keys []string) ([]bool, error)
	// Remove deletes a previously added key, used when downstream processing
	// fails so the caller may retry the command.
	Remove(ctx context.Context, workspaceID, key string) error
}
