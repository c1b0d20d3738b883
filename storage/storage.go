package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"dealdesk-api/domain"
)

// Storage provides access to the underlying persistence mechanisms: the task
// and contacts tables plus the enrichment job queue.
type Storage struct {
	taskTable     *aztables.Client
	contactsTable *aztables.Client
	enrichQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, contactsTable, enrichmentQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	tt := svc.NewClient(tasksTable)
	ct := svc.NewClient(contactsTable)

	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, enrichmentQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: tt, contactsTable: ct, enrichQueue: eq}, nil
}

// entityKeys is the bare table addressing pair. Write payloads use it instead
// of aztables.Entity so no system columns leak into merges.
type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// Rank columns use 0 as "not set"; ranks are 1-based so the sentinel is safe.
type taskEntity struct {
	entityKeys
	Title            string  `json:"Title"`
	Status           string  `json:"Status"`
	Assignee         string  `json:"Assignee"`
	PriorityScore    float64 `json:"PriorityScore"`
	CreatedAt        int64   `json:"CreatedAt,string"`
	CreatedAtType    string  `json:"CreatedAt@odata.type,omitempty"`
	Pinned           bool    `json:"Pinned"`
	PinnedRank       int     `json:"PinnedRank"`
	PinnedRankType   string  `json:"PinnedRank@odata.type,omitempty"`
	PriorityRank     int     `json:"PriorityRank"`
	PriorityRankType string  `json:"PriorityRank@odata.type,omitempty"`
}

// taskUpdateEntity carries a partial merge; nil fields stay untouched.
type taskUpdateEntity struct {
	entityKeys
	Title            *string  `json:"Title,omitempty"`
	Status           *string  `json:"Status,omitempty"`
	Assignee         *string  `json:"Assignee,omitempty"`
	PriorityScore    *float64 `json:"PriorityScore,omitempty"`
	Pinned           *bool    `json:"Pinned,omitempty"`
	PinnedRank       *int     `json:"PinnedRank,omitempty"`
	PinnedRankType   *string  `json:"PinnedRank@odata.type,omitempty"`
	PriorityRank     *int     `json:"PriorityRank,omitempty"`
	PriorityRankType *string  `json:"PriorityRank@odata.type,omitempty"`
}

const edmInt32 = "Edm.Int32"

func encodeTask(workspaceID string, t domain.Task) taskEntity {
	ent := taskEntity{
		entityKeys:    entityKeys{PartitionKey: workspaceID, RowKey: t.ID},
		Title:         t.Title,
		Status:        string(t.Status),
		Assignee:      t.Assignee,
		PriorityScore: t.PriorityScore,
		CreatedAt:     t.CreatedAt,
		CreatedAtType: "Edm.Int64",
		Pinned:        t.Pinned,
	}
	if t.PinnedRank != nil {
		ent.PinnedRank = *t.PinnedRank
		ent.PinnedRankType = edmInt32
	}
	if t.PriorityRank != nil {
		ent.PriorityRank = *t.PriorityRank
		ent.PriorityRankType = edmInt32
	}
	return ent
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:            ent.RowKey,
		Title:         ent.Title,
		Status:        domain.Status(ent.Status),
		Assignee:      ent.Assignee,
		PriorityScore: ent.PriorityScore,
		CreatedAt:     ent.CreatedAt,
		Pinned:        ent.Pinned,
	}
	if ent.PinnedRank > 0 {
		r := ent.PinnedRank
		t.PinnedRank = &r
	}
	if ent.PriorityRank > 0 {
		r := ent.PriorityRank
		t.PriorityRank = &r
	}
	return t, nil
}

// openTasksFilter selects the workspace partition restricted to open
// statuses, server side.
func openTasksFilter(workspaceID string) string {
	parts := make([]string, len(domain.OpenStatuses))
	for i, s := range domain.OpenStatuses {
		parts[i] = "Status eq '" + string(s) + "'"
	}
	return "PartitionKey eq '" + workspaceID + "' and (" + strings.Join(parts, " or ") + ")"
}

// FetchOpenTasks retrieves every open task in the workspace.
func (s *Storage) FetchOpenTasks(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	filter := openTasksFilter(workspaceID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			t, err := decodeTaskEntity(raw)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// GetTask returns the task or nil when it does not exist.
func (s *Storage) GetTask(ctx context.Context, workspaceID, taskID string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, workspaceID, taskID, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTask adds a new task row.
func (s *Storage) InsertTask(ctx context.Context, workspaceID string, t domain.Task) error {
	data, err := json.Marshal(encodeTask(workspaceID, t))
	if err != nil {
		return err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		if statusCode(err) == 409 {
			return fmt.Errorf("%w: %s", domain.ErrTaskExists, t.ID)
		}
		return err
	}
	return nil
}

// UpdateTask merges the non-nil fields of upd into the stored row.
func (s *Storage) UpdateTask(ctx context.Context, workspaceID string, upd domain.TaskUpdate) error {
	ent := taskUpdateEntity{entityKeys: entityKeys{PartitionKey: workspaceID, RowKey: upd.ID}}
	ent.Title = upd.Title
	if upd.Status != nil {
		status := string(*upd.Status)
		ent.Status = &status
	}
	ent.Assignee = upd.Assignee
	ent.PriorityScore = upd.PriorityScore
	ent.Pinned = upd.Pinned
	if upd.PinnedRank != nil {
		ent.PinnedRank = upd.PinnedRank
		t := edmInt32
		ent.PinnedRankType = &t
	}
	return s.mergeTaskEntity(ctx, ent)
}

// UpdateTaskRank sets only the persisted rank column for the task.
func (s *Storage) UpdateTaskRank(ctx context.Context, workspaceID, taskID string, rank int) error {
	t := edmInt32
	ent := taskUpdateEntity{
		entityKeys:       entityKeys{PartitionKey: workspaceID, RowKey: taskID},
		PriorityRank:     &rank,
		PriorityRankType: &t,
	}
	return s.mergeTaskEntity(ctx, ent)
}

func (s *Storage) mergeTaskEntity(ctx context.Context, ent taskUpdateEntity) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	opts := &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}
	if _, err := s.taskTable.UpdateEntity(ctx, data, opts); err != nil {
		if statusCode(err) == 404 {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, ent.RowKey)
		}
		return err
	}
	return nil
}

// DeleteTask removes the task row.
func (s *Storage) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, workspaceID, taskID, nil); err != nil {
		if statusCode(err) == 404 {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
		}
		return err
	}
	return nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}
