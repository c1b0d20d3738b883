package domain

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Command types accepted on the write path. Every one of them changes the
// composition or pin-state of the ranking pool, so each applied batch ends
// with a full re-rank.
const (
	CreateTask   = "create-task"
	CompleteTask = "complete-task"
	ReopenTask   = "reopen-task"
	ApproveTask  = "approve-task"
	DeleteTask   = "delete-task"
	ReassignTask = "reassign-task"
	PinTask      = "pin-task"
	UnpinTask    = "unpin-task"
)

// Command represents a write request against the task pool.
type Command struct {
	// ID carries the idempotency key once the command is finalized.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

type createTaskData struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Assignee      string  `json:"assignee"`
	PriorityScore float64 `json:"priorityScore"`
	Pinned        bool    `json:"pinned"`
	PinnedRank    *int    `json:"pinnedRank"`
}

type taskRefData struct {
	ID string `json:"id"`
}

type reassignTaskData struct {
	ID       string `json:"id"`
	Assignee string `json:"assignee"`
}

type pinTaskData struct {
	ID   string `json:"id"`
	Rank int    `json:"rank"`
}

// CommandService applies task commands against the store and keeps the
// persisted ranking current.
type CommandService struct {
	st     TaskStore
	ranker Ranker
}

func NewCommandService(st TaskStore) CommandService {
	return CommandService{st: st, ranker: NewRanker(st)}
}

// ApplyAll applies the commands in order, then runs one ranking pass over the
// resulting pool. A command failure stops the batch; mutations already
// applied stay applied and are still re-ranked.
func (s CommandService) ApplyAll(ctx context.Context, workspaceID string, cmds []Command) error {
	applied := 0
	var applyErr error
	for i := range cmds {
		if err := s.apply(ctx, workspaceID, cmds[i]); err != nil {
			applyErr = fmt.Errorf("command %s (%s): %w", cmds[i].ID, cmds[i].Type, err)
			break
		}
		applied++
	}
	if applied > 0 {
		if err := s.ranker.RecomputeRanks(ctx, workspaceID); err != nil {
			if applyErr != nil {
				return fmt.Errorf("%w (re-rank also failed: %v)", applyErr, err)
			}
			return fmt.Errorf("re-rank: %w", err)
		}
	}
	return applyErr
}

func (s CommandService) apply(ctx context.Context, workspaceID string, cmd Command) error {
	switch cmd.Type {
	case CreateTask:
		var data createTaskData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		if data.Title == "" {
			return fmt.Errorf("create-task requires a title")
		}
		t := Task{
			ID:            data.ID,
			Title:         data.Title,
			Status:        StatusPending,
			Assignee:      data.Assignee,
			PriorityScore: data.PriorityScore,
			CreatedAt:     cmd.Timestamp,
			Pinned:        data.Pinned,
			PinnedRank:    data.PinnedRank,
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		return s.st.InsertTask(ctx, workspaceID, t)
	case CompleteTask:
		return s.setStatus(ctx, workspaceID, cmd.Data, StatusCompleted)
	case ReopenTask:
		return s.setStatus(ctx, workspaceID, cmd.Data, StatusPending)
	case ApproveTask:
		var data taskRefData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		t, err := s.mustGet(ctx, workspaceID, data.ID)
		if err != nil {
			return err
		}
		if t.Status != StatusPendingApproval {
			return fmt.Errorf("task %s is %s, not awaiting approval", data.ID, t.Status)
		}
		status := StatusPending
		return s.st.UpdateTask(ctx, workspaceID, TaskUpdate{ID: data.ID, Status: &status})
	case DeleteTask:
		var data taskRefData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		return s.st.DeleteTask(ctx, workspaceID, data.ID)
	case ReassignTask:
		var data reassignTaskData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		return s.st.UpdateTask(ctx, workspaceID, TaskUpdate{ID: data.ID, Assignee: &data.Assignee})
	case PinTask:
		var data pinTaskData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		if data.Rank < 1 {
			return fmt.Errorf("pin-task requires a positive rank, got %d", data.Rank)
		}
		pinned := true
		return s.st.UpdateTask(ctx, workspaceID, TaskUpdate{ID: data.ID, Pinned: &pinned, PinnedRank: &data.Rank})
	case UnpinTask:
		var data taskRefData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		pinned := false
		return s.st.UpdateTask(ctx, workspaceID, TaskUpdate{ID: data.ID, Pinned: &pinned})
	default:
		return fmt.Errorf("unknown command type %s", cmd.Type)
	}
}

func (s CommandService) setStatus(ctx context.Context, workspaceID string, data sonic.NoCopyRawMessage, status Status) error {
	var ref taskRefData
	if err := sonic.Unmarshal(data, &ref); err != nil {
		return err
	}
	if _, err := s.mustGet(ctx, workspaceID, ref.ID); err != nil {
		return err
	}
	return s.st.UpdateTask(ctx, workspaceID, TaskUpdate{ID: ref.ID, Status: &status})
}

func (s CommandService) mustGet(ctx context.Context, workspaceID, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("missing task id")
	}
	t, err := s.st.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t, nil
}
