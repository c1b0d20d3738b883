package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// TaskStore is the persistence collaborator for the ranker and for task
// commands. FetchOpenTasks returns only tasks in an open status.
type TaskStore interface {
	FetchOpenTasks(ctx context.Context, workspaceID string) ([]Task, error)
	UpdateTaskRank(ctx context.Context, workspaceID, taskID string, rank int) error
	GetTask(ctx context.Context, workspaceID, taskID string) (*Task, error)
	InsertTask(ctx context.Context, workspaceID string, t Task) error
	UpdateTask(ctx context.Context, workspaceID string, upd TaskUpdate) error
	DeleteTask(ctx context.Context, workspaceID, taskID string) error
}

// ErrTaskExists indicates an insert hit an already-persisted task ID.
var ErrTaskExists = errors.New("task already exists")

// ErrTaskNotFound indicates the referenced task is not in storage.
var ErrTaskNotFound = errors.New("task not found")

// Ranker recomputes and persists the priority ranking of a workspace's open
// task pool.
type Ranker struct{ st TaskStore }

func NewRanker(st TaskStore) Ranker { return Ranker{st: st} }

// RecomputeRanks runs a full ranking pass over the open tasks of the
// workspace and writes back every rank that changed.
//
// A fetch failure aborts the pass before any write. Individual write failures
// do not stop the remaining writes; they are joined and returned so the
// caller knows at least one row was left stale. A repeat pass over unchanged
// data writes nothing.
func (r Ranker) RecomputeRanks(ctx context.Context, workspaceID string) error {
	tasks, err := r.st.FetchOpenTasks(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("fetch open tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	// Pin collisions resolve by first occurrence, so the input order must not
	// depend on how the store happens to iterate rows.
	canonicalize(tasks)

	prev := make(map[string]*int, len(tasks))
	for _, t := range tasks {
		prev[t.ID] = t.PriorityRank
	}

	var writeErrs []error
	for _, t := range Rank(tasks) {
		if old := prev[t.ID]; old != nil && *old == *t.PriorityRank {
			continue
		}
		if err := r.st.UpdateTaskRank(ctx, workspaceID, t.ID, *t.PriorityRank); err != nil {
			log.WithFields(log.Fields{"workspace": workspaceID, "task": t.ID, "rank": *t.PriorityRank}).WithError(err).Error("persist rank failed")
			writeErrs = append(writeErrs, fmt.Errorf("task %s: %w", t.ID, err))
		}
	}
	return errors.Join(writeErrs...)
}

// RankedOpenTasks fetches the open pool and returns it freshly ranked,
// without persisting anything. Used by read paths.
func (r Ranker) RankedOpenTasks(ctx context.Context, workspaceID string) ([]Task, error) {
	tasks, err := r.st.FetchOpenTasks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	canonicalize(tasks)
	return Rank(tasks), nil
}

// RankView ranks a pool already held in memory, in the same canonical order a
// persistence pass would use. The input slice is reordered but its tasks are
// not mutated.
func RankView(tasks []Task) []Task {
	canonicalize(tasks)
	return Rank(tasks)
}

// canonicalize sorts tasks by score desc then CreatedAt asc, stably, giving
// ranking passes a deterministic input order.
func canonicalize(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].PriorityScore != tasks[j].PriorityScore {
			return tasks[i].PriorityScore > tasks[j].PriorityScore
		}
		return tasks[i].CreatedAt < tasks[j].CreatedAt
	})
}
