package domain

import (
	"context"
	"errors"
	"fmt"
)

type rankWrite struct {
	taskID string
	rank   int
}

type fakeStore struct {
	tasks map[string]Task

	fetchErr   error
	failRankOf map[string]error

	rankWrites []rankWrite
	deleted    []string
}

func newFakeStore(tasks ...Task) *fakeStore {
	f := &fakeStore{tasks: map[string]Task{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeStore) FetchOpenTasks(ctx context.Context, workspaceID string) ([]Task, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateTaskRank(ctx context.Context, workspaceID, taskID string, rank int) error {
	if err := f.failRankOf[taskID]; err != nil {
		return err
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return fmt.Errorf("update rank: %w: %s", ErrTaskNotFound, taskID)
	}
	t.PriorityRank = &rank
	f.tasks[taskID] = t
	f.rankWrites = append(f.rankWrites, rankWrite{taskID: taskID, rank: rank})
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, workspaceID, taskID string) (*Task, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, workspaceID string, t Task) error {
	if _, exists := f.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, workspaceID string, upd TaskUpdate) error {
	t, ok := f.tasks[upd.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, upd.ID)
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Assignee != nil {
		t.Assignee = *upd.Assignee
	}
	if upd.PriorityScore != nil {
		t.PriorityScore = *upd.PriorityScore
	}
	if upd.Pinned != nil {
		t.Pinned = *upd.Pinned
	}
	if upd.PinnedRank != nil {
		r := *upd.PinnedRank
		t.PinnedRank = &r
	}
	f.tasks[upd.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, workspaceID, taskID string) error {
	if _, ok := f.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	delete(f.tasks, taskID)
	f.deleted = append(f.deleted, taskID)
	return nil
}

var errStorageDown = errors.New("storage unavailable")
