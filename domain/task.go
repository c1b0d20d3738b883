package domain

// Status is the lifecycle state of a task. Only the open statuses take part
// in priority ranking; completed and cancelled tasks leave the pool.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPendingApproval Status = "pending_approval"
	StatusOverdue         Status = "overdue"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// OpenStatuses lists the statuses that participate in ranking, in the order
// used when building storage filters.
var OpenStatuses = []Status{StatusPending, StatusPendingApproval, StatusOverdue}

// Terminal reports whether a task in this status has left the ranking pool.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Known reports whether s is one of the declared statuses.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusPendingApproval, StatusOverdue, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Task represents a unit of brokerage work in the daily pool.
//
// PriorityScore is computed upstream (deal value, task type, days overdue).
// PriorityRank is owned exclusively by the ranker and holds the task's final
// 1-based position. PinnedRank is meaningful only while Pinned is true.
type Task struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Status        Status  `json:"status"`
	Assignee      string  `json:"assignee,omitempty"`
	PriorityScore float64 `json:"priorityScore"`
	CreatedAt     int64   `json:"createdAt"`
	Pinned        bool    `json:"pinned,omitempty"`
	PinnedRank    *int    `json:"pinnedRank,omitempty"`
	PriorityRank  *int    `json:"priorityRank,omitempty"`
}

// TaskUpdate carries partial updates for a task. Nil fields are untouched.
type TaskUpdate struct {
	ID            string
	Title         *string
	Status        *Status
	Assignee      *string
	PriorityScore *float64
	Pinned        *bool
	PinnedRank    *int
}
