package models

import "time"

// Status is the lifecycle state of a todo.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in progress"
	StatusFinished   Status = "finished"
)

// Transition is one step of the status state machine.
type Transition struct {
	From Status
	To   Status
}

// Transitions lists every status change an advance performs, in order.
// Finished is terminal and any status not listed here is left as is.
var Transitions = []Transition{
	{From: StatusOpen, To: StatusInProgress},
	{From: StatusInProgress, To: StatusFinished},
}

// Next returns the status an advance moves s to.
func (s Status) Next() Status {
	for _, t := range Transitions {
		if t.From == s {
			return t.To
		}
	}
	return s
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusFinished:
		return true
	}
	return false
}

// Todo represents a todo item.
type Todo struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// Event actions published after a successful mutation.
const (
	ActionCreated            = "created"
	ActionStatusAdvanced     = "status_advanced"
	ActionDescriptionUpdated = "description_updated"
	ActionDeleted            = "deleted"
)

// TodoEvent is the message payload for Kafka change events.
type TodoEvent struct {
	Action      string    `json:"action"`
	ID          int64     `json:"id"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
