package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

type TaskQueued struct {
	eventID    uuid.UUID
	task       Task
	occurredAt time.Time
}

func NewTaskQueued(task Task) *TaskQueued {
	return &TaskQueued{
		eventID:    uuid.New(),
		task:       task,
		occurredAt: task.CreatedAt,
	}
}

func (e *TaskQueued) EventID() uuid.UUID     { return e.eventID }
func (e *TaskQueued) EventType() string      { return "TaskQueued" }
func (e *TaskQueued) AggregateID() uuid.UUID { return e.task.ID }
func (e *TaskQueued) OccurredAt() time.Time  { return e.occurredAt }

func (e *TaskQueued) Task() Task { return e.task }

func (e *TaskQueued) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		Task       Task      `json:"task"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		Task:       e.task,
		OccurredAt: e.occurredAt,
	})
}

type TaskStatusChanged struct {
	eventID    uuid.UUID
	taskID     uuid.UUID
	from       Status
	to         Status
	reason     string
	occurredAt time.Time
}

func NewTaskStatusChanged(taskID uuid.UUID, from, to Status, reason string) *TaskStatusChanged {
	return &TaskStatusChanged{
		eventID:    uuid.New(),
		taskID:     taskID,
		from:       from,
		to:         to,
		reason:     reason,
		occurredAt: time.Now(),
	}
}

func (e *TaskStatusChanged) EventID() uuid.UUID     { return e.eventID }
func (e *TaskStatusChanged) EventType() string      { return "TaskStatusChanged" }
func (e *TaskStatusChanged) AggregateID() uuid.UUID { return e.taskID }
func (e *TaskStatusChanged) OccurredAt() time.Time  { return e.occurredAt }

func (e *TaskStatusChanged) From() Status   { return e.from }
func (e *TaskStatusChanged) To() Status     { return e.to }
func (e *TaskStatusChanged) Reason() string { return e.reason }

func (e *TaskStatusChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		TaskID     uuid.UUID `json:"task_id"`
		From       Status    `json:"from"`
		To         Status    `json:"to"`
		Reason     string    `json:"reason,omitempty"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		TaskID:     e.taskID,
		From:       e.from,
		To:         e.to,
		Reason:     e.reason,
		OccurredAt: e.occurredAt,
	})
}
