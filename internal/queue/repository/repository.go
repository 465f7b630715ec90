package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/romariotrain/audio-queue/internal/queue/models"
)

// Snapshot is an immutable view of the queue. Version grows by one with every
// mutation, so observers can tell whether they have already seen a state.
type Snapshot struct {
	Version uint64
	Tasks   []models.Task
}

type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// Transition moves a task to a new status. detail is the failure message
	// for ERROR and the delivered file name for SUCCESS; other moves ignore it.
	Transition(ctx context.Context, id uuid.UUID, to models.Status, detail string) (*models.Task, error)
	NextPending(ctx context.Context) (*models.Task, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}
