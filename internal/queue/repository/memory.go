package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/audio-queue/internal/queue/domain"
	"github.com/romariotrain/audio-queue/internal/queue/models"
)

// MemoryRepository keeps the session queue in memory. Every mutation replaces
// the task slice wholesale; a published slice is never written to again.
type MemoryRepository struct {
	mu       sync.RWMutex
	snap     Snapshot
	position map[uuid.UUID]int
	clock    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		position: make(map[uuid.UUID]int),
		clock:    time.Now,
	}
}

// Create appends t to the end of the queue as PENDING and assigns its Index.
func (r *MemoryRepository) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if t == nil || t.ID == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if t.Status != "" && t.Status != models.PendingStatus {
		return nil, fmt.Errorf("%w: new task must be %s, got %s", models.ErrInvalidArgument, models.PendingStatus, t.Status)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.position[t.ID]; exists {
		return nil, fmt.Errorf("%w: task %s already queued", models.ErrInvalidArgument, t.ID)
	}

	cp := *t
	cp.Index = len(r.snap.Tasks) + 1
	cp.Status = models.PendingStatus
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}

	r.position[cp.ID] = len(r.snap.Tasks)
	r.publish(appendTask(r.snap.Tasks, cp))

	return &cp, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.position[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := r.snap.Tasks[i]
	return &cp, nil
}

// Transition moves one task to a new status. detail becomes the task's Error
// on ERROR and its File on SUCCESS.
func (r *MemoryRepository) Transition(ctx context.Context, id uuid.UUID, to models.Status, detail string) (*models.Task, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.position[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	cur := r.snap.Tasks[i]
	fromDom, err := toDomainStatus(cur.Status)
	if err != nil {
		return nil, err
	}
	toDom, err := toDomainStatus(to)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(fromDom, toDom); err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}

	cur.Status = to
	cur.UpdatedAt = r.clock()
	cur.Error = ""
	switch to {
	case models.ErrorStatus:
		cur.Error = detail
	case models.SuccessStatus:
		cur.File = detail
	}

	r.publish(replaceTask(r.snap.Tasks, i, cur))

	return &cur, nil
}

// NextPending returns the first PENDING task in insertion order, or
// models.ErrNotFound when nothing is waiting.
func (r *MemoryRepository) NextPending(ctx context.Context) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.snap.Tasks {
		if t.Status == models.PendingStatus {
			cp := t
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryRepository) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Callers get their own slice header and backing array so they cannot
	// reach into the published one.
	return Snapshot{
		Version: r.snap.Version,
		Tasks:   slices.Clone(r.snap.Tasks),
	}, nil
}

// publish must be called with mu held.
func (r *MemoryRepository) publish(tasks []models.Task) {
	r.snap = Snapshot{
		Version: r.snap.Version + 1,
		Tasks:   tasks,
	}
}

func appendTask(tasks []models.Task, t models.Task) []models.Task {
	next := make([]models.Task, len(tasks), len(tasks)+1)
	copy(next, tasks)
	return append(next, t)
}

func replaceTask(tasks []models.Task, i int, t models.Task) []models.Task {
	next := slices.Clone(tasks)
	next[i] = t
	return next
}

func toDomainStatus(s models.Status) (domain.Status, error) {
	switch s {
	case models.PendingStatus:
		return domain.Pending, nil
	case models.ProgressStatus:
		return domain.Progress, nil
	case models.SuccessStatus:
		return domain.Success, nil
	case models.ErrorStatus:
		return domain.Error, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownStatus, s)
	}
}
