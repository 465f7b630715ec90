package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	PendingStatus  Status = "PENDING"
	ProgressStatus Status = "PROGRESS"
	SuccessStatus  Status = "SUCCESS"
	ErrorStatus    Status = "ERROR"
)

// Task is one requested video-to-audio download. Only Status, UpdatedAt and
// Error ever change after creation, and only through the queue store.
type Task struct {
	ID            uuid.UUID `json:"id"`
	Index         int       `json:"index"` // display order, len(queue)+1 at creation
	Title         string    `json:"title"`
	VideoID       string    `json:"video_id"`
	VideoURL      string    `json:"video_url"`
	LengthSeconds string    `json:"length_seconds"`
	Thumbnail     string    `json:"thumbnail"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
	File          string    `json:"file,omitempty"` // base name of the delivered audio, set on SUCCESS
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FileName is the name the downloaded audio is requested under. The sink may
// adjust it; the name actually used ends up in File.
func (t *Task) FileName() string {
	return t.Title + ".mp3"
}
