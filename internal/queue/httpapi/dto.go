package httpapi

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/audio-queue/internal/queue/format"
	"github.com/romariotrain/audio-queue/internal/queue/models"
)

type CreateTaskRequest struct {
	URL string `json:"url"`
}

type TaskResponse struct {
	ID            uuid.UUID `json:"id"`
	Index         int       `json:"index"`
	Title         string    `json:"title"`
	VideoID       string    `json:"video_id"`
	VideoURL      string    `json:"video_url"`
	Thumbnail     string    `json:"thumbnail"`
	LengthSeconds string    `json:"length_seconds"`
	Duration      string    `json:"duration"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	File          string    `json:"file,omitempty"`
	LastSeen      string    `json:"last_seen"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type TaskListResponse struct {
	Version uint64         `json:"version"`
	Tasks   []TaskResponse `json:"tasks"`
}

func toTaskResponse(t *models.Task, now time.Time) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		Index:         t.Index,
		Title:         t.Title,
		VideoID:       t.VideoID,
		VideoURL:      t.VideoURL,
		Thumbnail:     t.Thumbnail,
		LengthSeconds: t.LengthSeconds,
		Duration:      format.DurationString(t.LengthSeconds),
		Status:        string(t.Status),
		Error:         t.Error,
		LastSeen:      format.LastSeen(t.CreatedAt, now),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.Status == models.SuccessStatus && t.File != "" {
		resp.File = "/files/" + url.PathEscape(t.File)
	}
	return resp
}

// toTaskList returns the newest task first.
func toTaskList(tasks []models.Task, version uint64, now time.Time) TaskListResponse {
	out := TaskListResponse{Version: version, Tasks: make([]TaskResponse, 0, len(tasks))}
	for i := len(tasks) - 1; i >= 0; i-- {
		out.Tasks = append(out.Tasks, toTaskResponse(&tasks[i], now))
	}
	return out
}
