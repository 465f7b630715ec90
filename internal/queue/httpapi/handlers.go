package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/models"
	"github.com/romariotrain/audio-queue/internal/queue/repository"
)

const maxBodyBytes = 1 << 16

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type TaskService interface {
	Submit(ctx context.Context, rawURL string) (*models.Task, error)
	Tasks(ctx context.Context) (repository.Snapshot, error)
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

type Handler struct {
	svc    TaskService
	logger zerolog.Logger
	now    func() time.Time
}

func New(svc TaskService, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With().Str("component", "httpapi").Logger(),
		now:    time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type indexPage struct {
	Alert  string
	URL    string
	Active bool
	Tasks  []TaskResponse
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, indexPage{})
}

// SubmitForm accepts the HTML form. Every outcome except an invalid URL
// redirects back to the list, which leaves the input empty.
func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.renderIndex(w, r, http.StatusBadRequest, indexPage{Alert: "Invalid form"})
		return
	}

	rawURL := r.PostFormValue("url")
	if _, err := h.svc.Submit(r.Context(), rawURL); err != nil {
		if errors.Is(err, models.ErrInvalidURL) {
			h.renderIndex(w, r, http.StatusBadRequest, indexPage{Alert: "Invalid URL", URL: rawURL})
			return
		}
		h.logger.Warn().Err(err).Str("url", rawURL).Msg("submission dropped")
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}

	task, err := h.svc.Submit(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidURL):
			writeErrorJSON(w, http.StatusBadRequest, "invalid url")
		case errors.Is(err, models.ErrEmptyMetadata):
			writeErrorJSON(w, http.StatusUnprocessableEntity, "video has no metadata")
		case errors.Is(err, models.ErrMetadataFetch):
			writeErrorJSON(w, http.StatusBadGateway, "metadata fetch failed")
		default:
			h.logger.Error().Err(err).Msg("create task")
			writeErrorJSON(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskResponse(task, h.now()))
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Tasks(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list tasks")
		writeErrorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toTaskList(snap.Tasks, snap.Version, h.now()))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	task, err := h.svc.GetTask(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			writeErrorJSON(w, http.StatusNotFound, "not found")
		case errors.Is(err, models.ErrInvalidArgument):
			writeErrorJSON(w, http.StatusBadRequest, "invalid argument")
		default:
			h.logger.Error().Err(err).Msg("get task")
			writeErrorJSON(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task, h.now()))
}

func (h *Handler) renderIndex(w http.ResponseWriter, r *http.Request, status int, page indexPage) {
	snap, err := h.svc.Tasks(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list tasks")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	page.Tasks = toTaskList(snap.Tasks, snap.Version, h.now()).Tasks
	for _, t := range page.Tasks {
		if t.Status == string(models.PendingStatus) || t.Status == string(models.ProgressStatus) {
			page.Active = true
			break
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, page); err != nil {
		h.logger.Error().Err(err).Msg("render index")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
