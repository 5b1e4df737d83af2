package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"DropFM/config"
	"DropFM/core/acquire"
	"DropFM/core/auth"
	"DropFM/core/ingest"
	"DropFM/core/pipeline"
	"DropFM/core/progress"
	"DropFM/logger"
	"DropFM/model"
	"DropFM/repository"

	"github.com/gorilla/mux"
)

// multipartOverhead is allowed on top of the total size limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// Submitter starts upload attempts.
type Submitter interface {
	Submit(ctx context.Context, owner model.Owner, req ingest.SubmitRequest) (int64, error)
}

// APIHandler holds the collaborators shared by all handlers.
type APIHandler struct {
	ingest   Submitter
	logs     repository.UploadLogRepository
	users    repository.UserRepository
	settings repository.SettingRepository
	tokens   *auth.TokenManager
	progress progress.Broker
	cfg      *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	ingest Submitter,
	logs repository.UploadLogRepository,
	users repository.UserRepository,
	settings repository.SettingRepository,
	tokens *auth.TokenManager,
	broker progress.Broker,
	cfg *config.Config,
) *APIHandler {
	if broker == nil {
		broker = progress.Nop{}
	}
	return &APIHandler{
		ingest:   ingest,
		logs:     logs,
		users:    users,
		settings: settings,
		tokens:   tokens,
		progress: broker,
		cfg:      cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSubmitResult maps a Submit outcome to a response. Rejected input is a
// 400 with no attempt; a store failure is a 500; any other failure already
// has a failed log row, which is reported with its id.
func writeSubmitResult(w http.ResponseWriter, id int64, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"attemptId": id,
			"status":    model.UploadStatusProcessing,
		})
	case errors.Is(err, pipeline.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrStore):
		logger.Error("Upload log unavailable", logger.AttemptID(id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to record upload")
	case id > 0:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"attemptId": id,
			"status":    model.UploadStatusFailed,
			"error":     err.Error(),
		})
	default:
		logger.Error("Upload could not start", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "upload could not start")
	}
}

// UploadHandler accepts a multipart form whose "files" fields are audio files.
// URL: POST /api/upload
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := h.cfg.MaxTotalSizeBytes() + multipartOverhead
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the total size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB in memory, the rest spills to disk
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the total size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	parts := make([]acquire.FilePart, 0, len(headers))
	for _, fh := range headers {
		parts = append(parts, filePart(fh))
	}

	id, err := h.ingest.Submit(r.Context(), user.Owner(), ingest.SubmitRequest{Kind: model.SourceFile, Files: parts})
	writeSubmitResult(w, id, err)
}

func filePart(fh *multipart.FileHeader) acquire.FilePart {
	return acquire.FilePart{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

type urlRequest struct {
	URL string `json:"url"`
}

// YouTubeHandler URL: POST /api/youtube
func (h *APIHandler) YouTubeHandler(w http.ResponseWriter, r *http.Request) {
	h.submitURL(w, r, model.SourceYouTube)
}

// SpotifyHandler URL: POST /api/spotify
func (h *APIHandler) SpotifyHandler(w http.ResponseWriter, r *http.Request) {
	h.submitURL(w, r, model.SourceSpotify)
}

func (h *APIHandler) submitURL(w http.ResponseWriter, r *http.Request, kind model.SourceKind) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req urlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.ingest.Submit(r.Context(), user.Owner(), ingest.SubmitRequest{Kind: kind, Source: req.URL})
	writeSubmitResult(w, id, err)
}

// ListUploadsHandler returns the caller's upload log. Admins may pass all=1.
// URL: GET /api/uploads?status=&type=&limit=&offset=
func (h *APIHandler) ListUploadsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	q := r.URL.Query()
	filter := model.UploadLogFilter{
		UserID:     user.ID,
		Status:     model.UploadStatus(q.Get("status")),
		SourceKind: model.SourceKind(q.Get("type")),
	}
	if q.Get("all") == "1" && user.IsAdmin {
		filter.UserID = 0
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	entries, err := h.logs.List(r.Context(), filter)
	if err != nil {
		logger.Error("Failed to list uploads", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}
	if entries == nil {
		entries = []*model.UploadLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

// GetUploadHandler URL: GET /api/uploads/{id}
func (h *APIHandler) GetUploadHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.loadOwnedUpload(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// loadOwnedUpload resolves {id} and hides other users' attempts behind 404.
func (h *APIHandler) loadOwnedUpload(w http.ResponseWriter, r *http.Request) (*model.UploadLog, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid upload id")
		return nil, false
	}
	entry, err := h.logs.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to load upload", logger.AttemptID(id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load upload")
		return nil, false
	}
	if entry == nil || (entry.UserID != user.ID && !user.IsAdmin) {
		writeError(w, http.StatusNotFound, "upload not found")
		return nil, false
	}
	return entry, true
}
