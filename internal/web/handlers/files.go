package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/files"
	"github.com/kozaktomas/facegate/internal/web/middleware"
	"github.com/rs/zerolog/hlog"
)

// multipartOverhead is the room left for multipart headers and boundaries above MaxUploadSize.
const multipartOverhead = 1 << 20

// FilesHandler handles the caller's uploaded files. Routes sit behind RequireAuth.
type FilesHandler struct {
	service *files.Service
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(service *files.Service) *FilesHandler {
	return &FilesHandler{service: service}
}

// FileResponse is the public view of a stored file.
type FileResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	Type         string    `json:"type"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
	URL          string    `json:"url"`
	DuplicateOf  string    `json:"duplicateOf,omitempty"`
}

func newFileResponse(f *database.StoredFile) FileResponse {
	return FileResponse{
		ID:           f.ID,
		Filename:     f.Filename,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		MimeType:     f.MimeType,
		Type:         f.Kind,
		Width:        f.Width,
		Height:       f.Height,
		UploadedAt:   f.UploadedAt,
		URL:          "/api/v1/files/" + f.ID,
	}
}

// Upload stores one image, document or spreadsheet sent as multipart field "file" (or "photo").
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, files.MaxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(files.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, files.ErrTooLarge.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("photo")
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, files.MaxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	res, err := h.service.Save(r.Context(), identity.ID, files.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		respondDomainError(w, r, err, "upload file")
		return
	}

	resp := newFileResponse(res.File)
	resp.DuplicateOf = res.DuplicateOf
	respondJSON(w, http.StatusCreated, resp)
}

// List returns the caller's files, newest first.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	stored, err := h.service.List(r.Context(), identity.ID)
	if err != nil {
		respondDomainError(w, r, err, "list files")
		return
	}

	result := make([]FileResponse, 0, len(stored))
	for i := range stored {
		result = append(result, newFileResponse(&stored[i]))
	}
	respondJSON(w, http.StatusOK, result)
}

// Download streams a file owned by the caller.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	f, obj, err := h.service.Open(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err, "download file")
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=31536000")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("file_id", f.ID).Msg("download interrupted")
	}
}

// Thumbnail returns a JPEG preview of an image. Optional query parameter size (pixels, default 256).
func (h *FilesHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	size := files.DefaultThumbnailSize
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = n
	}

	data, err := h.service.Thumbnail(r.Context(), identity.ID, chi.URLParam(r, "id"), size)
	if err != nil {
		respondDomainError(w, r, err, "thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

// Delete removes a file owned by the caller.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), identity.ID, chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, r, err, "delete file")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}
