package handler

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const archivePrefix = "archive/"

var archiveKinds = map[string]bool{"opportunities": true, "slippage_feedback": true}

// ArchiveHandler lists and serves the JSONL files written to cold storage.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger.With(slog.String("handler", "archive"))}
}

// List GET /api/archive/{kind}
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !archiveKinds[kind] {
		writeError(w, http.StatusNotFound, "unknown archive kind")
		return
	}
	files, err := h.blobs.List(r.Context(), archivePrefix+kind+"/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list archive")
		return
	}
	if files == nil {
		files = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "count": len(files), "files": files})
}

// Get GET /api/archive/{kind}/{day}/{file}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := archiveKey(r.PathValue("kind"), r.PathValue("day"), r.PathValue("file"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}
	exists, err := h.blobs.Exists(r.Context(), key)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive lookup failed", slog.String("path", key), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read archive")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	body, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive read failed", slog.String("path", key), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted", slog.String("path", key), slog.String("error", err.Error()))
	}
}

// archiveKey rebuilds the object key and rejects anything that could escape
// the archive prefix.
func archiveKey(kind, day, file string) (string, bool) {
	if !archiveKinds[kind] || day == "" || file == "" {
		return "", false
	}
	for _, part := range []string{day, file} {
		if strings.ContainsAny(part, `/\`) || strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	if path.Ext(file) != ".jsonl" {
		return "", false
	}
	return archivePrefix + kind + "/" + day + "/" + file, true
}
