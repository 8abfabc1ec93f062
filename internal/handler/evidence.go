package handler

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/mmonster/booster-apply/internal/auth"
	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/provider"
	"github.com/mmonster/booster-apply/internal/wizard"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 4 << 20

// EvidenceHandler manages proof-of-work screenshot uploads. Storage writes
// and the evidence list on the application record move together: an upload
// that stores successfully is immediately recorded, and a delete removes
// the record entry after the object is gone.
type EvidenceHandler struct {
	registry *wizard.Registry
	store    *provider.EvidenceStore
}

// NewEvidenceHandler creates a new EvidenceHandler.
func NewEvidenceHandler(registry *wizard.Registry, store *provider.EvidenceStore) *EvidenceHandler {
	return &EvidenceHandler{registry: registry, store: store}
}

// Upload handles POST /evidence. The multipart field "file" carries the
// screenshot; count, size, and type limits are enforced before storage.
func (h *EvidenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	discordID := auth.SubjectFromContext(r.Context())
	ctrl, err := h.registry.Acquire(r.Context(), discordID)
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		RespondError(w, domain.ErrValidation("multipart form with a file field is required"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		RespondError(w, domain.ErrValidation("file field is required"))
		return
	}
	defer file.Close()

	_, record := ctrl.Snapshot()
	uploaded, err := h.store.Upload(r.Context(), discordID,
		header.Filename, header.Header.Get("Content-Type"), len(record.EvidenceFiles), file)
	if err != nil {
		RespondError(w, err)
		return
	}

	files := append(slices.Clone(record.EvidenceFiles), uploaded)
	if err := ctrl.UpdateRecord(domain.EvidenceUpdate{Files: files}); err != nil {
		// The object is stored but unrecorded; drop it so the two sides
		// cannot drift.
		_ = h.store.Delete(r.Context(), discordID, uploaded.StorageRef)
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, uploaded)
}

// List handles GET /evidence.
func (h *EvidenceHandler) List(w http.ResponseWriter, r *http.Request) {
	discordID := auth.SubjectFromContext(r.Context())
	if _, err := h.registry.Acquire(r.Context(), discordID); err != nil {
		RespondError(w, err)
		return
	}

	files, err := h.store.List(r.Context(), discordID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

// Delete handles DELETE /evidence/*. The wildcard is the storage ref, which
// contains the identity's folder prefix.
func (h *EvidenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	discordID := auth.SubjectFromContext(r.Context())
	ctrl, err := h.registry.Acquire(r.Context(), discordID)
	if err != nil {
		RespondError(w, err)
		return
	}

	storageRef := chi.URLParam(r, "*")
	if storageRef == "" {
		RespondError(w, domain.ErrValidation("storage ref is required"))
		return
	}

	if err := h.store.Delete(r.Context(), discordID, storageRef); err != nil {
		RespondError(w, err)
		return
	}

	_, record := ctrl.Snapshot()
	files := slices.DeleteFunc(slices.Clone(record.EvidenceFiles), func(f domain.EvidenceFile) bool {
		return f.StorageRef == storageRef
	})
	if err := ctrl.UpdateRecord(domain.EvidenceUpdate{Files: files}); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusNoContent, nil)
}
