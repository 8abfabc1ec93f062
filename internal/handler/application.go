package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mmonster/booster-apply/internal/auth"
	"github.com/mmonster/booster-apply/internal/domain"
	"github.com/mmonster/booster-apply/internal/wizard"
)

// ApplicationHandler exposes the wizard over HTTP. Each authenticated
// request resolves the caller's live controller through the registry.
type ApplicationHandler struct {
	registry *wizard.Registry
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(registry *wizard.Registry) *ApplicationHandler {
	return &ApplicationHandler{registry: registry}
}

type applicationView struct {
	Step   domain.Step               `json:"step"`
	Record *domain.ApplicationRecord `json:"record"`
}

func (h *ApplicationHandler) controller(r *http.Request) (*wizard.Controller, error) {
	return h.registry.Acquire(r.Context(), auth.SubjectFromContext(r.Context()))
}

func respondSnapshot(w http.ResponseWriter, ctrl *wizard.Controller) {
	step, record := ctrl.Snapshot()
	RespondJSON(w, http.StatusOK, applicationView{Step: step, Record: record})
}

// Get handles GET /application.
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	respondSnapshot(w, ctrl)
}

type updateInput struct {
	Step string          `json:"step"`
	Data json.RawMessage `json:"data"`
}

// Update handles POST /application/updates. The body names the step whose
// fields it carries; unknown steps and unknown fields are rejected.
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input updateInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION_ERROR",
			"message": "invalid request body",
		})
		return
	}

	update, err := domain.DecodeStepUpdate(input.Step, input.Data)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	ctrl, err := h.controller(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := ctrl.UpdateRecord(update); err != nil {
		RespondError(w, err)
		return
	}
	respondSnapshot(w, ctrl)
}

// Advance handles POST /application/advance.
func (h *ApplicationHandler) Advance(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := ctrl.AdvanceStep(); err != nil {
		RespondError(w, err)
		return
	}
	respondSnapshot(w, ctrl)
}

// Retreat handles POST /application/retreat.
func (h *ApplicationHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := ctrl.RetreatStep(); err != nil {
		RespondError(w, err)
		return
	}
	respondSnapshot(w, ctrl)
}

// Submit handles POST /application/submit.
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := ctrl.Submit(r.Context()); err != nil {
		RespondError(w, err)
		return
	}
	respondSnapshot(w, ctrl)
}

// Reopen handles POST /application/reopen.
func (h *ApplicationHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := ctrl.ReopenForEditing(r.Context()); err != nil {
		RespondError(w, err)
		return
	}
	respondSnapshot(w, ctrl)
}
