package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/http/response"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/service"
)

type AdminHandler struct {
	userSvc service.UserAdminServiceInterface
}

func NewAdminHandler(userSvc service.UserAdminServiceInterface) *AdminHandler {
	return &AdminHandler{userSvc: userSvc}
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,max=255"`
	FullName string `json:"full_name" validate:"required,max=255"`
	IsAdmin  bool   `json:"is_admin"`
}

// updateUserRequest carries optional flag changes; absent fields are left
// untouched.
type updateUserRequest struct {
	IsAdmin  *bool `json:"is_admin"`
	IsActive *bool `json:"is_active"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	pageReq, err := parsePageRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	page, err := h.userSvc.ListUsers(r.Context(), pageReq)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, paginatedData(page))
}

// CreateUser returns the generated temporary password exactly once.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user payload", validationDetails(err))
		return
	}
	created, err := h.userSvc.CreateUser(r.Context(), service.CreateUserInput{
		Email:       req.Email,
		FullName:    req.FullName,
		IsAdmin:     req.IsAdmin,
		CreatedByID: &actorID,
	})
	if err != nil {
		h.audit(r, "admin.user.create", actorID, "", "create", "failure", reasonFor(err))
		writeServiceError(w, r, err)
		return
	}
	h.audit(r, "admin.user.create", actorID, idString(created.User.ID), "create", "success", "admin_request")
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"user":          created.User,
		"temp_password": created.TempPassword,
	})
}

func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user id", nil)
		return
	}
	temp, err := h.userSvc.ResetPassword(r.Context(), id)
	if err != nil {
		h.audit(r, "admin.user.reset_password", actorID, idString(id), "reset_password", "failure", reasonFor(err))
		writeServiceError(w, r, err)
		return
	}
	h.audit(r, "admin.user.reset_password", actorID, idString(id), "reset_password", "success", "admin_request")
	response.JSON(w, r, http.StatusOK, map[string]any{"user_id": id, "temp_password": temp})
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	id, err := parsePathID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user id", nil)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user payload", validationDetails(err))
		return
	}
	if req.IsAdmin == nil && req.IsActive == nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "nothing to update", nil)
		return
	}
	// An administrator cannot lock themselves out of the admin surface.
	if id == actorID && ((req.IsAdmin != nil && !*req.IsAdmin) || (req.IsActive != nil && !*req.IsActive)) {
		response.Error(w, r, http.StatusConflict, "SELF_LOCKOUT", "cannot remove your own admin access", nil)
		return
	}

	var user *domain.User
	if req.IsAdmin != nil {
		if user, err = h.userSvc.SetAdmin(r.Context(), id, *req.IsAdmin); err != nil {
			h.audit(r, "admin.user.update", actorID, idString(id), "set_admin", "failure", reasonFor(err))
			writeServiceError(w, r, err)
			return
		}
		h.audit(r, "admin.user.update", actorID, idString(id), "set_admin", "success", "is_admin="+strconv.FormatBool(*req.IsAdmin))
	}
	if req.IsActive != nil {
		if user, err = h.userSvc.SetActive(r.Context(), id, *req.IsActive); err != nil {
			h.audit(r, "admin.user.update", actorID, idString(id), "set_active", "failure", reasonFor(err))
			writeServiceError(w, r, err)
			return
		}
		h.audit(r, "admin.user.update", actorID, idString(id), "set_active", "success", "is_active="+strconv.FormatBool(*req.IsActive))
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AdminHandler) audit(r *http.Request, event string, actorID uint, targetID, action, outcome, reason string) {
	observability.Audit(r, observability.AuditInput{
		EventName:   event,
		ActorUserID: idString(actorID),
		TargetType:  "user",
		TargetID:    targetID,
		Action:      action,
		Outcome:     outcome,
		Reason:      reason,
	})
}

func idString(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func reasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, service.ErrEmailExists):
		return "email_exists"
	case errors.Is(err, service.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, service.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
