package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sandeepkv93/observation-service/internal/http/middleware"
	"github.com/sandeepkv93/observation-service/internal/http/response"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/security"
	"github.com/sandeepkv93/observation-service/internal/service"
)

const (
	resumePath           = "/api/v1/auth/resume"
	invalidLoginMessage  = "invalid email or password"
	invalidResumeMessage = "login link is invalid or expired"
)

type AuthHandler struct {
	authSvc       service.AuthServiceInterface
	cookieMgr     *security.CookieManager
	publicBaseURL string
}

func NewAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, publicBaseURL string) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, cookieMgr: cookieMgr, publicBaseURL: publicBaseURL}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

type logoutRequest struct {
	ContinuityToken string `json:"continuity_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		status = "bad_request"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid login payload", validationDetails(err))
		return
	}
	result, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status = "failure"
		switch {
		case errors.Is(err, service.ErrAccountLocked):
			observability.Audit(r, observability.AuditInput{EventName: "auth.login", TargetType: "user", Action: "login", Outcome: "failure", Reason: "locked"})
		case errors.Is(err, service.ErrInvalidCredentials):
			observability.Audit(r, observability.AuditInput{EventName: "auth.login", TargetType: "user", Action: "login", Outcome: "failure", Reason: "invalid_credentials"})
		default:
			status = "error"
			observability.Audit(r, observability.AuditInput{EventName: "auth.login", TargetType: "user", Action: "login", Outcome: "error", Reason: "internal"}, "error", err.Error())
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
			return
		}
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", invalidLoginMessage, nil)
		return
	}
	if !h.writeSession(w, r, result) {
		status = "error"
		return
	}
	uid := strconv.FormatUint(uint64(result.User.ID), 10)
	observability.Audit(r, observability.AuditInput{EventName: "auth.login", ActorUserID: uid, TargetType: "user", TargetID: uid, Action: "login", Outcome: "success", Reason: "password"})
}

// Resume trades the t parameter of a resume URL for a new session. The
// continuity token is neither rotated nor reissued.
func (h *AuthHandler) Resume(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "resume", status, time.Since(start))
	}()

	token, err := DecodeResumeParam(r.URL.Query().Get("t"))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{EventName: "auth.resume", TargetType: "continuity_token", Action: "resume", Outcome: "failure", Reason: "malformed"})
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CONTINUITY_TOKEN", invalidResumeMessage, nil)
		return
	}
	result, err := h.authSvc.Resume(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidContinuityToken) {
			status = "failure"
			observability.Audit(r, observability.AuditInput{EventName: "auth.resume", TargetType: "continuity_token", Action: "resume", Outcome: "failure", Reason: "unknown_or_expired"})
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CONTINUITY_TOKEN", invalidResumeMessage, nil)
			return
		}
		status = "error"
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "resume failed", nil)
		return
	}
	if !h.writeSession(w, r, result) {
		status = "error"
		return
	}
	uid := strconv.FormatUint(uint64(result.User.ID), 10)
	observability.Audit(r, observability.AuditInput{EventName: "auth.resume", ActorUserID: uid, TargetType: "user", TargetID: uid, Action: "resume", Outcome: "success", Reason: "continuity_token"})
}

// Logout clears session cookies and revokes the continuity token passed in
// the body or as t. It succeeds without a token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "logout", status, time.Since(start))
	}()

	raw := r.URL.Query().Get("t")
	if r.ContentLength > 0 {
		var req logoutRequest
		if err := decodeJSON(r, &req); err != nil {
			status = "bad_request"
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid logout payload", validationDetails(err))
			return
		}
		if req.ContinuityToken != "" {
			raw = req.ContinuityToken
		}
	}
	if raw != "" {
		token, err := DecodeResumeParam(raw)
		if err == nil {
			if err := h.authSvc.Logout(r.Context(), token); err != nil {
				status = "error"
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "logout failed", nil)
				return
			}
		}
	}
	h.cookieMgr.ClearSessionCookies(w)
	observability.Audit(r, observability.AuditInput{EventName: "auth.logout", TargetType: "session", Action: "logout", Outcome: "success", Reason: "user_request"})
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "change_password", status, time.Since(start))
	}()

	uid, ok := currentUserID(w, r)
	if !ok {
		status = "failure"
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		status = "bad_request"
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid password payload", validationDetails(err))
		return
	}
	if err := h.authSvc.ChangePassword(r.Context(), uid, req.NewPassword); err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	result, err := h.authSvc.Session(r.Context(), uid)
	if err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	if !h.writeSession(w, r, result) {
		status = "error"
		return
	}
	id := strconv.FormatUint(uint64(uid), 10)
	observability.Audit(r, observability.AuditInput{EventName: "auth.password.change", ActorUserID: id, TargetType: "user", TargetID: id, Action: "change_password", Outcome: "success", Reason: "self_service"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUserID(w, r)
	if !ok {
		return
	}
	user, err := h.authSvc.Me(r.Context(), uid)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, r *http.Request, result *service.LoginResult) bool {
	csrf, err := security.NewRandomString(32)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to create session", nil)
		return false
	}
	h.cookieMgr.SetSessionCookies(w, result.SessionToken, csrf, time.Until(result.SessionExpiresAt))
	data := map[string]any{
		"user":                 result.User,
		"session_token":        result.SessionToken,
		"session_expires_at":   result.SessionExpiresAt,
		"csrf_token":           csrf,
		"must_change_password": result.User.MustChangePassword,
	}
	if result.ContinuityToken != "" {
		data["resume_url"] = h.ResumeURL(result.ContinuityToken)
		data["continuity_expires_at"] = result.ContinuityExpiresAt
	}
	response.JSON(w, r, http.StatusOK, data)
	return true
}

// ResumeURL builds the shareable resume link for a raw continuity token.
func (h *AuthHandler) ResumeURL(token string) string {
	q := url.Values{}
	q.Set("t", EncodeResumeParam(token))
	return h.publicBaseURL + resumePath + "?" + q.Encode()
}

// EncodeResumeParam wraps a raw continuity token for the t query parameter.
// The wrapping is cosmetic; decoding a value proves nothing about it.
func EncodeResumeParam(token string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(token))
}

func DecodeResumeParam(v string) (string, error) {
	if v == "" {
		return "", errors.New("empty token")
	}
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		b, err = base64.URLEncoding.DecodeString(v)
		if err != nil {
			return "", err
		}
	}
	if len(b) == 0 {
		return "", errors.New("empty token")
	}
	return string(b), nil
}

func currentUserID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return 0, false
	}
	uid, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return 0, false
	}
	return uid, true
}

// writeServiceError maps service sentinels to stable error codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, service.ErrUserNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
	case errors.Is(err, service.ErrEmailExists):
		response.Error(w, r, http.StatusConflict, "EMAIL_EXISTS", "email already registered", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "account unavailable", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
