package handler

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	"github.com/pesio-ai/be-brgy-identity/internal/service"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	auth     *service.AuthService
	accounts *service.AccountService
	identity *service.IdentityService
	audit    *service.AuditService
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	auth *service.AuthService,
	accounts *service.AccountService,
	identity *service.IdentityService,
	audit *service.AuditService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		auth:     auth,
		accounts: accounts,
		identity: identity,
		audit:    audit,
		log:      log,
	}
}

type accountResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	ResidentID  *string    `json:"resident_id,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAccountResponse(a *repository.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Username:    a.Username,
		Role:        string(a.Role),
		Status:      string(a.Status),
		ResidentID:  a.ResidentID,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

func toAccountResponses(accounts []*repository.Account) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}

type residentResponse struct {
	ID             string     `json:"id"`
	FirstName      string     `json:"first_name"`
	MiddleName     *string    `json:"middle_name,omitempty"`
	LastName       string     `json:"last_name"`
	Suffix         *string    `json:"suffix,omitempty"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Address        string     `json:"address"`
	ContactNumber  *string    `json:"contact_number,omitempty"`
	Email          *string    `json:"email,omitempty"`
	DocumentStatus string     `json:"document_status"`
}

func toResidentResponse(r *repository.Resident) residentResponse {
	return residentResponse{
		ID:             r.ID,
		FirstName:      r.FirstName,
		MiddleName:     r.MiddleName,
		LastName:       r.LastName,
		Suffix:         r.Suffix,
		BirthDate:      r.BirthDate,
		Address:        r.Address,
		ContactNumber:  r.ContactNumber,
		Email:          r.Email,
		DocumentStatus: string(r.DocumentStatus),
	}
}

type challengeResponse struct {
	AccountID string    `json:"account_id"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

func toChallengeResponse(c *service.Challenge) challengeResponse {
	return challengeResponse{
		AccountID: c.AccountID,
		Purpose:   string(c.Purpose),
		ExpiresAt: c.ExpiresAt,
		Code:      c.Code,
	}
}

type tokenResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	Account      *accountResponse `json:"account,omitempty"`
}

// Health reports liveness
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Register handles resident self-registration
func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName  string  `json:"first_name"`
		MiddleName *string `json:"middle_name"`
		LastName   string  `json:"last_name"`
		Username   string  `json:"username"`
		Password   string  `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	account, err := h.identity.SelfRegister(r.Context(), &service.SelfRegisterRequest{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Username:   req.Username,
		Password:   req.Password,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// Login handles the password step and returns a code challenge
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	challenge, err := h.auth.StartLogin(r.Context(), &service.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toChallengeResponse(challenge))
}

// VerifyLogin handles the code step and returns tokens
func (h *HTTPHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Code       string `json:"code"`
		DeviceName string `json:"device_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	resp, err := h.auth.CompleteLogin(r.Context(), &service.VerifyLoginRequest{
		Username:   req.Username,
		Code:       req.Code,
		DeviceName: req.DeviceName,
		IPAddress:  clientIP(r),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	account := toAccountResponse(resp.Account)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		Account:      &account,
	})
}

// RefreshToken handles refresh token HTTP requests
func (h *HTTPHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	pair, err := h.auth.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Logout handles logout HTTP requests
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if err := h.auth.Logout(r.Context(), claims.AccountID, claims.SessionID); err != nil {
		writeError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword issues a password reset code
func (h *HTTPHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	challenge, err := h.auth.RequestPasswordReset(r.Context(), req.Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toChallengeResponse(challenge))
}

// ResetPassword consumes a reset code and sets a new password
func (h *HTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	err := h.auth.ResetPassword(r.Context(), &service.ResetPasswordRequest{
		Username:    req.Username,
		Code:        req.Code,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword changes the signed-in account's password
func (h *HTTPHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LookupResident checks whether a name identifies exactly one resident
func (h *HTTPHandler) LookupResident(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var middle *string
	if m := q.Get("middle_name"); m != "" {
		middle = &m
	}

	resident, err := h.identity.ValidateResidentExists(r.Context(), q.Get("first_name"), q.Get("last_name"), middle)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resident_id":     resident.ID,
		"document_status": resident.DocumentStatus,
	})
}

// CreateResident adds a resident record to the registry
func (h *HTTPHandler) CreateResident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName     string  `json:"first_name"`
		MiddleName    *string `json:"middle_name"`
		LastName      string  `json:"last_name"`
		Suffix        *string `json:"suffix"`
		BirthDate     *string `json:"birth_date"`
		Address       string  `json:"address"`
		ContactNumber *string `json:"contact_number"`
		Email         *string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	resident := &repository.Resident{
		FirstName:     req.FirstName,
		MiddleName:    req.MiddleName,
		LastName:      req.LastName,
		Suffix:        req.Suffix,
		Address:       req.Address,
		ContactNumber: req.ContactNumber,
		Email:         req.Email,
	}
	if req.BirthDate != nil && *req.BirthDate != "" {
		bd, err := time.Parse(time.DateOnly, *req.BirthDate)
		if err != nil {
			writeError(w, h.log, apperr.InvalidInput("birth_date must be YYYY-MM-DD"))
			return
		}
		resident.BirthDate = &bd
	}

	created, err := h.identity.RegisterResident(r.Context(), resident, actorID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResidentResponse(created))
}

// ApproveResidentDocuments marks a resident's documents approved
func (h *HTTPHandler) ApproveResidentDocuments(w http.ResponseWriter, r *http.Request) {
	promoted, err := h.identity.ApproveResidentDocuments(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"activated_accounts": toAccountResponses(promoted)})
}

// CreateAccount handles admin-assisted account creation
func (h *HTTPHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResidentID *string `json:"resident_id"`
		Username   string  `json:"username"`
		Password   string  `json:"password"`
		Role       string  `json:"role"`
		Active     bool    `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), &service.CreateAccountRequest{
		ResidentID: req.ResidentID,
		Username:   req.Username,
		Password:   req.Password,
		Role:       repository.Role(req.Role),
		Active:     req.Active,
		CreatedBy:  actorID(r),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// ListAccounts handles list accounts HTTP requests
func (h *HTTPHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.accounts.ListAccounts(r.Context(), repository.AccountStatus(q.Get("status")), page, pageSize)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":  toAccountResponses(result.Accounts),
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

// ApproveAccount promotes a pending account
func (h *HTTPHandler) ApproveAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.identity.ApproveAccount(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// DeactivateAccount deactivates an account
func (h *HTTPHandler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Deactivate(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// LinkResident links an account to a resident record
func (h *HTTPHandler) LinkResident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResidentID string `json:"resident_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	account, err := h.identity.LinkResident(r.Context(), chi.URLParam(r, "id"), req.ResidentID, actorID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// AutoApprove promotes the pending account matching a full name
func (h *HTTPHandler) AutoApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	account, err := h.identity.AutoApproveByName(r.Context(), req.FullName, actorID(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// ListAudit returns recent audit entries
func (h *HTTPHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.audit.List(r.Context(), r.URL.Query().Get("actor_id"), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":         e.ID,
			"actor_id":   e.ActorID,
			"action":     e.Action,
			"detail":     e.Detail,
			"created_at": e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// RecordAudit appends an entry on behalf of another barangay subsystem.
// actor_id and occurred_at default to the caller and the current time. An
// entry recorded for someone else names the recording account in its detail.
func (h *HTTPHandler) RecordAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID    *string    `json:"actor_id"`
		Action     string     `json:"action"`
		Detail     string     `json:"detail"`
		OccurredAt *time.Time `json:"occurred_at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	actor, detail := actorID(r), req.Detail
	if req.ActorID != nil && *req.ActorID != "" && (actor == nil || *req.ActorID != *actor) {
		if actor != nil {
			detail = strings.TrimSpace(detail + " (recorded by " + *actor + ")")
		}
		actor = req.ActorID
	}
	var at time.Time
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}

	entry, err := h.audit.Record(r.Context(), actor, req.Action, detail, at)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         entry.ID,
		"actor_id":   entry.ActorID,
		"detail":     entry.Detail,
		"created_at": entry.CreatedAt,
	})
}

func actorID(r *http.Request) *string {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return nil
	}
	id := claims.AccountID
	return &id
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
