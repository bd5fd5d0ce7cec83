package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/usecase"
)

const (
	timeFormat            = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize       = 64 << 10
	defaultRequestTimeout = 10 * time.Second
)

type Handler struct {
	authService  *usecase.AuthService
	keyService   *usecase.KeyService
	binder       *usecase.BindingCoordinator
	aliasService *usecase.AliasService
	auditService *usecase.AuditService
	schemas      requestSchemas

	requestTimeout time.Duration
}

type HandlerOption func(*Handler)

// WithRequestTimeout bounds every request; non-positive values keep the default.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

func NewHandler(
	authService *usecase.AuthService,
	keyService *usecase.KeyService,
	binder *usecase.BindingCoordinator,
	aliasService *usecase.AliasService,
	auditService *usecase.AuditService,
	opts ...HandlerOption,
) (*Handler, error) {
	schemas, err := loadRequestSchemas()
	if err != nil {
		return nil, err
	}
	h := &Handler{
		authService:    authService,
		keyService:     keyService,
		binder:         binder,
		aliasService:   aliasService,
		auditService:   auditService,
		schemas:        schemas,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))

	r.Get("/healthz", h.healthz)
	r.Post("/v1/login", h.login)
	r.Get("/v1/links/{token}", h.visit)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireKey)
		pr.Get("/v1/me", h.me)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireRole(domain.RoleAgent))
			ar.Post("/v1/me/link", h.link)
			ar.Post("/v1/me/renew", h.renew)
			ar.Post("/v1/me/extend", h.extend)
		})

		pr.Group(func(ad chi.Router) {
			ad.Use(requireRole(domain.RoleAdmin))
			ad.Get("/v1/keys", h.listKeys)
			ad.Post("/v1/keys", h.createKey)
			ad.Get("/v1/keys/{key}", h.getKey)
			ad.Patch("/v1/keys/{key}", h.updateKey)
			ad.Delete("/v1/keys/{key}", h.deleteKey)
			ad.Post("/v1/keys/{key}/bind", h.bindKey)
			ad.Get("/v1/events", h.listEvents)
		})
	})

	return r
}

type keyRefRequest struct {
	Key string `json:"key"`
}

type createKeyRequest struct {
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Notes       string `json:"notes"`
}

type updateKeyRequest struct {
	DisplayName *string `json:"display_name"`
	Notes       *string `json:"notes"`
	Status      *string `json:"status"`
}

type bindKeyRequest struct {
	UserID string `json:"user_id"`
}

type identityResponse struct {
	Role        string `json:"role"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	ExpireAt    string `json:"expire_at"`
}

type keyResponse struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
	ExpireAt    string `json:"expire_at"`
	BoundUserID string `json:"bound_user_id,omitempty"`
	Suspended   bool   `json:"suspended"`
	Status      string `json:"status"`
}

type linkResponse struct {
	Token    string `json:"token"`
	AgentID  string `json:"agent_id"`
	ExpireAt string `json:"expire_at"`
}

type visitorResponse struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	Status  string `json:"status"`
}

type eventResponse struct {
	ID            int64           `json:"id"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	Subject       string          `json:"subject"`
	UserID        string          `json:"user_id,omitempty"`
	Actor         string          `json:"actor"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        string          `json:"status"`
	OccurredAt    string          `json:"occurred_at"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req keyRefRequest
	if !h.decodeBody(w, r, schemaKeyRef, &req) {
		return
	}

	id, err := h.authService.Login(r.Context(), req.Key)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentityResponse(id))
}

func (h *Handler) visit(w http.ResponseWriter, r *http.Request) {
	info, err := h.aliasService.Visit(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, visitorResponse{
		AgentID: info.AgentID,
		Name:    info.Name,
		Avatar:  info.Avatar,
		Status:  string(info.Status),
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toIdentityResponse(identityFromContext(r.Context())))
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	alias, err := h.aliasService.Link(r.Context(), id.UserID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{
		Token:    alias.Token,
		AgentID:  alias.TargetUserID,
		ExpireAt: alias.ExpireAt.UTC().Format(timeFormat),
	})
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	rec, err := h.binder.Renew(r.Context(), id.UserID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	h.writeKey(w, r, http.StatusCreated, rec.Key)
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	var req keyRefRequest
	if !h.decodeBody(w, r, schemaKeyRef, &req) {
		return
	}

	id := identityFromContext(r.Context())
	rec, err := h.binder.Extend(r.Context(), id.UserID, req.Key)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	h.writeKey(w, r, http.StatusOK, rec.Key)
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	views, err := h.keyService.List(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]keyResponse, 0, len(views))
	for _, v := range views {
		result = append(result, toKeyResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !h.decodeBody(w, r, schemaCreateKey, &req) {
		return
	}
	keyType, err := domain.ParseKeyType(req.Type)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	view, err := h.keyService.Create(r.Context(), req.DisplayName, keyType, req.Notes)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toKeyResponse(view))
}

func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	h.writeKey(w, r, http.StatusOK, chi.URLParam(r, "key"))
}

func (h *Handler) updateKey(w http.ResponseWriter, r *http.Request) {
	var req updateKeyRequest
	if !h.decodeBody(w, r, schemaUpdateKey, &req) {
		return
	}

	view, err := h.keyService.Update(r.Context(), chi.URLParam(r, "key"), usecase.KeyUpdate{
		DisplayName: req.DisplayName,
		Notes:       req.Notes,
		Status:      req.Status,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(view))
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.keyService.Delete(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) bindKey(w http.ResponseWriter, r *http.Request) {
	var req bindKeyRequest
	if !h.decodeBody(w, r, schemaBindKey, &req) {
		return
	}

	rec, err := h.binder.Rebind(r.Context(), chi.URLParam(r, "key"), req.UserID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	h.writeKey(w, r, http.StatusOK, rec.Key)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseIntParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	after, ok := parseIntParam(w, q.Get("after"), "after")
	if !ok {
		return
	}

	events, err := h.auditService.List(r.Context(), domain.AuditFilter{
		EventType: q.Get("event_type"),
		UserID:    q.Get("user_id"),
		AfterID:   int64(after),
		Limit:     limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]eventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, eventResponse{
			ID:            e.ID,
			EventID:       e.EventID,
			EventType:     e.EventType,
			SchemaVersion: e.SchemaVersion,
			Subject:       e.Subject,
			UserID:        e.UserID,
			Actor:         e.Actor,
			Payload:       e.Payload,
			Status:        e.Status,
			OccurredAt:    e.OccurredAt.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

// writeKey reloads key through the key service so the response carries the
// derived status.
func (h *Handler) writeKey(w http.ResponseWriter, r *http.Request, status int, key string) {
	view, err := h.keyService.Get(r.Context(), key)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, status, toKeyResponse(view))
}

// decodeBody reads one JSON document, validates it against the named schema
// and decodes it into dst. It writes the error response itself.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)

	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.schemas.validate(schema, raw); err != nil {
		handleDomainError(w, err)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func toIdentityResponse(id domain.Identity) identityResponse {
	return identityResponse{
		Role:        string(id.Role),
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		ExpireAt:    id.ExpireAt.UTC().Format(timeFormat),
	}
}

func toKeyResponse(v usecase.KeyView) keyResponse {
	return keyResponse{
		Key:         v.Key,
		Type:        string(v.Type),
		DisplayName: v.DisplayName,
		Notes:       v.Notes,
		CreatedAt:   v.CreatedAt.UTC().Format(timeFormat),
		ExpireAt:    v.ExpireAt.UTC().Format(timeFormat),
		BoundUserID: v.BoundUserID,
		Suspended:   v.Suspended,
		Status:      string(v.Status),
	}
}

func parseIntParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be integer")
		return 0, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	var sv *domain.ErrSchemaViolation
	switch {
	case errors.As(err, &sv):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "schema validation failed", "errors": sv.Errors})
	case errors.Is(err, usecase.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, usecase.ErrUnauthorized.Error())
	case errors.Is(err, usecase.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidKeyType),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrWrongType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyBound), errors.Is(err, domain.ErrSuspended):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}
