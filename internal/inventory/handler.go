package inventory

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-assets/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-assets/internal/rbac"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// IdempotencyHeader carries the request key of a bulk assignment.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the capacity operations of existing pools over HTTP. Pool
// registration stays with administrative tooling. Every route is authorized
// against the resource of the pool kind, so it needs a session but no
// route-level gate.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   rbac.Authorizer
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, authz rbac.Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers pool routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{poolID}", func(r chi.Router) {
		r.Get("/", h.getPool)
		r.Patch("/", h.adjustTotal)
		r.Get("/assignments", h.listAssignments)
		r.Post("/assignments", h.assign)
		r.Post("/assignments/bulk", h.bulkAssign)
		r.Post("/assignments/{assignmentID}/return", h.unassign)
	})
}

// ResourceFor maps a pool kind to the resource that guards it.
func ResourceFor(kind PoolKind) (rbac.Resource, bool) {
	switch kind {
	case KindEquipment:
		return rbac.ResourceEquipment, true
	case KindConsumable:
		return rbac.ResourceConsumables, true
	case KindLicense:
		return rbac.ResourceLicenses, true
	default:
		return "", false
	}
}

type adjustTotalRequest struct {
	TotalQty int `json:"total_qty"`
}

type assignRequest struct {
	AssignedTo string `json:"assigned_to"`
	Qty        int    `json:"qty"`
	Note       string `json:"note"`
}

type bulkAssignRequest struct {
	Items []assignRequest `json:"items"`
}

type returnRequest struct {
	Note string `json:"note"`
}

type poolResponse struct {
	ID          int64    `json:"id"`
	Kind        PoolKind `json:"kind"`
	Name        string   `json:"name"`
	TotalQty    int      `json:"total_qty"`
	AssignedQty int      `json:"assigned_qty"`
	Available   int      `json:"available"`
}

type assignmentResponse struct {
	ID         int64            `json:"id"`
	PoolID     int64            `json:"pool_id"`
	AssignedTo string           `json:"assigned_to"`
	Qty        int              `json:"qty"`
	Status     AssignmentStatus `json:"status"`
	AssignedAt time.Time        `json:"assigned_at"`
	ReturnedAt *time.Time       `json:"returned_at,omitempty"`
	BatchID    string           `json:"batch_id,omitempty"`
	Note       string           `json:"note,omitempty"`
}

type returnResponse struct {
	Assignment assignmentResponse `json:"assignment"`
	Applied    bool               `json:"applied"`
}

func (h *Handler) getPool(w http.ResponseWriter, r *http.Request) {
	pool, _, ok := h.authorizedPool(w, r, rbac.ActionView)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, toPoolResponse(pool))
}

func (h *Handler) adjustTotal(w http.ResponseWriter, r *http.Request) {
	pool, actorID, ok := h.authorizedPool(w, r, rbac.ActionEdit)
	if !ok {
		return
	}
	var req adjustTotalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.service.AdjustTotal(r.Context(), AdjustTotalInput{PoolID: pool.ID, TotalQty: req.TotalQty, ActorID: actorID})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPoolResponse(updated))
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	pool, _, ok := h.authorizedPool(w, r, rbac.ActionView)
	if !ok {
		return
	}
	status := AssignmentStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && status != AssignmentAssigned && status != AssignmentReturned {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown assignment status")
		return
	}
	list, err := h.service.ListAssignments(r.Context(), pool.ID, status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]assignmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAssignmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	pool, actorID, ok := h.authorizedPool(w, r, rbac.ActionEdit)
	if !ok {
		return
	}
	var req assignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.service.Assign(r.Context(), AssignInput{PoolID: pool.ID, AssignedTo: req.AssignedTo, Qty: req.Qty, Note: req.Note, ActorID: actorID})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(a))
}

func (h *Handler) bulkAssign(w http.ResponseWriter, r *http.Request) {
	pool, actorID, ok := h.authorizedPool(w, r, rbac.ActionEdit)
	if !ok {
		return
	}
	var req bulkAssignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items := make([]AssignItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, AssignItem(item))
	}
	created, err := h.service.BulkAssign(r.Context(), BulkAssignInput{
		PoolID:     pool.ID,
		Items:      items,
		ActorID:    actorID,
		RequestKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]assignmentResponse, 0, len(created))
	for _, a := range created {
		out = append(out, toAssignmentResponse(a))
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	pool, actorID, ok := h.authorizedPool(w, r, rbac.ActionEdit)
	if !ok {
		return
	}
	assignmentID, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil || assignmentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid assignment id")
		return
	}
	var req returnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	current, err := h.service.GetAssignment(r.Context(), assignmentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if current.PoolID != pool.ID {
		h.respondError(w, ErrNotFound)
		return
	}
	a, applied, err := h.service.Unassign(r.Context(), UnassignInput{AssignmentID: assignmentID, ActorID: actorID, Note: req.Note})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse{Assignment: toAssignmentResponse(a), Applied: applied})
}

// authorizedPool loads the pool named in the path and enforces action on the
// resource of its kind. It writes the response itself when it returns false.
func (h *Handler) authorizedPool(w http.ResponseWriter, r *http.Request, action rbac.Action) (Pool, int64, bool) {
	actorID, ok := principalID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return Pool{}, 0, false
	}
	poolID, err := strconv.ParseInt(chi.URLParam(r, "poolID"), 10, 64)
	if err != nil || poolID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid pool id")
		return Pool{}, 0, false
	}
	pool, err := h.service.GetPool(r.Context(), poolID)
	if err != nil {
		h.respondError(w, err)
		return Pool{}, 0, false
	}
	resource, ok := ResourceFor(pool.Kind)
	if !ok {
		h.respondError(w, errors.New("inventory: pool has unknown kind "+string(pool.Kind)))
		return Pool{}, 0, false
	}
	if err := rbac.Enforce(r.Context(), h.authz, actorID, resource, action); err != nil {
		h.respondError(w, err)
		return Pool{}, 0, false
	}
	return pool, actorID, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var (
		denied *rbac.DeniedError
		short  *InsufficientCapacityError
	)
	switch {
	case errors.As(err, &denied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", denied.Decision.Message())
	case errors.As(err, &short):
		httpx.Problem(w, http.StatusConflict, "Insufficient Capacity", short.Error())
	case errors.Is(err, ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrTotalBelowAssigned):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	default:
		h.logger.Error("inventory request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func principalID(r *http.Request) (int64, bool) {
	if id, ok := shared.PrincipalIDFromContext(r.Context()); ok {
		return id, true
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	return true
}

func toPoolResponse(p Pool) poolResponse {
	return poolResponse{
		ID:          p.ID,
		Kind:        p.Kind,
		Name:        p.Name,
		TotalQty:    p.TotalQty,
		AssignedQty: p.AssignedQty,
		Available:   p.Available(),
	}
}

func toAssignmentResponse(a Assignment) assignmentResponse {
	out := assignmentResponse{
		ID:         a.ID,
		PoolID:     a.PoolID,
		AssignedTo: a.AssignedTo,
		Qty:        a.Qty,
		Status:     a.Status,
		AssignedAt: a.AssignedAt,
		ReturnedAt: a.ReturnedAt,
		Note:       a.Note,
	}
	if a.BatchID != uuid.Nil {
		out.BatchID = a.BatchID.String()
	}
	return out
}
