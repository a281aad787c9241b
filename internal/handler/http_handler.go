package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/officeflow/procurement-service/internal/errors"
	"github.com/officeflow/procurement-service/internal/logger"
	"github.com/officeflow/procurement-service/internal/repository"
	"github.com/officeflow/procurement-service/internal/service"
)

// Actor identity headers. Authentication happens upstream at the gateway;
// these headers carry the already-verified caller identity.
const (
	headerUserID       = "X-User-Id"
	headerUserRole     = "X-User-Role"
	headerDepartmentID = "X-Department-Id"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	requests    *service.RequestService
	approvals   *service.ApprovalService
	fulfillment *service.FulfillmentService
	assignment  *service.AssignmentService
	stores      Stores
	validate    *validator.Validate
	log         *logger.Logger
}

// Stores gives the handler direct read access for listing endpoints that have
// no engine logic of their own.
type Stores struct {
	Notifications service.NotificationStore
	Audits        service.AuditStore
	Items         service.ItemStore
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	requests *service.RequestService,
	approvals *service.ApprovalService,
	fulfillment *service.FulfillmentService,
	assignment *service.AssignmentService,
	stores Stores,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:    requests,
		approvals:   approvals,
		fulfillment: fulfillment,
		assignment:  assignment,
		stores:      stores,
		validate:    validator.New(),
		log:         log,
	}
}

// Routes mounts every endpoint under /api/v1.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.CreateRequest)
			r.Get("/", h.ListRequests)
			r.Get("/pending-approvals", h.PendingApprovals)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/decision", h.SubmitDecision)
			r.Post("/{id}/complete", h.CompleteRequest)
		})

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/auto-receive", h.AutoReceiveDue)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/send", h.SendOrder)
			r.Post("/{id}/receive", h.ReceiveOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
		})

		r.Post("/returns", h.ProcessReturn)

		r.Route("/items", func(r chi.Router) {
			r.Get("/{id}", h.GetItem)
			r.Get("/{id}/movements", h.ListMovements)
		})

		r.Route("/departments", func(r chi.Router) {
			r.Post("/resolve-managers", h.ResolveAllManagers)
			r.Post("/{id}/resolve-manager", h.ResolveManager)
			r.Post("/{id}/assign-manager", h.AssignManager)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		r.Get("/audit-logs", h.ListAuditLog)
	})
}

// Health is the liveness endpoint.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor extracts the caller identity from the gateway headers.
func (h *HTTPHandler) actor(r *http.Request) (service.Actor, error) {
	id := r.Header.Get(headerUserID)
	role := repository.Role(r.Header.Get(headerUserRole))
	if id == "" || role == "" {
		return service.Actor{}, errors.New(errors.ErrCodeForbidden, "missing caller identity headers")
	}
	switch role {
	case repository.RoleAdmin, repository.RoleManager, repository.RoleEmployee:
	default:
		return service.Actor{}, errors.New(errors.ErrCodeForbidden, "unknown caller role")
	}

	actor := service.Actor{ID: id, Role: role}
	if dep := r.Header.Get(headerDepartmentID); dep != "" {
		actor.DepartmentID = &dep
	}
	return actor, nil
}

type createRequestPayload struct {
	Title        string               `json:"title" validate:"required,max=200"`
	DepartmentID string               `json:"department_id" validate:"required"`
	Lines        []requestLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type requestLinePayload struct {
	ItemID    string          `json:"item_id" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateRequest handles create request HTTP requests.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload createRequestPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	input := service.CreateRequestInput{
		Title:        payload.Title,
		DepartmentID: payload.DepartmentID,
	}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, service.RequestLineInput{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	req, err := h.requests.CreateRequest(r.Context(), actor, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(req))
}

// GetRequest handles get request HTTP requests.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if _, err := h.actor(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	req, err := h.requests.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// ListRequests handles list request HTTP requests.
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f := repository.RequestFilter{}
	if dep := r.URL.Query().Get("department_id"); dep != "" {
		f.DepartmentID = &dep
	}
	if requester := r.URL.Query().Get("requester_id"); requester != "" {
		f.RequesterID = &requester
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := repository.RequestStatus(status)
		f.Status = &s
	}
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	f.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	requests, err := h.requests.ListRequests(r.Context(), actor, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]*requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": out, "count": len(out)})
}

type decisionPayload struct {
	Decision string  `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Comments *string `json:"comments"`
}

// SubmitDecision handles approve/reject HTTP requests.
func (h *HTTPHandler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload decisionPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	req, err := h.approvals.SubmitDecision(r.Context(), actor, chi.URLParam(r, "id"), service.Decision(payload.Decision), payload.Comments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// CompleteRequest handles complete request HTTP requests.
func (h *HTTPHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.requests.CompleteRequest(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// PendingApprovals handles pending approvals HTTP requests.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	approvals, err := h.approvals.PendingApprovals(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals, "count": len(approvals)})
}

type createOrderPayload struct {
	SupplierID   string             `json:"supplier_id" validate:"required"`
	ExpectedDate *string            `json:"expected_date"`
	Notes        *string            `json:"notes"`
	Lines        []orderLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type orderLinePayload struct {
	ItemID    string          `json:"item_id" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateOrder handles create purchase order HTTP requests.
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload createOrderPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	input := service.CreateOrderInput{
		SupplierID: payload.SupplierID,
		Notes:      payload.Notes,
	}
	if payload.ExpectedDate != nil {
		t, err := time.Parse("2006-01-02", *payload.ExpectedDate)
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("expected_date", "must be YYYY-MM-DD"))
			return
		}
		input.ExpectedDate = &t
	}
	for _, line := range payload.Lines {
		input.Lines = append(input.Lines, service.OrderLineInput{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	po, err := h.fulfillment.CreateOrder(r.Context(), actor, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(po))
}

// GetOrder handles get purchase order HTTP requests.
func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if _, err := h.actor(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	po, err := h.fulfillment.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(po))
}

// SendOrder handles send purchase order HTTP requests.
func (h *HTTPHandler) SendOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.fulfillment.SendOrder(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ordered"})
}

// ReceiveOrder handles receive purchase order HTTP requests.
func (h *HTTPHandler) ReceiveOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	po, err := h.fulfillment.ReceiveOrder(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(po))
}

// CancelOrder handles cancel purchase order HTTP requests.
func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.fulfillment.CancelOrder(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// AutoReceiveDue handles scheduled auto-receive HTTP requests. The optional
// date query parameter defaults to today.
func (h *HTTPHandler) AutoReceiveDue(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role != repository.RoleAdmin {
		h.writeError(w, r, errors.Forbidden("only admins can trigger auto-receive"))
		return
	}

	day := time.Now().UTC()
	if d := r.URL.Query().Get("date"); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("date", "must be YYYY-MM-DD"))
			return
		}
		day = t
	}

	summary, err := h.fulfillment.AutoReceiveDue(r.Context(), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": summary.Processed,
		"received":  summary.Received,
		"failed":    summary.Failed,
		"errors":    summary.Errors,
	})
}

type returnPayload struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"required"`
}

// ProcessReturn handles return processing HTTP requests.
func (h *HTTPHandler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload returnPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.fulfillment.ProcessReturn(r.Context(), actor, payload.ItemID, payload.Quantity, payload.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "returned"})
}

// GetItem handles get item HTTP requests.
func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	if _, err := h.actor(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.stores.Items.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ListMovements handles stock movement history HTTP requests.
func (h *HTTPHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	if _, err := h.actor(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	movements, err := h.stores.Items.ListMovements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements, "count": len(movements)})
}

// ResolveManager handles single-department manager resolution HTTP requests.
func (h *HTTPHandler) ResolveManager(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role != repository.RoleAdmin {
		h.writeError(w, r, errors.Forbidden("only admins can resolve managers"))
		return
	}

	result, err := h.assignment.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResolveAllManagers handles the all-departments resolution sweep.
func (h *HTTPHandler) ResolveAllManagers(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role != repository.RoleAdmin {
		h.writeError(w, r, errors.Forbidden("only admins can resolve managers"))
		return
	}

	summary, err := h.assignment.ResolveAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type assignManagerPayload struct {
	ManagerID string `json:"manager_id" validate:"required"`
}

// AssignManager handles manual manager assignment HTTP requests.
func (h *HTTPHandler) AssignManager(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var payload assignManagerPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.assignment.ManualAssign(r.Context(), actor, chi.URLParam(r, "id"), payload.ManagerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// ListNotifications handles list notification HTTP requests. Admins see
// role-targeted notifications; everyone sees their own.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	onlyUnread := r.URL.Query().Get("unread") == "true"
	var targetRole *repository.Role
	if actor.Role == repository.RoleAdmin {
		targetRole = &actor.Role
	}

	notifications, err := h.stores.Notifications.ListNotifications(r.Context(), targetRole, &actor.ID, onlyUnread)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications, "count": len(notifications)})
}

// MarkNotificationRead handles mark-read HTTP requests.
func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if _, err := h.actor(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.stores.Notifications.MarkNotificationRead(r.Context(), chi.URLParam(r, "id"), time.Now().UTC()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// ListAuditLog handles audit trail HTTP requests.
func (h *HTTPHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role != repository.RoleAdmin {
		h.writeError(w, r, errors.Forbidden("only admins can read the audit log"))
		return
	}

	f := repository.AuditFilter{}
	if entity := r.URL.Query().Get("entity"); entity != "" {
		f.Entity = &entity
	}
	if entityID := r.URL.Query().Get("entity_id"); entityID != "" {
		f.EntityID = &entityID
	}
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	f.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.stores.Audits.ListAuditLog(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// decode parses and validates a JSON request body.
func (h *HTTPHandler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New(errors.ErrCodeValidation, "invalid request body")
	}
	if err := h.validate.Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return errors.InvalidInput(verrs[0].Field(), "failed "+verrs[0].Tag()+" validation")
		}
		return errors.New(errors.ErrCodeValidation, "invalid request body")
	}
	return nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    string(errors.CodeOf(err)),
			"message": errors.MessageOf(err),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
