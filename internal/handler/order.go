package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"
	"qrmenu-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxBodyBytes = 1 << 20

	// ChangedHeader reports whether an advance request moved the order.
	ChangedHeader = "X-Order-Changed"
)

var errForbidden = errors.New("order belongs to another restaurant")

type OrderHandler struct {
	Svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{Svc: svc}
}

type versionRequest struct {
	Version *int `json:"version,omitempty"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in order.CreateOrderInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}

	// A signed-in customer always orders as themselves.
	if id, ok := utils.IdentityFrom(r.Context()); ok && id.Role == utils.RoleCustomer && id.CustomerID != "" {
		in.CustomerID = utils.StrPtr(id.CustomerID)
	}

	o, err := h.Svc.CreateOrder(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, _ := utils.IdentityFrom(r.Context())
	if id.Role != utils.RoleAdmin {
		if filter.RestaurantID == "" {
			filter.RestaurantID = id.RestaurantID
		}
		if !id.CanAccessRestaurant(filter.RestaurantID) {
			writeError(w, r, errForbidden)
			return
		}
	}

	orders, err := h.Svc.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in order.PatchOrderInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorize(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Svc.PatchOrder(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in versionRequest
	if err := decodeJSON(w, r, &in, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorize(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	o, changed, err := h.Svc.AdvanceOrder(r.Context(), id, in.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(ChangedHeader, strconv.FormatBool(changed))
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in versionRequest
	if err := decodeJSON(w, r, &in, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.authorize(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Svc.CancelOrder(r.Context(), id, in.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

// authorize checks that the caller may mutate the order's restaurant.
func (h *OrderHandler) authorize(ctx context.Context, orderID string) error {
	id, _ := utils.IdentityFrom(ctx)
	if id.Role == utils.RoleAdmin {
		return nil
	}

	o, err := h.Svc.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !id.CanAccessRestaurant(o.RestaurantID) {
		return errForbidden
	}
	return nil
}

func listFilterFromQuery(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	filter := order.ListFilter{RestaurantID: q.Get("restaurantId")}

	for _, s := range utils.SplitCSV(q.Get("status")) {
		status := order.Status(s)
		if !status.Valid() {
			return filter, &order.ValidationError{Field: "status", Message: "unknown status " + strconv.Quote(s)}
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	var err error
	if filter.Limit, err = utils.QueryInt(r, "limit", 0); err != nil {
		return filter, &order.ValidationError{Field: "limit", Message: "must be an integer"}
	}
	if filter.Page, err = utils.QueryInt(r, "page", 1); err != nil {
		return filter, &order.ValidationError{Field: "page", Message: "must be an integer"}
	}
	return filter, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return &order.ValidationError{Message: "invalid JSON body"}
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *order.ValidationError
		transition *order.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validation):
		utils.WriteJSONError(w, validation.Error(), "validation_error", http.StatusBadRequest)
	case errors.Is(err, order.ErrOrderNotFound):
		utils.WriteJSONError(w, err.Error(), "not_found", http.StatusNotFound)
	case errors.Is(err, errForbidden):
		utils.WriteJSONError(w, err.Error(), "forbidden", http.StatusForbidden)
	case errors.As(err, &transition):
		utils.WriteJSONError(w, transition.Error(), "invalid_transition", http.StatusUnprocessableEntity)
	case errors.Is(err, order.ErrVersionConflict):
		utils.WriteJSONError(w, err.Error(), "conflict", http.StatusConflict)
	default:
		logger.FromCtx(r.Context()).Error("order request failed",
			zap.String("layer", "handler"),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "internal error", "persistence_error", http.StatusInternalServerError)
	}
}
