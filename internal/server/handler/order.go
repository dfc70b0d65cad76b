package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/batchauction/auctiond/internal/domain"
)

// OrderService defines what the order handler needs from the service layer.
type OrderService interface {
	SubmitOrder(ctx context.Context, auctionID, bidder string, quantity, payment uint64) (domain.Order, error)
	ListOrders(ctx context.Context, auctionID string) ([]domain.Order, error)
}

// OrderHandler serves order submission and the order ledger.
type OrderHandler struct {
	svc    OrderService
	logger *slog.Logger
}

func NewOrderHandler(svc OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logger}
}

// orderResponse renders one ledger entry with string amounts and the derived
// display unit price.
type orderResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Bidder    string    `json:"bidder"`
	Quantity  string    `json:"quantity"`
	Payment   string    `json:"payment"`
	UnitPrice string    `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Seq:       o.Seq,
		Bidder:    o.Bidder,
		Quantity:  formatAmount(o.Quantity),
		Payment:   formatAmount(o.Payment),
		UnitPrice: domain.UnitPrice(o.Payment, o.Quantity).String(),
		CreatedAt: o.CreatedAt,
	}
}

type winnerResponse struct {
	Position int           `json:"position"`
	Order    orderResponse `json:"order"`
	Partial  bool          `json:"partial"`
	Claimed  bool          `json:"claimed"`
}

func toWinnerResponse(w domain.WinnerEntry) winnerResponse {
	return winnerResponse{
		Position: w.Position,
		Order:    toOrderResponse(w.Order),
		Partial:  w.Partial,
		Claimed:  w.Claimed,
	}
}

type submitOrderRequest struct {
	Bidder   string `json:"bidder"`
	Quantity string `json:"quantity"`
	Payment  string `json:"payment"`
}

// SubmitOrder appends a sealed order to the auction ledger.
// POST /api/auctions/{id}/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Bidder == "" {
		writeError(w, http.StatusBadRequest, "bidder is required")
		return
	}
	quantity, err := parseAmount("quantity", req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.svc.SubmitOrder(r.Context(), r.PathValue("id"), req.Bidder, quantity, payment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// ListOrders returns the auction's full order ledger in submission order.
// GET /api/auctions/{id}/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}
