package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/batchauction/auctiond/internal/domain"
)

// SettlementService defines what the settlement handler needs from the
// service layer.
type SettlementService interface {
	Settle(ctx context.Context, auctionID string) (domain.Auction, []domain.WinnerEntry, error)
	Claim(ctx context.Context, auctionID, bidder string) (domain.ClaimResult, error)
	RefundDeposit(ctx context.Context, auctionID, bidder string) (uint64, error)
}

// SettlementHandler serves settlement, claim, and refund endpoints.
type SettlementHandler struct {
	svc    SettlementService
	logger *slog.Logger
}

func NewSettlementHandler(svc SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, logger: logger}
}

// Settle runs clearing over the order ledger once the deadline has passed.
// POST /api/auctions/{id}/settle
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, winners, err := h.svc.Settle(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: settle rejected",
			slog.String("auction_id", id),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	out := make([]winnerResponse, 0, len(winners))
	for _, wn := range winners {
		out = append(out, toWinnerResponse(wn))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction": toAuctionResponse(a),
		"winners": out,
	})
}

type claimRequest struct {
	Bidder string `json:"bidder"`
}

// Claim hands the bidder their next unclaimed winning entry.
// POST /api/auctions/{id}/claims
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Bidder == "" {
		writeError(w, http.StatusBadRequest, "bidder is required")
		return
	}

	res, err := h.svc.Claim(r.Context(), r.PathValue("id"), req.Bidder)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"position": res.Position,
		"quantity": formatAmount(res.Quantity),
		"refund":   formatAmount(res.Refund),
	})
}

// RefundDeposit returns a losing bidder's first-order payment.
// POST /api/auctions/{id}/refunds
func (h *SettlementHandler) RefundDeposit(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Bidder == "" {
		writeError(w, http.StatusBadRequest, "bidder is required")
		return
	}

	amount, err := h.svc.RefundDeposit(r.Context(), r.PathValue("id"), req.Bidder)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"bidder": req.Bidder,
		"amount": formatAmount(amount),
	})
}
