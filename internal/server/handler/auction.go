package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/batchauction/auctiond/internal/domain"
	"github.com/batchauction/auctiond/internal/service"
)

// AuctionService defines what the auction handler needs from the service
// layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, p service.CreateAuctionParams) (domain.Auction, error)
	GetAuction(ctx context.Context, id string) (domain.Auction, error)
	ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error)
	RegisterBidder(ctx context.Context, auctionID, account string, deposit uint64) (uint64, error)
	BalanceOf(ctx context.Context, account string) (uint64, error)
	Winners(ctx context.Context, auctionID string) ([]domain.WinnerEntry, error)
	ClearingPrice(ctx context.Context, auctionID string) (uint64, error)
}

// AuctionHandler serves auction lifecycle endpoints.
type AuctionHandler struct {
	svc    AuctionService
	logger *slog.Logger
}

func NewAuctionHandler(svc AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{svc: svc, logger: logger}
}

// auctionResponse renders an auction with string amounts and derived display
// prices.
type auctionResponse struct {
	ID            string     `json:"id"`
	Organizer     string     `json:"organizer"`
	Deadline      time.Time  `json:"deadline"`
	Supply        string     `json:"supply"`
	ReserveTotal  string     `json:"reserve_total"`
	ReservePrice  string     `json:"reserve_price"`
	Settled       bool       `json:"settled"`
	ClearingPrice string     `json:"clearing_price,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

func toAuctionResponse(a domain.Auction) auctionResponse {
	resp := auctionResponse{
		ID:           a.ID,
		Organizer:    a.Organizer,
		Deadline:     a.Deadline,
		Supply:       formatAmount(a.Supply),
		ReserveTotal: formatAmount(a.ReserveTotal),
		ReservePrice: a.ReservePrice().String(),
		Settled:      a.Settled,
		CreatedAt:    a.CreatedAt,
		SettledAt:    a.SettledAt,
	}
	if a.Settled {
		resp.ClearingPrice = formatAmount(a.ClearingPrice)
	}
	return resp
}

type createAuctionRequest struct {
	Organizer    string    `json:"organizer"`
	Deadline     time.Time `json:"deadline"`
	Supply       string    `json:"supply"`
	ReserveTotal string    `json:"reserve_total"`
}

// CreateAuction creates a new auction and mints its supply into custody.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	supply, err := parseAmount("supply", req.Supply)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reserve, err := parseAmount("reserve_total", req.ReserveTotal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.svc.CreateAuction(r.Context(), service.CreateAuctionParams{
		Organizer:    req.Organizer,
		Deadline:     req.Deadline,
		Supply:       supply,
		ReserveTotal: reserve,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create auction failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

// GetAuction returns one auction.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAuction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// ListAuctions returns auctions, newest first.
// GET /api/auctions?limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.svc.ListAuctions(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list auctions failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	out := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": out})
}

type registerBidderRequest struct {
	Account string `json:"account"`
	Deposit string `json:"deposit"`
}

// RegisterBidder registers a bidder account against a deposit.
// POST /api/auctions/{id}/bidders
func (h *AuctionHandler) RegisterBidder(w http.ResponseWriter, r *http.Request) {
	var req registerBidderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	deposit, err := parseAmount("deposit", req.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	returned, err := h.svc.RegisterBidder(r.Context(), r.PathValue("id"), req.Account, deposit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"account":  req.Account,
		"returned": formatAmount(returned),
	})
}

// GetBalance returns an account's sale-asset balance.
// GET /api/auctions/{id}/balances/{account}
func (h *AuctionHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	balance, err := h.svc.BalanceOf(r.Context(), account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"balance": formatAmount(balance),
	})
}

// ListWinners returns the settled winner set in position order.
// GET /api/auctions/{id}/winners
func (h *AuctionHandler) ListWinners(w http.ResponseWriter, r *http.Request) {
	winners, err := h.svc.Winners(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]winnerResponse, 0, len(winners))
	for _, wn := range winners {
		out = append(out, toWinnerResponse(wn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"winners": out})
}

// GetClearingPrice returns the committed uniform price.
// GET /api/auctions/{id}/clearing-price
func (h *AuctionHandler) GetClearingPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.svc.ClearingPrice(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"clearing_price": formatAmount(price),
	})
}
