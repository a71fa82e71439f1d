package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/auction"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/ledger"
)

// AuctionService defines what the auction handler needs from the service
// layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, req auction.CreateAuctionRequest) (domain.Item, error)
	PlaceBid(ctx context.Context, req ledger.PlaceBidRequest) (domain.Bid, error)
	Get(ctx context.Context, itemID string) (domain.Item, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error)
	ListExpiring(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error)
	EndAuction(ctx context.Context, itemID string) (domain.Item, error)
	CancelAuction(ctx context.Context, itemID string) (domain.Item, error)
}

// BidHistory serves per-item and per-bidder bid listings.
type BidHistory interface {
	History(ctx context.Context, itemID string, opts domain.ListOpts) ([]domain.Bid, error)
	BidderHistory(ctx context.Context, bidderID string, opts domain.ListOpts) ([]domain.Bid, error)
}

// AuctionHandler serves auction HTTP endpoints.
type AuctionHandler struct {
	auctions AuctionService
	bids     BidHistory
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions AuctionService, bids BidHistory, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		bids:     bids,
		logger:   logger,
	}
}

// itemView strips wallet secrets from an item before serialization. The
// encrypted private key never leaves the process over HTTP.
type itemView struct {
	domain.Item
	AuctionPrivateKey string `json:"auction_private_key,omitempty"`
}

func viewItem(item domain.Item) itemView {
	return itemView{Item: item, AuctionPrivateKey: ""}
}

func viewItems(items []domain.Item) []itemView {
	views := make([]itemView, len(items))
	for i, item := range items {
		views[i] = viewItem(item)
	}
	return views
}

// ListAuctions returns active auctions, or auctions ending within 24 hours
// when expiring=true.
// GET /api/auctions?expiring=true&limit=20&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var items []domain.Item
	var err error
	if r.URL.Query().Get("expiring") == "true" {
		items, err = h.auctions.ListExpiring(r.Context(), opts)
	} else {
		items, err = h.auctions.ListActive(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list auctions failed", slog.Any("error", err))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"auctions": viewItems(items)})
}

// GetAuction returns a single auction by ID.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	item, err := h.auctions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewItem(item))
}

// createAuctionRequest is the JSON body for creating an auction.
type createAuctionRequest struct {
	SellerID      string        `json:"seller_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Tags          []string      `json:"tags"`
	Category      string        `json:"category"`
	StartingPrice domain.Amount `json:"starting_price"`
	AuctionEnd    time.Time     `json:"auction_end"`
}

// CreateAuction creates and activates a new auction listing.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := h.auctions.CreateAuction(r.Context(), auction.CreateAuctionRequest{
		SellerID:      req.SellerID,
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		Category:      req.Category,
		StartingPrice: req.StartingPrice,
		AuctionEnd:    req.AuctionEnd,
	})
	if err != nil {
		if !domain.IsValidation(err) {
			h.logger.ErrorContext(r.Context(), "create auction failed", slog.Any("error", err))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewItem(item))
}

// ListBids returns the bid history of an auction, highest first.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	bids, err := h.bids.History(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

// placeBidRequest is the JSON body for placing a bid.
type placeBidRequest struct {
	BidderID       string        `json:"bidder_id"`
	Amount         domain.Amount `json:"amount"`
	BidderAddress  string        `json:"bidder_address"`
	IdempotencyKey string        `json:"idempotency_key"`
}

// PlaceBid places a bid on an auction.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bid, err := h.auctions.PlaceBid(r.Context(), ledger.PlaceBidRequest{
		ItemID:         id,
		BidderID:       req.BidderID,
		Amount:         req.Amount,
		BidderAddress:  req.BidderAddress,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if !domain.IsValidation(err) && !domain.IsStateConflict(err) {
			h.logger.ErrorContext(r.Context(), "place bid failed",
				slog.String("item_id", id),
				slog.Any("error", err),
			)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// EndAuction settles an ended auction to sold or expired.
// POST /api/auctions/{id}/end
func (h *AuctionHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.auctions.EndAuction)
}

// CancelAuction cancels an auction and refunds its bid deposits.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.auctions.CancelAuction)
}

func (h *AuctionHandler) settle(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, itemID string) (domain.Item, error),
) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	item, err := op(r.Context(), id)
	if err != nil {
		if !domain.IsStateConflict(err) {
			h.logger.ErrorContext(r.Context(), "settle auction failed",
				slog.String("item_id", id),
				slog.Any("error", err),
			)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewItem(item))
}
