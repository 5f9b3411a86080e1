package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ukydev/drivebidrent/internal/auction"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/middleware"
	"github.com/ukydev/drivebidrent/internal/models"
)

// AuctionService is the auction core as used by the HTTP layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, a models.Auction) (*models.Auction, error)
	GetAuction(ctx context.Context, id string) (*auction.Snapshot, error)
	ListAuctions(ctx context.Context, filter db.AuctionFilter) ([]models.Auction, error)
	ListBids(ctx context.Context, auctionID string, round int) ([]models.Bid, error)
	PlaceBid(ctx context.Context, auctionID, buyerID string, amount float64) (*models.Bid, error)
	RecomputeCurrentBid(ctx context.Context, auctionID string) (*models.Bid, error)
	AcceptBid(ctx context.Context, bidID, sellerID string) (*models.Bid, error)
	RejectBid(ctx context.Context, bidID, sellerID string) (*models.Bid, error)
	SetApprovalStatus(ctx context.Context, auctionID string, status models.ApprovalStatus) (*models.Auction, error)
	StartAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	StopAuction(ctx context.Context, auctionID string, markEnded bool) (*auction.Snapshot, error)
	ReAuction(ctx context.Context, auctionID string) (*auction.Snapshot, error)
	ConfirmPayment(ctx context.Context, auctionID string) (*auction.Snapshot, error)
	AssignMechanic(ctx context.Context, auctionID, mechanicID, managerID string) (*auction.Assignment, error)
	EligibleMechanics(ctx context.Context, auctionID string) (*auction.MechanicOptions, error)
	InspectionChat(ctx context.Context, auctionID, userID string, role models.Role) (*models.InspectionChat, error)
	ReconcileBlockedParticipant(ctx context.Context, participantID string) (*auction.ReconcileReport, error)
}

// AuctionHandler serves the seller, buyer and auction manager endpoints.
type AuctionHandler struct {
	service AuctionService
}

// NewAuctionHandler creates a new auction handler
func NewAuctionHandler(service AuctionService) *AuctionHandler {
	return &AuctionHandler{service: service}
}

type createAuctionRequest struct {
	VehicleName  string    `json:"vehicle_name"`
	VehicleImage string    `json:"vehicle_image"`
	Year         int       `json:"year"`
	Mileage      float64   `json:"mileage"`
	FuelType     string    `json:"fuel_type"`
	Transmission string    `json:"transmission"`
	Condition    string    `json:"condition"`
	AuctionDate  time.Time `json:"auction_date"`
	StartingBid  float64   `json:"starting_bid"`
}

type placeBidRequest struct {
	BidAmount *float64 `json:"bid_amount"`
}

type statusRequest struct {
	Status models.ApprovalStatus `json:"status"`
}

type assignMechanicRequest struct {
	MechanicID string `json:"mechanic_id"`
}

type stopRequest struct {
	MarkEnded bool `json:"mark_ended"`
}

func claimsOrUnauthorized(w http.ResponseWriter, r *http.Request) (*models.Claims, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
	}
	return claims, ok
}

// --- seller ---

// CreateAuction registers a vehicle for the authenticated seller.
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req createAuctionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	created, err := h.service.CreateAuction(r.Context(), models.Auction{
		VehicleName:  req.VehicleName,
		VehicleImage: req.VehicleImage,
		Year:         req.Year,
		Mileage:      req.Mileage,
		FuelType:     req.FuelType,
		Transmission: req.Transmission,
		Condition:    req.Condition,
		AuctionDate:  req.AuctionDate,
		StartingBid:  req.StartingBid,
		SellerID:     claims.UserID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Auction request created", created)
}

// ListSellerAuctions lists the authenticated seller's auctions, optionally by ?state=.
func (h *AuctionHandler) ListSellerAuctions(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.SellerID = claims.UserID

	auctions, err := h.service.ListAuctions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", auctions)
}

// GetSellerAuction returns one of the seller's auctions with its current bid.
func (h *AuctionHandler) GetSellerAuction(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.ownedAuction(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, "", snap)
}

// ListSellerBids lists the active-round bids on one of the seller's auctions.
func (h *AuctionHandler) ListSellerBids(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.ownedAuction(w, r)
	if !ok {
		return
	}
	h.writeBids(w, r, snap.Auction.ID.Hex())
}

// AcceptBid marks a bid on the seller's auction as accepted.
func (h *AuctionHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	h.decideBid(w, r, h.service.AcceptBid, "Bid accepted")
}

// RejectBid marks a bid on the seller's auction as rejected.
func (h *AuctionHandler) RejectBid(w http.ResponseWriter, r *http.Request) {
	h.decideBid(w, r, h.service.RejectBid, "Bid rejected")
}

func (h *AuctionHandler) decideBid(w http.ResponseWriter, r *http.Request,
	decide func(ctx context.Context, bidID, sellerID string) (*models.Bid, error), message string) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	sellerID := claims.UserID
	if claims.Role == models.RoleAdmin {
		sellerID = ""
	}

	bid, err := decide(r.Context(), r.PathValue("id"), sellerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, message, bid)
}

func (h *AuctionHandler) ownedAuction(w http.ResponseWriter, r *http.Request) (*auction.Snapshot, bool) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return nil, false
	}
	snap, err := h.service.GetAuction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if claims.Role != models.RoleAdmin && snap.Auction.SellerID != claims.UserID {
		writeError(w, http.StatusNotFound, "Auction not found")
		return nil, false
	}
	return snap, true
}

// --- buyer ---

// ListOngoingAuctions lists auctions currently accepting bids.
func (h *AuctionHandler) ListOngoingAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.service.ListAuctions(r.Context(), db.AuctionFilter{State: models.StateOngoing})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", auctions)
}

// GetAuction returns an auction with its current bid.
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetAuction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", snap)
}

// PlaceBid places a bid for the authenticated buyer.
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req placeBidRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.BidAmount == nil {
		writeError(w, http.StatusBadRequest, "bid_amount is required")
		return
	}

	bid, err := h.service.PlaceBid(r.Context(), r.PathValue("id"), claims.UserID, *req.BidAmount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Bid placed", bid)
}

// --- auction manager ---

// ListAuctions lists every auction, optionally by ?state= and ?seller_id=.
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.SellerID = r.URL.Query().Get("seller_id")

	auctions, err := h.service.ListAuctions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", auctions)
}

// ListBids lists the bids of an auction round (?round=, default active).
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	h.writeBids(w, r, r.PathValue("id"))
}

func (h *AuctionHandler) writeBids(w http.ResponseWriter, r *http.Request, auctionID string) {
	round := 0
	if v := r.URL.Query().Get("round"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "round must be a positive integer")
			return
		}
		round = n
	}

	bids, err := h.service.ListBids(r.Context(), auctionID, round)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", auction.RankBids(bids))
}

// UpdateStatus records the manager's approval verdict.
func (h *AuctionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	updated, err := h.service.SetApprovalStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Auction status updated", updated)
}

// AssignMechanic dispatches a mechanic and opens the inspection chat.
func (h *AuctionHandler) AssignMechanic(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req assignMechanicRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.MechanicID == "" {
		writeError(w, http.StatusBadRequest, "mechanic_id is required")
		return
	}

	result, err := h.service.AssignMechanic(r.Context(), r.PathValue("id"), req.MechanicID, claims.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	message := "Mechanic assigned"
	if result.Chat == nil {
		message = "Mechanic assigned; inspection chat unavailable"
	}
	writeSuccess(w, http.StatusOK, message, result)
}

// ListMechanics lists the approved mechanics in the seller's city.
func (h *AuctionHandler) ListMechanics(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.EligibleMechanics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Mechanics loaded", options)
}

// GetInspectionChat returns the inspection chat of an auction.
func (h *AuctionHandler) GetInspectionChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	chat, err := h.service.InspectionChat(r.Context(), r.PathValue("id"), claims.UserID, claims.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", chat)
}

// Start opens bidding.
func (h *AuctionHandler) Start(w http.ResponseWriter, r *http.Request) {
	started, err := h.service.StartAuction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Auction started", started)
}

// Stop closes bidding; {"mark_ended": true} also flags the auction as ended.
func (h *AuctionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	snap, err := h.service.StopAuction(r.Context(), r.PathValue("id"), req.MarkEnded)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Auction stopped", snap)
}

// ReAuction reopens an auction whose winner did not pay in time.
func (h *AuctionHandler) ReAuction(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ReAuction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, fmt.Sprintf("Auction re-opened for round %d", snap.Auction.Round), snap)
}

// Recompute re-derives the current bid.
func (h *AuctionHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.RecomputeCurrentBid(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Current bid recomputed", current)
}

// ConfirmPayment ends an auction whose winner has paid.
func (h *AuctionHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ConfirmPayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Payment confirmed, auction ended", snap)
}

var errUnknownState = errors.New("state must be one of not_started, ongoing, stopped, ended")

func filterFromQuery(r *http.Request) (db.AuctionFilter, error) {
	var filter db.AuctionFilter
	switch state := models.AuctionState(r.URL.Query().Get("state")); state {
	case "":
	case models.StateNotStarted, models.StateOngoing, models.StateStopped, models.StateEnded:
		filter.State = state
	default:
		return filter, errUnknownState
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = n
	}
	return filter, nil
}
