package handlers

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/auction"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Reconciler removes a blocked participant's bids from ongoing auctions.
type Reconciler interface {
	ReconcileBlockedParticipant(ctx context.Context, participantID string) (*auction.ReconcileReport, error)
}

// AdminHandler serves participant moderation endpoints.
type AdminHandler struct {
	users      db.UserCollection
	reconciler Reconciler
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(users db.UserCollection, reconciler Reconciler) *AdminHandler {
	return &AdminHandler{users: users, reconciler: reconciler}
}

type blockResponse struct {
	User   *models.User             `json:"user"`
	Report *auction.ReconcileReport `json:"report,omitempty"`
}

// ToggleBlock blocks or unblocks a participant. Blocking also removes the
// participant's bids from every ongoing auction.
func (h *AdminHandler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, ok := h.findUser(w, r, id)
	if !ok {
		return
	}
	if user.Role == models.RoleAdmin {
		writeError(w, http.StatusBadRequest, "Admins cannot be blocked")
		return
	}

	blocked := !user.IsBlocked
	if err := h.users.SetBlocked(r.Context(), id, blocked); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user.IsBlocked = blocked

	if !blocked {
		writeSuccess(w, http.StatusOK, "User unblocked", blockResponse{User: user})
		return
	}

	report, err := h.reconciler.ReconcileBlockedParticipant(r.Context(), id)
	resp := blockResponse{User: user, Report: report}
	switch {
	case errors.Is(err, auction.ErrPartialFailure):
		log.WithError(err).WithField("user_id", id).Warn("Blocked user but some auctions were not reconciled")
		writeJSON(w, http.StatusMultiStatus, Response{
			Success: false,
			Message: "User blocked; some auctions could not be updated and should be retried",
			Data:    resp,
		})
	case err != nil:
		log.WithError(err).WithField("user_id", id).Error("Blocked user but reconciliation failed")
		writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Message: "User blocked; bids could not be removed, retry the block",
			Data:    blockResponse{User: user},
		})
	default:
		writeSuccess(w, http.StatusOK, "User blocked", resp)
	}
}

// DeleteUser removes a participant, which is also how a pending mechanic is
// declined. A buyer's bids leave every ongoing auction before the account
// goes; if that fails the account is kept.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user, ok := h.findUser(w, r, id)
	if !ok {
		return
	}
	if user.Role == models.RoleAdmin {
		writeError(w, http.StatusBadRequest, "Admins cannot be deleted")
		return
	}

	logger := log.WithFields(log.Fields{"user_id": id, "role": user.Role})
	var report *auction.ReconcileReport
	if user.Role == models.RoleBuyer {
		var err error
		report, err = h.reconciler.ReconcileBlockedParticipant(r.Context(), id)
		if err != nil {
			logger.WithError(err).Warn("User kept, bids could not be removed")
			status := http.StatusInternalServerError
			if errors.Is(err, auction.ErrPartialFailure) {
				status = http.StatusMultiStatus
			}
			writeJSON(w, status, Response{
				Success: false,
				Message: "User not deleted; bids could not be removed from every auction, retry",
				Data:    report,
			})
			return
		}
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	logger.Info("User deleted")
	writeSuccess(w, http.StatusOK, "User deleted", report)
}

// ApproveMechanic lets a registered mechanic take inspection tasks.
func (h *AdminHandler) ApproveMechanic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.users.ApproveMechanic(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			writeError(w, http.StatusNotFound, "Mechanic not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Mechanic approved", nil)
}

// ListUsers lists participants, optionally by ?role=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if role := models.Role(r.URL.Query().Get("role")); role != "" {
		if !models.IsValidRole(role) {
			writeError(w, http.StatusBadRequest, "Invalid role")
			return
		}
		filter["role"] = role
	}
	h.writeUsers(w, r, filter)
}

// ListReportedUsers lists participants reported for failed payments.
func (h *AdminHandler) ListReportedUsers(w http.ResponseWriter, r *http.Request) {
	h.writeUsers(w, r, bson.M{"is_reported": true})
}

func (h *AdminHandler) writeUsers(w http.ResponseWriter, r *http.Request, filter bson.M) {
	users, err := h.users.FindUsers(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", users)
}

func (h *AdminHandler) findUser(w http.ResponseWriter, r *http.Request, id string) (*models.User, bool) {
	user, err := h.users.FindUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			writeError(w, http.StatusNotFound, "User not found")
			return nil, false
		}
		writeServiceError(w, r, err)
		return nil, false
	}
	return user, true
}
