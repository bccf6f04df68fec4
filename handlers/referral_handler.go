package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"ecoStreakAPI/internal/types/user"
	"ecoStreakAPI/middleware"
	"ecoStreakAPI/services"
)

type ReferralHandler struct {
	referralService *services.ReferralService
	logger          *zap.Logger
}

func NewReferralHandler(referralService *services.ReferralService, logger *zap.Logger) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
		logger:          logger,
	}
}

// POST /api/v1/referrals/apply
func (h *ReferralHandler) ApplyReferral(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req user.ApplyReferralRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, h.logger, "apply referral", err)
		return
	}

	referrerID, err := h.referralService.ApplyByClerkID(ctx, clerkID, req.Code)
	if err != nil {
		respondWithServiceError(w, h.logger, "apply referral", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"referrerId": referrerID.String()})
}

// GET /api/v1/referrals/invite
func (h *ReferralHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	invite, err := h.referralService.Invite(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "referral invite", err)
		return
	}

	respondWithJSON(w, http.StatusOK, invite)
}
