package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"ecoStreakAPI/middleware"
	"ecoStreakAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
	logger           *zap.Logger
}

func NewChallengeHandler(challengeService *services.ChallengeService, logger *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		logger:           logger,
	}
}

// GET /api/v1/challenges
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	challenges, err := h.challengeService.ListChallenges(ctx)
	if err != nil {
		respondWithServiceError(w, h.logger, "list challenges", err)
		return
	}

	respondWithJSON(w, http.StatusOK, challenges)
}

// POST /api/v1/challenges/{id}/complete
func (h *ChallengeHandler) CompleteChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, err := uuidVar(r, "id")
	if err != nil {
		respondWithServiceError(w, h.logger, "complete challenge", err)
		return
	}

	result, err := h.challengeService.CompleteChallenge(ctx, clerkID, challengeID)
	if err != nil {
		respondWithServiceError(w, h.logger, "complete challenge", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// GET /api/v1/challenges/history
func (h *ChallengeHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	history, err := h.challengeService.History(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "challenge history", err)
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}
