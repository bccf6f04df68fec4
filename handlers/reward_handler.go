package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/types/cosmetic"
	"ecoStreakAPI/middleware"
	"ecoStreakAPI/services"
)

type RewardHandler struct {
	rewardService   *services.RewardService
	cosmeticService *services.CosmeticService
	logger          *zap.Logger
}

func NewRewardHandler(rewardService *services.RewardService, cosmeticService *services.CosmeticService, logger *zap.Logger) *RewardHandler {
	return &RewardHandler{
		rewardService:   rewardService,
		cosmeticService: cosmeticService,
		logger:          logger,
	}
}

// GET /api/v1/rewards/progress
func (h *RewardHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	overview, err := h.rewardService.OverviewByClerkID(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "reward overview", err)
		return
	}

	respondWithJSON(w, http.StatusOK, overview)
}

// GET /api/v1/rewards/unlocks
func (h *RewardHandler) GetUnlocks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	unlocks, err := h.rewardService.Unlocks(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "list unlocks", err)
		return
	}

	respondWithJSON(w, http.StatusOK, unlocks)
}

// GET /api/v1/cosmetics
func (h *RewardHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	catalog, err := h.cosmeticService.GetCatalog(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "cosmetic catalog", err)
		return
	}

	respondWithJSON(w, http.StatusOK, catalog)
}

// GET /api/v1/cosmetics/inventory
func (h *RewardHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	inventory, err := h.cosmeticService.GetInventory(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "cosmetic inventory", err)
		return
	}

	respondWithJSON(w, http.StatusOK, inventory)
}

// POST /api/v1/cosmetics/equip
func (h *RewardHandler) Equip(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req cosmetic.EquipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, h.logger, "equip cosmetic", err)
		return
	}

	if err := h.cosmeticService.Equip(ctx, clerkID, uuid.MustParse(req.CosmeticID)); err != nil {
		respondWithServiceError(w, h.logger, "equip cosmetic", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
