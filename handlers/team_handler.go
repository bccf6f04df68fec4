package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/types/team"
	"ecoStreakAPI/middleware"
	"ecoStreakAPI/services"
)

type TeamHandler struct {
	teamService *services.TeamService
	logger      *zap.Logger
}

func NewTeamHandler(teamService *services.TeamService, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{
		teamService: teamService,
		logger:      logger,
	}
}

// POST /api/v1/teams
func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req team.CreateTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, h.logger, "create team", err)
		return
	}

	t, err := h.teamService.CreateTeam(ctx, clerkID, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, "create team", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, t)
}

// POST /api/v1/teams/join
func (h *TeamHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req team.JoinTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, h.logger, "join team", err)
		return
	}

	t, err := h.teamService.JoinTeam(ctx, clerkID, uuid.MustParse(req.TeamID))
	if err != nil {
		respondWithServiceError(w, h.logger, "join team", err)
		return
	}

	respondWithJSON(w, http.StatusOK, t)
}

// POST /api/v1/teams/leave
func (h *TeamHandler) LeaveTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.teamService.LeaveTeam(ctx, clerkID); err != nil {
		respondWithServiceError(w, h.logger, "leave team", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /api/v1/teams/mine
func (h *TeamHandler) MyTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	details, err := h.teamService.MyTeam(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "my team", err)
		return
	}

	respondWithJSON(w, http.StatusOK, details)
}

// GET /api/v1/teams/{id}
func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	teamID, err := uuidVar(r, "id")
	if err != nil {
		respondWithServiceError(w, h.logger, "get team", err)
		return
	}

	details, err := h.teamService.GetTeam(ctx, teamID)
	if err != nil {
		respondWithServiceError(w, h.logger, "get team", err)
		return
	}

	respondWithJSON(w, http.StatusOK, details)
}

// GET /api/v1/leaderboard/teams?limit=
func (h *TeamHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.teamService.TeamLeaderboard(ctx, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, "team leaderboard", err)
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}
