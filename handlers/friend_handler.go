package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ecoStreakAPI/internal/types/friendship"
	"ecoStreakAPI/middleware"
	"ecoStreakAPI/services"
)

type FriendHandler struct {
	friendService *services.FriendService
	logger        *zap.Logger
}

func NewFriendHandler(friendService *services.FriendService, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{
		friendService: friendService,
		logger:        logger,
	}
}

// POST /api/v1/friends/request
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req friendship.AddFriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, h.logger, "send friend request", err)
		return
	}

	f, err := h.friendService.SendRequest(ctx, clerkID, uuid.MustParse(req.FriendID))
	if err != nil {
		respondWithServiceError(w, h.logger, "send friend request", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, f)
}

// POST /api/v1/friends/{id}/accept
func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	requesterID, err := uuidVar(r, "id")
	if err != nil {
		respondWithServiceError(w, h.logger, "accept friend request", err)
		return
	}

	f, err := h.friendService.AcceptRequest(ctx, clerkID, requesterID)
	if err != nil {
		respondWithServiceError(w, h.logger, "accept friend request", err)
		return
	}

	respondWithJSON(w, http.StatusOK, f)
}

// DELETE /api/v1/friends/{id}
func (h *FriendHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	friendID, err := uuidVar(r, "id")
	if err != nil {
		respondWithServiceError(w, h.logger, "remove friend", err)
		return
	}

	if err := h.friendService.RemoveFriend(ctx, clerkID, friendID); err != nil {
		respondWithServiceError(w, h.logger, "remove friend", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /api/v1/friends
func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	friends, err := h.friendService.ListFriends(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "list friends", err)
		return
	}

	respondWithJSON(w, http.StatusOK, friends)
}

// GET /api/v1/friends/requests
func (h *FriendHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	requests, err := h.friendService.ListPendingRequests(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "list friend requests", err)
		return
	}

	respondWithJSON(w, http.StatusOK, requests)
}

// GET /api/v1/leaderboard/friends
func (h *FriendHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	board, err := h.friendService.FriendsLeaderboard(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.logger, "friends leaderboard", err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}
