package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrChallengeInactive   = errors.New("challenge is not active")
	ErrCosmeticNotFound    = errors.New("cosmetic not found")
	ErrCosmeticNotOwned    = errors.New("cosmetic not unlocked")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrSelfReferral        = errors.New("cannot refer yourself")
	ErrAlreadyReferred     = errors.New("referral already applied")
	ErrSelfFriend          = errors.New("cannot add yourself as a friend")
	ErrFriendshipExists    = errors.New("friendship already exists")
	ErrFriendshipNotFound  = errors.New("friendship not found")
	ErrTeamNotFound        = errors.New("team not found")
	ErrTeamFull            = errors.New("team is full")
	ErrAlreadyInTeam       = errors.New("user already belongs to a team")
	ErrNotInTeam           = errors.New("user is not in a team")
	ErrNotificationMissing = errors.New("notification not found")
	ErrInvalidInput        = errors.New("invalid input")
)

// StatusCode maps a domain error to the HTTP status handlers respond with.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrChallengeNotFound),
		errors.Is(err, ErrCosmeticNotFound),
		errors.Is(err, ErrFriendshipNotFound),
		errors.Is(err, ErrTeamNotFound),
		errors.Is(err, ErrNotificationMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrFriendshipExists),
		errors.Is(err, ErrAlreadyReferred),
		errors.Is(err, ErrAlreadyInTeam),
		errors.Is(err, ErrTeamFull):
		return http.StatusConflict
	case errors.Is(err, ErrCosmeticNotOwned):
		return http.StatusForbidden
	case errors.Is(err, ErrChallengeInactive),
		errors.Is(err, ErrInvalidReferralCode),
		errors.Is(err, ErrSelfReferral),
		errors.Is(err, ErrSelfFriend),
		errors.Is(err, ErrNotInTeam),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
