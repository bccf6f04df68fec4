package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ecoStreakAPI/internal/apperrors"
	"ecoStreakAPI/internal/reward"
	"ecoStreakAPI/internal/storage/postgres"
	"ecoStreakAPI/internal/streak"
	"ecoStreakAPI/internal/testutil"
	"ecoStreakAPI/internal/types/challenge"
	"ecoStreakAPI/internal/types/friendship"
	"ecoStreakAPI/internal/types/team"
	"ecoStreakAPI/internal/types/user"
	"ecoStreakAPI/services"
)

func TestUserService_CreateUserIsIdempotent(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	users := services.NewUserService(pool, zaptest.NewLogger(t))
	ctx := context.Background()

	req := &user.CreateUserRequest{ClerkID: "user_new", Email: "a@example.com", FirstName: "Ada"}
	created, inserted, err := users.CreateUser(ctx, req)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Len(t, created.ReferralCode, 8)
	assert.NotEmpty(t, created.Username)

	req.Email = "b@example.com"
	again, inserted, err := users.CreateUser(ctx, req)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, created.ReferralCode, again.ReferralCode)
	assert.Equal(t, "b@example.com", again.Email)
}

func TestUserService_ProfileAndDelete(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	users := services.NewUserService(pool, zaptest.NewLogger(t))
	ctx := context.Background()

	owner := testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_owner", Username: "owner"})
	testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_viewer", Username: "viewer"})

	profile, err := users.GetPublicProfile(ctx, "user_viewer", owner)
	require.NoError(t, err)
	assert.Equal(t, "owner", profile.User.Username)
	assert.Empty(t, profile.User.Email)
	assert.False(t, profile.IsFriend)

	updated, err := users.UpdateProfileByClerkID(ctx, "user_owner", &user.UpdateProfileRequest{Username: "viewer"})
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	found, err := users.SearchUsers(ctx, "user_viewer", "own")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, owner, found[0].ID)

	require.NoError(t, users.DeleteUserByClerkID(ctx, "user_owner"))
	_, err = users.GetUserByID(ctx, owner)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	assert.ErrorIs(t, users.DeleteUserByClerkID(ctx, "user_owner"), apperrors.ErrUserNotFound)
}

func TestFriendService_RequestAcceptAndLeaderboard(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	logger := zaptest.NewLogger(t)
	notifications := services.NewNotificationService(pool, logger)
	t.Cleanup(notifications.Stop)
	friends := services.NewFriendService(pool, notifications, logger)
	ctx := context.Background()

	alice := testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_alice", Username: "alice", TotalCO2Saved: 20, CurrentStreak: 2, LongestStreak: 2})
	bob := testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_bob", Username: "bob", TotalCO2Saved: 35})
	testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_carol", Username: "carol", TotalCO2Saved: 99})

	_, err := friends.SendRequest(ctx, "user_alice", alice)
	assert.ErrorIs(t, err, apperrors.ErrSelfFriend)

	f, err := friends.SendRequest(ctx, "user_alice", bob)
	require.NoError(t, err)
	assert.Equal(t, friendship.FriendshipPending, f.Status)

	_, err = friends.SendRequest(ctx, "user_alice", bob)
	assert.ErrorIs(t, err, apperrors.ErrFriendshipExists)

	pending, err := friends.ListPendingRequests(ctx, "user_bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alice, pending[0].FromID)

	// a request in the opposite direction accepts the pending one
	f, err = friends.SendRequest(ctx, "user_bob", alice)
	require.NoError(t, err)
	assert.Equal(t, friendship.FriendshipAccepted, f.Status)

	board, err := friends.FriendsLeaderboard(ctx, "user_alice")
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "bob", board.Entries[0].Username)
	require.NotNil(t, board.UserPosition)
	assert.Equal(t, 2, board.UserPosition.Rank)

	unread, err := notifications.GetUnreadCount(ctx, "user_alice")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, friends.RemoveFriend(ctx, "user_bob", alice))
	assert.ErrorIs(t, friends.RemoveFriend(ctx, "user_bob", alice), apperrors.ErrFriendshipNotFound)
}

func TestTeamService_OwnershipTransfer(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	teams := services.NewTeamService(pool, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_owner", TotalCO2Saved: 10})
	member := testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_member", TotalCO2Saved: 5})

	created, err := teams.CreateTeam(ctx, "user_owner", &team.CreateTeamRequest{Name: "Green Riders"})
	require.NoError(t, err)

	_, err = teams.CreateTeam(ctx, "user_member", &team.CreateTeamRequest{Name: "Green Riders"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	joined, err := teams.JoinTeam(ctx, "user_member", created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	_, err = teams.JoinTeam(ctx, "user_member", created.ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInTeam)

	board, err := teams.TeamLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.InDelta(t, 15.0, board[0].TotalCO2Saved, 1e-9)

	require.NoError(t, teams.LeaveTeam(ctx, "user_owner"))
	details, err := teams.GetTeam(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, member, details.Team.OwnerID)
	require.Len(t, details.Members, 1)
	assert.Equal(t, team.RoleOwner, details.Members[0].Role)

	require.NoError(t, teams.LeaveTeam(ctx, "user_member"))
	_, err = teams.GetTeam(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrTeamNotFound)
	assert.ErrorIs(t, teams.LeaveTeam(ctx, "user_member"), apperrors.ErrNotInTeam)
}

func TestTeamService_MemberCap(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	teams := services.NewTeamService(pool, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_owner"})
	created, err := teams.CreateTeam(ctx, "user_owner", &team.CreateTeamRequest{Name: "Full House"})
	require.NoError(t, err)

	for i := 1; i < team.MaxMembers; i++ {
		u := testutil.InsertUser(t, pool, testutil.UserSeed{})
		_, err := pool.Exec(ctx, `INSERT INTO team_members (team_id, user_id, role) VALUES ($1, $2, 'member')`, created.ID, u)
		require.NoError(t, err)
	}

	testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_late"})
	_, err = teams.JoinTeam(ctx, "user_late", created.ID)
	assert.ErrorIs(t, err, apperrors.ErrTeamFull)
}

func TestCompletionUnlocksAndEquip(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	store := postgres.NewStore(pool)
	rewards := services.NewRewardService(store, nil, logger)
	notifications := services.NewNotificationService(pool, logger)
	t.Cleanup(notifications.Stop)
	rewards.SetNotifier(notifications)
	challenges := services.NewChallengeService(store, rewards, streak.NewCalculator(time.UTC, true), logger)
	cosmetics := services.NewCosmeticService(pool)

	testutil.InsertUser(t, pool, testutil.UserSeed{ClerkID: "user_eco", TotalCO2Saved: 9})
	frameA := testutil.InsertThreshold(t, pool, reward.MetricCO2, 10, "frame")
	frameB := testutil.InsertThreshold(t, pool, reward.MetricStreak, 1, "frame")
	testutil.InsertThreshold(t, pool, reward.MetricCO2, 100, "badge")
	c := &challenge.Challenge{Title: "Meat-free day", Category: "food", CO2Saved: 2, IsActive: true}
	testutil.InsertChallenge(t, pool, c)

	res, err := challenges.CompleteChallenge(ctx, "user_eco", c.ID)
	require.NoError(t, err)
	assert.Len(t, res.Unlocked, 2)

	catalog, err := cosmetics.GetCatalog(ctx, "user_eco")
	require.NoError(t, err)
	require.Len(t, catalog["frame"], 2)
	require.Len(t, catalog["badge"], 1)
	assert.True(t, catalog["frame"][0].Owned)
	assert.False(t, catalog["badge"][0].Owned)

	require.NoError(t, cosmetics.Equip(ctx, "user_eco", frameA))
	require.NoError(t, cosmetics.Equip(ctx, "user_eco", frameB))
	assert.ErrorIs(t, cosmetics.Equip(ctx, "user_eco", uuid.New()), apperrors.ErrCosmeticNotFound)
	assert.ErrorIs(t, cosmetics.Equip(ctx, "user_eco", catalog["badge"][0].ID), apperrors.ErrCosmeticNotOwned)

	inventory, err := cosmetics.GetInventory(ctx, "user_eco")
	require.NoError(t, err)
	equipped := 0
	for _, o := range inventory {
		if o.IsEquipped {
			equipped++
			assert.Equal(t, frameB, o.ID)
		}
	}
	assert.Equal(t, 1, equipped)

	list, err := notifications.GetNotifications(ctx, "user_eco", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalCount)

	n, err := notifications.MarkAllAsRead(ctx, "user_eco")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
