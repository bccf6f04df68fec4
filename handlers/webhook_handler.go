package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ecoStreakAPI/internal/types/clerk"
	"ecoStreakAPI/internal/types/user"
	"ecoStreakAPI/services"
)

const webhookTolerance = 5 * time.Minute

type WebhookHandler struct {
	userService     *services.UserService
	referralService *services.ReferralService
	secret          string
	logger          *zap.Logger
	now             func() time.Time
}

func NewWebhookHandler(userService *services.UserService, referralService *services.ReferralService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		userService:     userService,
		referralService: referralService,
		secret:          secret,
		logger:          logger,
		now:             time.Now,
	}
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("error reading webhook body", zap.Error(err))
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if h.secret == "" {
		h.logger.Warn("CLERK_WEBHOOK_SECRET not set, skipping signature verification")
	} else if err := verifySvixSignature(h.secret, r.Header, body, h.now()); err != nil {
		h.logger.Warn("invalid webhook signature", zap.Error(err))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event clerk.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("error parsing webhook", zap.Error(err))
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	h.logger.Info("received webhook event", zap.String("type", event.Type))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case "user.created":
		err = h.handleUserCreated(ctx, event.Data)
	case "user.updated":
		err = h.handleUserUpdated(ctx, event.Data)
	case "user.deleted":
		err = h.handleUserDeleted(ctx, event.Data)
	default:
		h.logger.Debug("unhandled webhook event type", zap.String("type", event.Type))
	}
	if err != nil {
		h.logger.Error("error processing webhook", zap.String("type", event.Type), zap.Error(err))
		http.Error(w, "Error processing webhook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

func (h *WebhookHandler) handleUserCreated(ctx context.Context, data json.RawMessage) error {
	var userData clerk.ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	email, _ := userData.PrimaryEmail()
	imageURL := userData.ImageURL
	if imageURL == "" {
		imageURL = userData.ProfileImageURL
	}

	created, inserted, err := h.userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   userData.ID,
		Email:     email,
		Username:  userData.Username,
		FirstName: userData.FirstName,
		LastName:  userData.LastName,
		ImageURL:  imageURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create user in database: %w", err)
	}

	// redeliveries must not re-apply the invite
	if code := userData.ReferralCode(); inserted && code != "" {
		if _, err := h.referralService.Apply(ctx, created.ID, code); err != nil {
			h.logger.Warn("sign-up referral not applied",
				zap.String("user_id", created.ID.String()),
				zap.String("code", code),
				zap.Error(err),
			)
		}
	}

	h.logger.Info("user created", zap.String("user_id", created.ID.String()), zap.Bool("inserted", inserted))
	return nil
}

func (h *WebhookHandler) handleUserUpdated(ctx context.Context, data json.RawMessage) error {
	var userData clerk.ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if err := h.userService.SyncFromClerk(ctx, &userData); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (h *WebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var userData struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if err := h.userService.DeleteUserByClerkID(ctx, userData.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// verifySvixSignature checks the svix-signature header against an HMAC-SHA256 of
// "id.timestamp.body" keyed with the decoded whsec_ secret.
func verifySvixSignature(secret string, header http.Header, body []byte, now time.Time) error {
	svixID := header.Get("svix-id")
	svixTimestamp := header.Get("svix-timestamp")
	svixSignature := header.Get("svix-signature")
	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		return fmt.Errorf("missing signature headers")
	}

	ts, err := strconv.ParseInt(svixTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > webhookTolerance || sent.Sub(now) > webhookTolerance {
		return fmt.Errorf("timestamp outside tolerance")
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return fmt.Errorf("invalid webhook secret: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(svixID + "." + svixTimestamp + "."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// space separated list of "version,signature"
	for _, candidate := range strings.Fields(svixSignature) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("no matching signature")
}
