package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"ecoStreakAPI/internal/types/notification"
)

type FCMOptions struct {
	// ServiceAccountJSON is the base64 encoded service account key. It wins over CredentialsFile.
	ServiceAccountJSON string
	CredentialsFile    string
}

type FCMService struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewFCMService initializes the messaging client from base64 credentials, falling
// back to a local service account key file.
func NewFCMService(ctx context.Context, opts FCMOptions, logger *zap.Logger) (*FCMService, error) {
	var opt option.ClientOption

	if opts.ServiceAccountJSON != "" {
		decoded, err := base64.StdEncoding.DecodeString(opts.ServiceAccountJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		logger.Info("fcm credentials loaded from environment")
	} else {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %q unavailable and FCM_SERVICE_ACCOUNT_JSON is not set: %w", opts.CredentialsFile, err)
		}
		opt = option.WithCredentialsFile(opts.CredentialsFile)
		logger.Info("fcm credentials loaded from file", zap.String("path", opts.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, logger: logger}, nil
}

// SendPush sends one message per token. It fails only when every send failed.
func (s *FCMService) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	if len(tokens) == 0 {
		return nil
	}

	stringData := make(map[string]string, len(data))
	for k, v := range data {
		stringData[k] = fmt.Sprintf("%v", v)
	}

	successCount := 0
	failureCount := 0
	for _, token := range tokens {
		_, err := s.client.Send(ctx, buildMessage(token, title, body, stringData))
		if err != nil {
			failureCount++
			if messaging.IsUnregistered(err) {
				s.logger.Info("fcm token unregistered", zap.String("platform", token.Platform))
				continue
			}
			s.logger.Warn("fcm send failed", zap.String("platform", token.Platform), zap.Error(err))
			continue
		}
		successCount++
	}

	s.logger.Debug("fcm batch sent", zap.Int("sent", successCount), zap.Int("failed", failureCount))

	if successCount == 0 && failureCount > 0 {
		return fmt.Errorf("all %d push notifications failed", failureCount)
	}
	return nil
}

func buildMessage(token notification.DeviceToken, title, body string, data map[string]string) *messaging.Message {
	msg := &messaging.Message{
		Token: token.Token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	switch token.Platform {
	case "ios":
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	default:
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		}
	}
	return msg
}
