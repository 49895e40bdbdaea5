package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"civicBadgesAPI/internal/badge"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Messenger is the part of the FCM client the notifier uses.
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier pushes newly earned badges to the user's FCM topic.
type FCMNotifier struct {
	client Messenger
	logger *zap.Logger
}

// NewFCMNotifier initializes the Firebase app. Credentials come from the
// base64 FCM_SERVICE_ACCOUNT_JSON variable when set, otherwise from
// credentialsFile. The client outlives any startup deadline, so it is built
// on the background context.
func NewFCMNotifier(credentialsFile string, logger *zap.Logger) (*FCMNotifier, error) {
	var opt option.ClientOption

	if encoded := os.Getenv("FCM_SERVICE_ACCOUNT_JSON"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FCM_SERVICE_ACCOUNT_JSON: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		logger.Info("FCM notifier initializing from environment")
	} else {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %q: %w", credentialsFile, err)
		}
		opt = option.WithCredentialsFile(credentialsFile)
		logger.Info("FCM notifier initializing from file", zap.String("path", credentialsFile))
	}

	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return NewFCMNotifierWithClient(client, logger), nil
}

func NewFCMNotifierWithClient(client Messenger, logger *zap.Logger) *FCMNotifier {
	return &FCMNotifier{client: client, logger: logger}
}

// UserTopic is the FCM topic a user's devices subscribe to.
func UserTopic(userID uuid.UUID) string {
	return "user-" + userID.String()
}

// BadgeMessage builds the push payload announcing def to userID.
func BadgeMessage(userID uuid.UUID, def badge.Definition) *messaging.Message {
	return &messaging.Message{
		Topic: UserTopic(userID),
		Notification: &messaging.Notification{
			Title: "Badge unlocked: " + def.Name,
			Body:  def.Description,
		},
		Data: map[string]string{
			"type":     "badge_earned",
			"badge_id": def.ID.String(),
			"slug":     def.Slug,
			"category": string(def.Category),
			"rarity":   string(def.Rarity),
			"icon":     def.Icon,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
	}
}

func (n *FCMNotifier) BadgeEarned(ctx context.Context, userID uuid.UUID, def badge.Definition) error {
	id, err := n.client.Send(ctx, BadgeMessage(userID, def))
	if err != nil {
		return fmt.Errorf("failed to push badge %s: %w", def.Slug, err)
	}
	n.logger.Debug("Badge push sent",
		zap.String("user_id", userID.String()),
		zap.String("slug", def.Slug),
		zap.String("message_id", id),
	)
	return nil
}
