package notification

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"path/filepath"
	"testing"

	"civicBadgesAPI/internal/badge"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessenger struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/civic/messages/1", nil
}

func testDefinition() badge.Definition {
	return badge.Definition{
		ID:          badge.DefinitionID("water_guardian"),
		Slug:        "water_guardian",
		Name:        "Water Guardian",
		Description: "5 complaints in Water/Sanitation",
		Icon:        "Droplet",
		Category:    badge.CategoryCategorySpecialist,
		Rarity:      badge.RarityUncommon,
		Threshold:   5,
	}
}

func TestBadgeEarned_SendsToUserTopic(t *testing.T) {
	fake := &fakeMessenger{}
	n := NewFCMNotifierWithClient(fake, zap.NewNop())
	userID := uuid.New()

	require.NoError(t, n.BadgeEarned(context.Background(), userID, testDefinition()))

	require.Len(t, fake.sent, 1)
	msg := fake.sent[0]
	assert.Equal(t, "user-"+userID.String(), msg.Topic)
	assert.Equal(t, "Badge unlocked: Water Guardian", msg.Notification.Title)
	assert.Equal(t, "badge_earned", msg.Data["type"])
	assert.Equal(t, "water_guardian", msg.Data["slug"])
	assert.Equal(t, "UNCOMMON", msg.Data["rarity"])
	assert.Equal(t, "high", msg.Android.Priority)
}

func TestBadgeEarned_WrapsSendError(t *testing.T) {
	sendErr := errors.New("quota exceeded")
	n := NewFCMNotifierWithClient(&fakeMessenger{err: sendErr}, zap.NewNop())

	err := n.BadgeEarned(context.Background(), uuid.New(), testDefinition())
	assert.ErrorIs(t, err, sendErr)
	assert.Contains(t, err.Error(), "water_guardian")
}

func serviceAccountJSON(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "civic-badges-test",
		"private_key_id": "test-key",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":   "badges@civic-badges-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)
	return raw
}

func TestNewFCMNotifier_FromEnvironment(t *testing.T) {
	t.Setenv("FCM_SERVICE_ACCOUNT_JSON", base64.StdEncoding.EncodeToString(serviceAccountJSON(t)))

	n, err := NewFCMNotifier("", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotNil(t, n.client)
}

func TestNewFCMNotifier_MissingCredentials(t *testing.T) {
	t.Setenv("FCM_SERVICE_ACCOUNT_JSON", "")

	_, err := NewFCMNotifier(filepath.Join(t.TempDir(), "missing.json"), zap.NewNop())
	assert.Error(t, err)
}

func TestNewFCMNotifier_BadEncoding(t *testing.T) {
	t.Setenv("FCM_SERVICE_ACCOUNT_JSON", "not base64!")

	_, err := NewFCMNotifier("", zap.NewNop())
	assert.Error(t, err)
}
