package subscription_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/subscription"
)

const testWebhookSecret = "pdl_ntfset_test_secret"

func sign(t *testing.T, payload []byte) string {
	t.Helper()

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(ts + ":"))
	mac.Write(payload)
	return "ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestPaddle(t *testing.T) *subscription.PaddleProvider {
	t.Helper()

	p, err := subscription.NewPaddleProvider(subscription.PaddleConfig{
		APIKey:        "pdl_sdbx_apikey_test",
		WebhookSecret: testWebhookSecret,
		Environment:   "sandbox",
		PriceToPlan:   map[string]string{"pri_pro": "professional"},
	})
	require.NoError(t, err)
	return p
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewPaddleProvider(subscription.PaddleConfig{WebhookSecret: "x"})
	assert.ErrorIs(t, err, subscription.ErrMissingAPIKey)

	_, err = subscription.NewPaddleProvider(subscription.PaddleConfig{APIKey: "x"})
	assert.ErrorIs(t, err, subscription.ErrMissingWebhookSecret)

	_, err = subscription.NewPaddleProvider(subscription.PaddleConfig{APIKey: "x", WebhookSecret: "y", Environment: "staging"})
	assert.ErrorIs(t, err, subscription.ErrInvalidProviderEnvironment)
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	provider := newTestPaddle(t)
	userID := uuid.New()

	t.Run("subscription updated", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_01",
			"event_type": "subscription.updated",
			"occurred_at": "2026-04-01T10:00:00Z",
			"data": {
				"id": "sub_01",
				"status": "trialing",
				"custom_data": {"user_id": "` + userID.String() + `"},
				"current_billing_period": {"starts_at": "2026-04-01T00:00:00Z", "ends_at": "2026-05-01T00:00:00Z"},
				"items": [{"price": {"id": "pri_pro"}, "trial_dates": {"ends_at": "2026-04-15T00:00:00Z"}}]
			}
		}`)

		event, err := provider.ParseWebhook(context.Background(), payload, sign(t, payload))
		require.NoError(t, err)

		assert.Equal(t, subscription.EventSubscriptionUpdated, event.Type)
		assert.Equal(t, "sub_01", event.SubscriptionID)
		assert.Equal(t, userID, event.UserID)
		assert.Equal(t, subscription.StatusTrialing, event.Status)
		assert.Equal(t, "professional", event.PlanID)
		require.NotNil(t, event.TrialEnd)
		assert.Equal(t, time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC), *event.TrialEnd)
		require.NotNil(t, event.CurrentPeriodEnd)
		assert.Equal(t, time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), *event.CurrentPeriodEnd)
	})

	t.Run("transaction completed", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"event_id": "evt_02",
			"event_type": "transaction.completed",
			"data": {
				"id": "txn_01",
				"status": "completed",
				"subscription_id": "sub_02",
				"custom_data": {"user_id": "` + userID.String() + `"},
				"items": [{"price_id": "pri_basic"}]
			}
		}`)

		event, err := provider.ParseWebhook(context.Background(), payload, sign(t, payload))
		require.NoError(t, err)

		assert.Equal(t, subscription.EventCheckoutCompleted, event.Type)
		assert.Equal(t, "sub_02", event.SubscriptionID)
		assert.Equal(t, "pri_basic", event.PlanID)
		assert.Empty(t, event.Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"event_type": "subscription.canceled", "data": {}}`)
		_, err := provider.ParseWebhook(context.Background(), payload, "ts=1;h1=deadbeef")
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
	})

	t.Run("missing user id", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"event_id": "evt_03", "event_type": "subscription.canceled", "data": {"id": "sub_03"}}`)
		_, err := provider.ParseWebhook(context.Background(), payload, sign(t, payload))
		assert.ErrorIs(t, err, subscription.ErrMissingUserID)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"event_type":`)
		_, err := provider.ParseWebhook(context.Background(), payload, sign(t, payload))
		assert.ErrorIs(t, err, subscription.ErrInvalidWebhookPayload)
	})
}
