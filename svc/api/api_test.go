package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/notifications"
	"github.com/dmitrymomot/usageledger/pkg/subscription"
	"github.com/dmitrymomot/usageledger/pkg/usage"
	"github.com/dmitrymomot/usageledger/svc/api"
)

var now = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *api.ErrorDetail `json:"error"`
}

type mockWebhooks struct {
	mock.Mock
}

func (m *mockWebhooks) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

type observation struct {
	method, route string
	code          int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) ObserveRequest(method, route string, code int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{method, route, code})
}

type fixture struct {
	subs     *subscription.MemoryStore
	manager  *notifications.Manager
	webhooks *mockWebhooks
	observer *recordingObserver
	server   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return now }

	subs := subscription.NewMemoryStore()
	catalog := entitlement.NewInMemCatalog(
		entitlement.Plan{ID: "basic", Type: entitlement.PlanTypeBasic, Features: map[string]any{
			"reportCreate":     5,
			"messagesPerMonth": 10,
		}},
	)
	gate := subscription.NewGate(subs, subs, subscription.WithGateClock(clock))
	svc := usage.NewService(gate, subs, catalog, usage.NewMemoryStore(), usage.WithClock(clock))

	f := &fixture{
		subs:     subs,
		manager:  notifications.NewManager(notifications.NewMemoryStorage(), notifications.NoOpDeliverer{}),
		webhooks: &mockWebhooks{},
		observer: &recordingObserver{},
	}
	f.server = api.NewHandler(svc,
		api.WithWebhooks(f.webhooks),
		api.WithInbox(f.manager),
		api.WithMetrics(f.observer, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})),
	).Routes()
	return f
}

func (f *fixture) subscribe(t *testing.T, status subscription.Status, trialEnd *time.Time) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	end := now.Add(20 * 24 * time.Hour)
	require.NoError(t, f.subs.Save(context.Background(), &subscription.Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		PlanID:           "basic",
		Status:           status,
		TrialEnd:         trialEnd,
		CurrentPeriodEnd: &end,
	}))
	return userID
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestConsume(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := f.subscribe(t, subscription.StatusActive, nil)
	path := "/v1/usage/" + userID.String() + "/consume"

	rec, env := f.do(t, http.MethodPost, path, map[string]any{"field": "reportCreate", "count": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[usage.ConsumeResult](t, env.Data)
	assert.True(t, res.Success)
	assert.Equal(t, usage.Quota(2), res.Remaining)

	rec, env = f.do(t, http.MethodPost, path, map[string]any{"field": "reportCreate", "count": 3})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "limit_exceeded", env.Error.Code)
	meta := decode[map[string]any](t, env.Data)
	assert.Equal(t, "reportCreate", meta["field"])
	assert.EqualValues(t, 2, meta["limit"])
	assert.EqualValues(t, 3, meta["required"])

	// count defaults to 1
	rec, env = f.do(t, http.MethodPost, path, map[string]any{"field": "reportCreate"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usage.Quota(1), decode[usage.ConsumeResult](t, env.Data).Remaining)
}

func TestFieldAliases(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := f.subscribe(t, subscription.StatusActive, nil)

	rec, env := f.do(t, http.MethodPost, "/v1/usage/"+userID.String()+"/consume", map[string]any{"field": "messagesUsed", "count": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usage.Quota(9), decode[usage.ConsumeResult](t, env.Data).Remaining)

	rec, env = f.do(t, http.MethodPost, "/v1/usage/"+userID.String()+"/check", map[string]any{"field": "messagesUsed", "count": 9})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[usage.CheckResult](t, env.Data)
	assert.True(t, res.CanProceed)
	assert.Equal(t, usage.Quota(9), res.Remaining)

	// An alias for an unmetered name is still rejected
	rec, env = f.do(t, http.MethodPost, "/v1/usage/"+userID.String()+"/consume", map[string]any{"field": "widgetsUsed"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_field", env.Error.Code)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.subscribe(t, subscription.StatusActive, nil)
	canceled := f.subscribe(t, subscription.StatusCanceled, nil)

	rec, env := f.do(t, http.MethodPost, "/v1/usage/"+active.String()+"/check", map[string]any{"field": "messages", "count": 11})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[usage.CheckResult](t, env.Data)
	assert.False(t, res.CanProceed)
	assert.Equal(t, usage.Quota(10), res.Remaining)
	assert.NotEmpty(t, res.Message)

	// Gate failures are still 200 with canProceed=false
	rec, env = f.do(t, http.MethodPost, "/v1/usage/"+canceled.String()+"/check", map[string]any{"field": "messages", "count": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[usage.CheckResult](t, env.Data)
	assert.False(t, res.CanProceed)
	assert.Contains(t, res.Message, "subscription_inactive")
}

func TestGetLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := f.subscribe(t, subscription.StatusActive, nil)

	rec, env := f.do(t, http.MethodGet, "/v1/usage/"+userID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	limits := decode[map[string]any](t, env.Data)
	assert.Equal(t, "basic", limits["planId"])
	remaining := limits["remaining"].(map[string]any)
	assert.EqualValues(t, 5, remaining["reportCreate"])
	assert.Nil(t, remaining["suppliers"], "unlimited renders as null")

	t.Run("vendor override", func(t *testing.T) {
		t.Parallel()
		vendorID := uuid.New()
		f.subs.PutVendor(subscription.Vendor{UserID: vendorID, Email: "ops@example.com", AllFeaturesAccess: true})

		rec, env := f.do(t, http.MethodGet, "/v1/usage/"+vendorID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		limits := decode[map[string]any](t, env.Data)
		assert.Equal(t, true, limits["override"])
		assert.Nil(t, limits["remaining"].(map[string]any)["reportCreate"])
	})
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.subscribe(t, subscription.StatusActive, nil)
	canceled := f.subscribe(t, subscription.StatusCanceled, nil)
	expiredTrial := f.subscribe(t, subscription.StatusTrialing, ptr(now.Add(-time.Hour)))

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed user id", "/v1/usage/not-a-uuid/consume", map[string]any{"field": "messages"}, http.StatusBadRequest, "invalid_user_id"},
		{"unknown field", "/v1/usage/" + active.String() + "/consume", map[string]any{"field": "widgets"}, http.StatusBadRequest, "invalid_field"},
		{"zero count", "/v1/usage/" + active.String() + "/consume", map[string]any{"field": "messages", "count": 0}, http.StatusBadRequest, "invalid_count"},
		{"unknown body field", "/v1/usage/" + active.String() + "/consume", map[string]any{"field": "messages", "amount": 2}, http.StatusBadRequest, "invalid_body"},
		{"no subscription", "/v1/usage/" + uuid.NewString() + "/consume", map[string]any{"field": "messages"}, http.StatusNotFound, "subscription_not_found"},
		{"inactive", "/v1/usage/" + canceled.String() + "/consume", map[string]any{"field": "messages"}, http.StatusForbidden, "subscription_inactive"},
		{"trial expired", "/v1/usage/" + expiredTrial.String() + "/consume", map[string]any{"field": "messages"}, http.StatusForbidden, "trial_expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, env := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := f.subscribe(t, subscription.StatusTrialing, ptr(now.Add(-time.Hour)))

	rec, _ := f.do(t, http.MethodPost, "/v1/admin/subscriptions/"+userID.String()+"/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	sub, err := f.subs.GetByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, sub.Status)

	// Already reset: still a no-op success
	rec, _ = f.do(t, http.MethodPost, "/v1/admin/subscriptions/"+userID.String()+"/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPaddleWebhook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	payload := []byte(`{"event_type":"subscription.created"}`)
	f.webhooks.On("HandleWebhook", mock.Anything, payload, "ts=1;h1=good").Return(nil).Once()
	f.webhooks.On("HandleWebhook", mock.Anything, payload, "ts=1;h1=bad").
		Return(subscription.ErrWebhookVerificationFailed).Once()

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/billing/paddle/webhook", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Paddle-Signature", signature)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("ts=1;h1=good").Code)
	assert.Equal(t, http.StatusUnauthorized, send("ts=1;h1=bad").Code)
	f.webhooks.AssertExpectations(t)
}

func TestNotifications(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	ctx := context.Background()
	require.NoError(t, f.manager.Notify(ctx, userID, "Trial ending", "2 days left", notifications.TypeInfo, nil, notifications.PriorityNormal))
	require.NoError(t, f.manager.Notify(ctx, userID, "Downgraded", "Moved to free", notifications.TypeWarning, nil, notifications.PriorityHigh))

	rec, env := f.do(t, http.MethodGet, "/v1/notifications/"+userID.String()+"?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Items  []notifications.Notification `json:"items"`
		Unread int                          `json:"unread"`
	}](t, env.Data)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Unread)

	rec, env = f.do(t, http.MethodGet, "/v1/notifications/"+userID.String()+"?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", env.Error.Code)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := f.subscribe(t, subscription.StatusActive, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/usage/"+userID.String()+"/consume", strings.NewReader(`{"field":"messages"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(api.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(api.RequestIDHeader, "bad id with spaces")
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	_, err := uuid.Parse(rec.Header().Get(api.RequestIDHeader))
	assert.NoError(t, err, "invalid ids are replaced")

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, "# metrics", rec.Body.String())

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	assert.Contains(t, f.observer.seen, observation{http.MethodPost, "/v1/usage/{userID}/consume", http.StatusOK})
	assert.Contains(t, f.observer.seen, observation{http.MethodGet, "/health/live", http.StatusOK})
}

func TestRequestIDFromContext(t *testing.T) {
	t.Parallel()

	var got string
	h := api.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = api.RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(api.RequestIDHeader))

	attr, ok := api.RequestIDExtractor()(context.Background())
	assert.False(t, ok)
	assert.Empty(t, attr.Key)
}

func ptr[T any](v T) *T { return &v }
