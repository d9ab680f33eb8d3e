package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tebex-license-server/internal/api"
	"github.com/mcoot/tebex-license-server/internal/api/handler"
	"github.com/mcoot/tebex-license-server/internal/api/response"
	"github.com/mcoot/tebex-license-server/internal/factory"
	"github.com/mcoot/tebex-license-server/internal/model"
	"github.com/mcoot/tebex-license-server/internal/services/issuance"
	"github.com/mcoot/tebex-license-server/internal/storage"
	"github.com/mcoot/tebex-license-server/internal/testutil"
	"github.com/mcoot/tebex-license-server/internal/webhook"
)

const (
	webhookSecret = "tebex-webhook-secret-abcdef"
	adminToken    = "admin-token-0123456789abcdef"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

type option func(*api.RouterConfig)

func withAllowList(entries ...string) option {
	return func(cfg *api.RouterConfig) {
		cfg.Guard = webhook.NewGuard([]byte(webhookSecret), entries, cfg.TrustedProxies)
	}
}

func withHTTPSRequired() option {
	return func(cfg *api.RouterConfig) { cfg.RequireHTTPS = true }
}

func withoutTestPayments() option {
	return func(cfg *api.RouterConfig) { cfg.AllowTestPayments = false }
}

func withStorage(store storage.Storage) option {
	return func(cfg *api.RouterConfig) {
		cfg.Storage = store
	}
}

func newTestServer(t *testing.T, opts ...option) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	cfg := api.RouterConfig{
		Logger:            testutil.NopLogger(),
		Storage:           app.Storage,
		Issuance:          app.IssuanceService,
		Validation:        app.ValidationService,
		Guard:             webhook.NewGuard([]byte(webhookSecret), nil, 1),
		Decoder:           webhook.NewDecoder(),
		Metrics:           app.Metrics,
		Clock:             app.MockClock,
		AllowTestPayments: true,
		TrustedProxies:    1,
		AdminToken:        adminToken,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Storage != app.Storage {
		cfg.Issuance = issuance.New(cfg.Storage, app.Codec, app.Queue, app.MockClock,
			issuance.Config{ProductID: factory.TestProductID}, app.Metrics, testutil.NopLogger())
	}

	return &testServer{handler: api.NewRouter(cfg), app: app}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// webhook posts raw to /tebex; an empty signature sends no header
func (ts *testServer) webhook(raw []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/tebex", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	return ts.do(req)
}

func (ts *testServer) signedWebhook(t *testing.T, event any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return ts.webhook(raw, webhook.Sign([]byte(webhookSecret), raw))
}

func purchase(id string, productID int64) map[string]any {
	return map[string]any{
		"id":   id,
		"type": model.EventTypePaymentCompleted,
		"subject": map[string]any{
			"customer": map[string]any{
				"username": map[string]any{"username": "Alice"},
				"email":    "alice@example.com",
			},
			"products": []map[string]any{{"id": productID}},
		},
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, handler.RootMessage, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestHealthCheckStoreDown(t *testing.T) {
	ts := newTestServer(t, withStorage(brokenStorage{factory.NewTestApp().MemStore}))

	rr := ts.get("/health")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"ok":false}`, rr.Body.String())
}

func TestHandshake(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.signedWebhook(t, map[string]any{"id": "x1", "type": model.EventTypeValidation})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"x1"}`, rr.Body.String())
}

func TestWebhookAliasRoute(t *testing.T) {
	ts := newTestServer(t)

	raw := []byte(`{"id":"x1","type":"validation.webhook"}`)
	req := httptest.NewRequest(http.MethodPost, "/tebex/webhook", bytes.NewReader(raw))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign([]byte(webhookSecret), raw))

	rr := ts.do(req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"x1"}`, rr.Body.String())
}

func TestIssueAndValidate(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.signedWebhook(t, purchase("evt-1", factory.TestProductID))
	require.Equal(t, http.StatusOK, rr.Code)

	issued := decode[response.Issued](t, rr)
	assert.Equal(t, "evt-1", issued.ID)
	assert.True(t, issued.Success)
	assert.Equal(t, "Alice", issued.Player)
	assert.NotEmpty(t, issued.License)
	assert.Greater(t, issued.Expires, ts.app.MockClock.Now().UnixMilli())

	rr = ts.get("/validate?key=" + issued.License)
	require.Equal(t, http.StatusOK, rr.Code)

	valid := decode[response.Validation](t, rr)
	assert.True(t, valid.Valid)
	assert.Equal(t, "Alice", valid.Player)
	assert.Equal(t, issued.Expires, valid.Expires)
}

func TestWebhookReplayReturnsSameLicense(t *testing.T) {
	ts := newTestServer(t)

	first := decode[response.Issued](t, ts.signedWebhook(t, purchase("evt-1", factory.TestProductID)))
	second := decode[response.Issued](t, ts.signedWebhook(t, purchase("evt-1", factory.TestProductID)))

	assert.Equal(t, first.License, second.License)
	assert.Equal(t, 1, ts.app.MemStore.Count())
}

func TestOtherProductIgnored(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.signedWebhook(t, purchase("evt-2", 42))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"evt-2","ignored":true}`, rr.Body.String())
	assert.Equal(t, 0, ts.app.MemStore.Count())
}

func TestOddProductIDIgnored(t *testing.T) {
	ts := newTestServer(t)

	event := purchase("evt-4", 0)
	event["subject"].(map[string]any)["products"] = []map[string]any{{"id": "7156613"}}

	rr := ts.signedWebhook(t, event)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"evt-4","ignored":true}`, rr.Body.String())
	assert.Equal(t, 0, ts.app.MemStore.Count())
}

func TestUnknownEventReceived(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.signedWebhook(t, map[string]any{"id": "evt-3", "type": "recurring-payment.started"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"evt-3","received":true}`, rr.Body.String())
}

func TestUnsignedWebhookRejected(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.webhook([]byte(`{"id":"evt-1","type":"payment.completed"}`), "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"id":"evt-1","error":"invalid_signature"}`, rr.Body.String())
}

func TestBadSignatureRejected(t *testing.T) {
	ts := newTestServer(t)

	raw, err := json.Marshal(purchase("evt-1", factory.TestProductID))
	require.NoError(t, err)

	rr := ts.webhook(raw, webhook.Sign([]byte("some-other-secret"), raw))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 0, ts.app.MemStore.Count())

	// Signature over different bytes
	rr = ts.webhook(raw, webhook.Sign([]byte(webhookSecret), append(raw, ' ')))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestTestPaymentBypassesSignature(t *testing.T) {
	event := purchase("evt-t", factory.TestProductID)
	event["subject"].(map[string]any)["payment_method"] = map[string]any{"name": model.TestPaymentMethod}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	ts := newTestServer(t)
	rr := ts.webhook(raw, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[response.Issued](t, rr).Success)

	ts = newTestServer(t, withoutTestPayments())
	rr = ts.webhook(raw, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestInvalidPayload(t *testing.T) {
	ts := newTestServer(t)

	raw := []byte(`{"id":`)
	rr := ts.webhook(raw, webhook.Sign([]byte(webhookSecret), raw))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"invalid_payload"}`, rr.Body.String())

	// Unsigned garbage fails authentication first
	rr = ts.webhook(raw, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPayloadTooLarge(t *testing.T) {
	ts := newTestServer(t)

	raw := []byte(`{"id":"big","pad":"` + strings.Repeat("a", api.MaxBodyBytes) + `"}`)
	rr := ts.webhook(raw, webhook.Sign([]byte(webhookSecret), raw))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.JSONEq(t, `{"error":"payload_too_large"}`, rr.Body.String())
}

func TestAllowList(t *testing.T) {
	ts := newTestServer(t, withAllowList("18.209.80.3", "54.87.231."))

	raw := []byte(`{"id":"x1","type":"validation.webhook"}`)
	sig := webhook.Sign([]byte(webhookSecret), raw)

	// The proxy appends the peer it saw, so that is the last hop; anything
	// before it came from the caller.
	cases := []struct {
		name      string
		forwarded string
		want      int
	}{
		{"exact", "18.209.80.3", http.StatusOK},
		{"prefix", "54.87.231.232", http.StatusOK},
		{"mapped", "::ffff:18.209.80.3", http.StatusOK},
		{"caller supplied hops ignored", "10.9.9.9, 18.209.80.3", http.StatusOK},
		{"other", "10.0.0.1", http.StatusForbidden},
		{"spoofed first hop", "18.209.80.3, 6.6.6.6", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tebex", bytes.NewReader(raw))
			req.Header.Set(webhook.SignatureHeader, sig)
			req.Header.Set("X-Forwarded-For", tc.forwarded)

			rr := ts.do(req)
			assert.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusForbidden {
				assert.JSONEq(t, `{"id":"x1","error":"ip_not_allowed"}`, rr.Body.String())
			}
		})
	}

	t.Run("unparseable body still rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tebex", strings.NewReader("not json"))
		req.Header.Set("X-Forwarded-For", "6.6.6.6")

		rr := ts.do(req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"ip_not_allowed"}`, rr.Body.String())
	})
}

func TestHTTPSRequired(t *testing.T) {
	ts := newTestServer(t, withHTTPSRequired())

	rr := ts.get("/health")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"https_required"}`, rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, http.StatusOK, ts.do(req).Code)
}

func TestValidateRejections(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/validate",
		"/validate?key=",
		"/validate?key=short",
		"/validate?key=this.is.definitely.not.a.jwt",
	} {
		rr := ts.get(path)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.JSONEq(t, `{"valid":false}`, rr.Body.String(), path)
	}
}

func TestValidateRateLimit(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < api.DefaultValidateLimit.Requests; i++ {
		require.Equal(t, http.StatusOK, ts.get("/validate?key=x").Code)
	}

	rr := ts.get("/validate?key=x")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// The window refills with time
	ts.app.MockClock.Advance(api.DefaultValidateLimit.Window)
	assert.Equal(t, http.StatusOK, ts.get("/validate?key=x").Code)
}

func TestRevoke(t *testing.T) {
	ts := newTestServer(t)

	issued := decode[response.Issued](t, ts.signedWebhook(t, purchase("evt-1", factory.TestProductID)))

	revoke := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/admin/licenses/"+issued.License, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return ts.do(req)
	}

	assert.Equal(t, http.StatusUnauthorized, revoke("").Code)
	assert.Equal(t, http.StatusUnauthorized, revoke("wrong").Code)

	rr := revoke(adminToken)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"revoked":true}`, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, revoke(adminToken).Code)
	assert.JSONEq(t, `{"valid":false}`, ts.get("/validate?key="+issued.License).Body.String())
}

func TestRevokedPurchaseCannotBeReplayed(t *testing.T) {
	ts := newTestServer(t)

	issued := decode[response.Issued](t, ts.signedWebhook(t, purchase("evt-1", factory.TestProductID)))

	req := httptest.NewRequest(http.MethodDelete, "/admin/licenses/"+issued.License, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, ts.do(req).Code)

	rr := ts.signedWebhook(t, purchase("evt-1", factory.TestProductID))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"evt-1","ignored":true}`, rr.Body.String())
	assert.Equal(t, 0, ts.app.MemStore.Count())
	assert.JSONEq(t, `{"valid":false}`, ts.get("/validate?key="+issued.License).Body.String())
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.get("/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rr.Body.String())

	rr = ts.get("/tebex")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signedWebhook(t, purchase("evt-1", factory.TestProductID))

	rr := ts.get("/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "license_server_licenses_issued_total")
}

// brokenStorage fails every write with a non-reset error and is unreachable
type brokenStorage struct {
	storage.Storage
}

func (brokenStorage) Ping(context.Context) error {
	return errors.New("connection refused")
}

func (brokenStorage) InsertLicense(context.Context, *model.Record) error {
	return errors.New("disk full")
}

func TestPersistenceFailure(t *testing.T) {
	app := factory.NewTestApp()
	ts := newTestServer(t, withStorage(brokenStorage{app.MemStore}))

	rr := ts.signedWebhook(t, purchase("evt-1", factory.TestProductID))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"id":"evt-1","error":"internal_error"}`, rr.Body.String())
}
