package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moldline/internal/catalog"
	"moldline/internal/config"
	"moldline/internal/db"
	"moldline/internal/engine"
	"moldline/internal/metrics"
	"moldline/internal/migrate"
)

const seedCatalog = `
orders:
  - {id: SO-1, product: X, order_date: "2026-10-01", due_date: "2026-10-10"}
  - {id: SO-2, product: X, order_date: "2026-10-02"}
  - {id: SO-3, product: X, order_date: "2026-10-03"}
  - {id: SO-4, product: X, order_date: "2026-10-04"}
  - {id: SO-5, product: Y, order_date: "2026-10-05"}
molds:
  - {id: M1, name: Big, products: [X], multiplier: 2}
  - {id: M2, name: Small, products: [x], multiplier: 1}
workers:
  - {id: W1, department: molding, rate: "1.25", hours_per_day: "8"}
`

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, authCfg AuthConfig, mutate func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("site-1")
	if mutate != nil {
		mutate(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	e.Metrics = metrics.New()
	f, err := catalog.Parse([]byte(seedCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	if _, err := e.ImportCatalog(context.Background(), f, "tester"); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: authCfg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestGenerateScheduleEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{}, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedule/generate", map[string]any{
		"scheduleDays":    1,
		"startDate":       "2026-10-19",
		"maxOrdersPerDay": 3,
	}, map[string]string{"X-Actor-Id": "planner"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate status %d: %s", res.StatusCode, string(data))
	}
	var gen GenerateScheduleResponse
	if err := json.Unmarshal(data, &gen); err != nil {
		t.Fatalf("unmarshal generate: %v", err)
	}
	require.Len(t, gen.Allocations, 3)
	assert.Equal(t, "2026-10-19", gen.Allocations[0].WorkDay)
	assert.Equal(t, "M1", gen.Allocations[0].MoldID)
	assert.Equal(t, 5, gen.Analytics.TotalOrders)
	assert.Equal(t, 60.0, gen.Analytics.Efficiency)
	assert.Equal(t, 10, gen.Analytics.DailyCapacity)
	assert.True(t, gen.Analytics.HintOverridden)
	assert.Equal(t, []string{"SO-5"}, gen.Analytics.Failures.NoCompatibleMold)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/schedule?from=2026-10-19&to=2026-10-19", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("schedule status %d: %s", res.StatusCode, string(data))
	}
	var sched ScheduleResponse
	require.NoError(t, json.Unmarshal(data, &sched))
	assert.Equal(t, "molding", sched.Scope)
	assert.Len(t, sched.Allocations, 3)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/schedule/runs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("runs status %d: %s", res.StatusCode, string(data))
	}
	var runs []RunResponse
	require.NoError(t, json.Unmarshal(data, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, gen.RunID, runs[0].ID)
	assert.Equal(t, "planner", runs[0].ActorID)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=schedule.generated", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var evts paginatedEvents
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	payload := evts.Items[0].Payload
	assert.Equal(t, float64(3), payload["scheduled"])
	assert.Equal(t, gen.RunID, payload["run_id"])
	refs, ok := payload["allocations"].([]any)
	require.True(t, ok, "allocations missing from payload: %v", payload)
	require.Len(t, refs, 3)
	assert.Equal(t, "M1", refs[0].(map[string]any)["mold_id"])
	scheduleURL, ok := payload["schedule_url"].(string)
	require.True(t, ok)
	assert.Equal(t, "/v1/schedule?from=2026-10-19&scope=molding&to=2026-10-19", scheduleURL)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+scheduleURL, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var linked ScheduleResponse
	require.NoError(t, json.Unmarshal(data, &linked))
	assert.Len(t, linked.Allocations, 3)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	assert.Contains(t, string(data), "moldline_schedule_runs_total")
}

func TestGenerateScheduleRejectsBadInput(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{}, nil)
	defer cleanup()
	client := srv.Client()

	for _, body := range []map[string]any{
		{"scheduleDays": 0},
		{"scheduleDays": 261},
		{"scheduleDays": 5, "maxOrdersPerDay": 0},
		{"scheduleDays": 5, "startDate": "19/10/2026"},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedule/generate", body, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d %s", body, res.StatusCode, string(data))
		}
		var envelope ApiError
		require.NoError(t, json.Unmarshal(data, &envelope))
		assert.Equal(t, "bad_request", envelope.Error.Code)
	}

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/schedule?from=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGenerateScheduleHonorsConfiguredMaxDays(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{}, func(cfg *config.Config) {
		cfg.Scheduling.MaxDays = 300
	})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/schedule/generate", map[string]any{"scheduleDays": 280, "startDate": "2026-10-19"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var gen GenerateScheduleResponse
	require.NoError(t, json.Unmarshal(data, &gen))
	assert.Equal(t, 280, gen.Analytics.WorkDays)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/schedule/generate", map[string]any{"scheduleDays": 301}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Contains(t, string(data), "between 1 and 300")
}

func TestAdvanceOrdersEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{}, func(cfg *config.Config) {
		cfg.Pipeline.Stages = []string{"molding", "complete"}
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/orders/advance", map[string]any{"order_ids": []string{"SO-1"}}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, string(data))
	}
	var orders []OrderResponse
	require.NoError(t, json.Unmarshal(data, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "molding", orders[0].Stage)
	assert.Equal(t, "2026-10-10", orders[0].DueDate)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/orders/backlog", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var backlog []OrderResponse
	require.NoError(t, json.Unmarshal(data, &backlog))
	assert.Len(t, backlog, 4)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/orders/advance", map[string]any{"order_ids": []string{"SO-1"}}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/orders/advance", map[string]any{"order_ids": []string{"SO-1"}}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict at final stage, got %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/orders/advance", map[string]any{"order_ids": []string{"NOPE"}}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListMolds(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{}, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/molds", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var molds []MoldResponse
	require.NoError(t, json.Unmarshal(data, &molds))
	require.Len(t, molds, 2)
	assert.Equal(t, []string{"X"}, molds[0].Products)
}

func TestBearerAuthWhenSecretConfigured(t *testing.T) {
	secret := "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret}, nil)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/molds", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/molds", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := SignToken(secret, "planner", time.Hour, time.Now())
	require.NoError(t, err)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/schedule/generate", map[string]any{"scheduleDays": 1, "startDate": "2026-10-19"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	runs, err := srv.Engine.Repo.ListRuns(context.Background(), "molding", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "planner", runs[0].ActorID)
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	var (
		mu        sync.Mutex
		received  []webhookEvent
		signature string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		received = append(received, evt)
		signature = r.Header.Get("X-Moldline-Signature")
		mu.Unlock()
		if signBody("s3cret", body) != signature[len("sha256="):] {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t, AuthConfig{}, func(cfg *config.Config) {
		cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"schedule.generated"}, Secret: "s3cret"}}
	})
	defer cleanup()

	d := NewWebhookDispatcher(srv.Engine, nil)
	require.NotNil(t, d)
	ctx := context.Background()
	d.DispatchOnce(ctx)
	mu.Lock()
	assert.Empty(t, received, "events before the dispatcher started are not replayed")
	mu.Unlock()

	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	_, err := srv.Engine.GenerateSchedule(ctx, engine.GenerateRequest{Days: 1, StartDate: &start})
	require.NoError(t, err)
	_, err = srv.Engine.AdvanceOrders(ctx, []string{"SO-5"}, "tester")
	require.NoError(t, err)
	d.DispatchOnce(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "schedule.generated", received[0].Type)
	assert.Equal(t, "site-1", received[0].Site)
	assert.Equal(t, "molding", received[0].Scope)
}

func TestNoWebhooksMeansNoDispatcher(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{}, nil)
	defer cleanup()
	assert.Nil(t, NewWebhookDispatcher(srv.Engine, nil))
}

func TestOpenAPIDeclaresBearerOnlyWhenEnforced(t *testing.T) {
	for _, tc := range []struct {
		name   string
		secret string
		bearer bool
	}{
		{name: "open", secret: "", bearer: false},
		{name: "bearer", secret: "s3cret", bearer: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: tc.secret}, nil)
			defer cleanup()
			res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
			require.Equal(t, http.StatusOK, res.StatusCode, string(data))

			var doc struct {
				Paths      map[string]any `json:"paths"`
				Security   []any          `json:"security"`
				Components struct {
					Schemas         map[string]any `json:"schemas"`
					SecuritySchemes map[string]any `json:"securitySchemes"`
				} `json:"components"`
			}
			require.NoError(t, json.Unmarshal(data, &doc))
			assert.Contains(t, doc.Paths, "/v1/schedule/generate")
			assert.Contains(t, doc.Components.Schemas, "ApiError")
			_, declared := doc.Components.SecuritySchemes["bearerAuth"]
			assert.Equal(t, tc.bearer, declared)
			assert.Equal(t, tc.bearer, len(doc.Security) > 0)
		})
	}
}
