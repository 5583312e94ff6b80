package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bluenode2024/POCBE/internal/config"
	"github.com/Bluenode2024/POCBE/internal/db"
	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/engine"
	"github.com/Bluenode2024/POCBE/internal/events"
	"github.com/Bluenode2024/POCBE/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func asUser(id string) map[string]string { return map[string]string{"X-User-Id": id} }

// newTestServer seeds users leader, member, reporter, val and boss (admin), a
// project p1 led by leader with member, and task t1 owned by member.
func newTestServer(t *testing.T, cfg *config.Config) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	conn, dialect, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, dialect, cfg)
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	for _, id := range []string{"leader", "member", "reporter", "val", "boss"} {
		_, err := e.CreateUser(ctx, engine.CreateUserOptions{ID: id, WalletAddress: "0x" + id, Approved: true})
		require.NoError(t, err)
	}
	_, err = e.GrantAdmin(ctx, "boss")
	require.NoError(t, err)
	_, err = e.CreateProject(ctx, engine.CreateProjectOptions{ID: "p1", Name: "proj", LeaderID: "leader"})
	require.NoError(t, err)
	require.NoError(t, e.AddProjectMember(ctx, "p1", "member"))
	_, err = e.CreateTask(ctx, engine.CreateTaskOptions{ID: "t1", ProjectID: "p1", UserID: "member", Title: "ship it"})
	require.NoError(t, err)

	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{
		JWTSecret:         testSecret,
		AllowLegacyHeader: true,
		Logger:            e.Logger,
	}})
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
			e.Close()
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

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func registerVal(t *testing.T, srv *testServer) domain.Validator {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/validators", map[string]any{"stake_ref": "stake-1"}, asUser("val"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var v domain.Validator
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func createValidation(t *testing.T, srv *testServer) domain.Validation {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/validations", map[string]any{"task_id": "t1"}, asUser("member"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var v domain.Validation
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestMissingCredentialsIsUnauthorized(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/validators", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/validators", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)
}

func TestDevLoginTokenAuthenticates(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"user_id": "boss"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	require.NotEmpty(t, login.Token)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "boss", me.UserID)
	assert.Equal(t, "jwt", me.Source)
	assert.True(t, me.Admin)
	assert.True(t, me.Approved)
}

func TestAPIKeyAuthenticates(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), engine.CreateAPIKeyOptions{UserID: "val", Name: "ci"})
	require.NoError(t, err)
	registerVal(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": plain})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "val", me.UserID)
	assert.Equal(t, "api_key", me.Source)
	assert.False(t, me.Admin)
	assert.NotEmpty(t, me.ValidatorID)
}

func TestValidationLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	validator := registerVal(t, srv)
	assert.Equal(t, "stake-1", validator.StakeRef)

	created := createValidation(t, srv)
	assert.Equal(t, domain.ValidationPending, created.Status)
	assert.Equal(t, validator.ID, created.ValidatorID)

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/validations/"+created.ID+"/confirm", map[string]any{"comment": "lgtm"}, asUser("reporter"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/validations/"+created.ID+"/confirm", map[string]any{"comment": "lgtm", "reward_ref": "r-1"}, asUser("val"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var confirmed domain.Validation
	require.NoError(t, json.Unmarshal(data, &confirmed))
	assert.Equal(t, domain.ValidationValidating, confirmed.Status)
	assert.Equal(t, "lgtm", confirmed.Comment)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/disputes", map[string]any{"validation_id": created.ID, "comment": "copied"}, asUser("reporter"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var dispute domain.Dispute
	require.NoError(t, json.Unmarshal(data, &dispute))
	assert.Equal(t, domain.DisputePending, dispute.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/validations/disputed", nil, asUser("boss"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var disputed ValidationList
	require.NoError(t, json.Unmarshal(data, &disputed))
	require.Len(t, disputed.Items, 1)
	assert.Equal(t, created.ID, disputed.Items[0].ID)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/disputes/"+dispute.ID+"/resolve", map[string]any{"approve": false}, asUser("reporter"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/disputes/"+dispute.ID+"/resolve", map[string]any{"approve": false, "comment": "fine"}, asUser("boss"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &dispute))
	assert.Equal(t, domain.DisputeRejected, dispute.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/validations/"+created.ID, nil, asUser("member"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var final domain.Validation
	require.NoError(t, json.Unmarshal(data, &final))
	assert.Equal(t, domain.ValidationSuccess, final.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/validations?status=success&task_id=t1", nil, asUser("member"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var listed ValidationList
	require.NoError(t, json.Unmarshal(data, &listed))
	require.Len(t, listed.Items, 1)
}

func TestCreateValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/validations", map[string]any{"task_id": "t1"}, asUser("member"))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "no_eligible_validator", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/validations", map[string]any{"task_id": "missing"}, asUser("member"))
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", decodeError(t, data).Code)

	registerVal(t, srv)
	createValidation(t, srv)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/validations", map[string]any{"task_id": "t1"}, asUser("member"))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "conflict", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/validations/nope", nil, asUser("member"))
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/timers", nil, asUser("member"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", decodeError(t, data).Code)

	registerVal(t, srv)
	created := createValidation(t, srv)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/admin/timers", nil, asUser("boss"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var timers TimerList
	require.NoError(t, json.Unmarshal(data, &timers))
	require.Len(t, timers.Items, 1)
	assert.Equal(t, created.ID, timers.Items[0].ValidationID)
	assert.Equal(t, "pending", timers.Items[0].Kind)
}

func TestOpenAPIServed(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v1/validations/{id}/confirm")
	assert.Contains(t, paths, "/v1/disputes/{id}/resolve")
}

func TestWebhookDeliversSignedEvents(t *testing.T) {
	type delivery struct {
		event     string
		signature string
		body      []byte
	}
	var mu sync.Mutex
	var got []delivery
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, delivery{event: r.Header.Get("X-Pocbe-Event"), signature: r.Header.Get("X-Pocbe-Signature"), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.Webhook{{URL: hook.URL, Secret: "s3cret", Events: []string{events.ValidationCreated}}}
	srv, cleanup := newTestServer(t, cfg)
	defer cleanup()

	ctx := context.Background()
	dispatcher := NewWebhookDispatcher(srv.Engine, srv.Engine.Logger)
	require.NotNil(t, dispatcher)
	dispatcher.DispatchAll(ctx)

	registerVal(t, srv)
	created := createValidation(t, srv)
	dispatcher.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, events.ValidationCreated, got[0].event)
	assert.Equal(t, signPayload("s3cret", got[0].body), got[0].signature)
	var evt webhookEvent
	require.NoError(t, json.Unmarshal(got[0].body, &evt))
	assert.Equal(t, created.ID, evt.EntityID)
}

func TestNoDispatcherWithoutHooks(t *testing.T) {
	assert.Nil(t, NewWebhookDispatcher(engine.Engine{Config: config.Default()}, nil))
}
