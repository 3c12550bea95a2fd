package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/action/queue"
	"mfa-orphans/internal/action/result"
	"mfa-orphans/internal/audit"
	auditrepo "mfa-orphans/internal/audit/repository"
	identitydomain "mfa-orphans/internal/identity/domain"
	identityrepo "mfa-orphans/internal/identity/repository"
	"mfa-orphans/internal/mfastatus/reader"
	"mfa-orphans/internal/security"
	"mfa-orphans/internal/storage"
)

// mockGate implements engine.ProtectionEvaluator for tests.
type mockGate struct {
	protected map[string]bool
	err       error
}

func (m *mockGate) Protected(ctx context.Context, uid string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.protected[strings.ToLower(uid)], nil
}

type testEnv struct {
	srv     *httptest.Server
	token   string
	queue   *storage.MemoryStore
	results *storage.MemoryStore
	status  *storage.MemoryStore
	dir     *identityrepo.MemoryDirectory
	gate    *mockGate
	audit   *audit.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		queue:   storage.NewMemoryStore(),
		results: storage.NewMemoryStore(),
		status:  storage.NewMemoryStore(),
		dir:     identityrepo.NewMemoryDirectory(&identitydomain.Identity{UID: "bob", Email: "bob@example.com"}),
		gate:    &mockGate{protected: map[string]bool{"root": true}},
	}
	env.audit = audit.NewLogger(auditrepo.NewMemoryRepository(), ContextClientIP)
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	env.token, _, err = tokens.Issue("ops-admin")
	if err != nil {
		t.Fatal(err)
	}
	h := &Handler{
		Queue:      queue.NewWriter(env.queue, env.results, env.gate, queue.WithAudit(env.audit)),
		Results:    result.NewGate(result.Config{Results: env.results, Queue: env.queue, Emails: env.dir}),
		Snapshots:  reader.NewReader(env.status, "status.json"),
		Identities: env.dir,
		Audit:      env.audit,
	}
	proxies, err := ParseTrustedProxies("127.0.0.0/8, ::1, 10.0.0.0/8")
	if err != nil {
		t.Fatal(err)
	}
	env.srv = httptest.NewServer(NewRouter(h, RouterConfig{Tokens: tokens, TrustedProxies: proxies}))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "handler-test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func TestEnqueue_Accepted(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPost, "/api/mfa/actions", `{"op":"totp.delete","user":"alice"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var out EnqueueResponse
	if err := json.Unmarshal(body, &out); err != nil || !domain.ValidActionID(out.ActionID) {
		t.Fatalf("body = %s", body)
	}
	raw, err := env.queue.Get(context.Background(), domain.QueueName(out.ActionID))
	if err != nil {
		t.Fatal(err)
	}
	var a domain.Action
	if err := json.Unmarshal(raw, &a); err != nil {
		t.Fatal(err)
	}
	want := domain.Requester{AdminUID: "ops-admin", IP: "203.0.113.7", UA: "handler-test"}
	if a.Requester != want {
		t.Errorf("requester = %+v, want %+v", a.Requester, want)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestEnqueue_RequesterCannotBeSpoofed(t *testing.T) {
	env := newTestEnv(t)
	_, body := env.do(t, http.MethodPost, "/api/mfa/actions", `{"op":"totp.delete","user":"alice","requester":{"admin_uid":"someone"}}`)
	var out EnqueueResponse
	_ = json.Unmarshal(body, &out)
	raw, _ := env.queue.Get(context.Background(), domain.QueueName(out.ActionID))
	if !strings.Contains(string(raw), `"admin_uid":"ops-admin"`) {
		t.Errorf("queue entry = %s, want token subject as requester", raw)
	}
}

func TestEnqueue_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		setup  func(*testEnv)
		status int
		code   string
	}{
		{"bad user", `{"op":"totp.delete","user":"a/b"}`, nil, http.StatusBadRequest, CodeValidation},
		{"bad op", `{"op":"totp.rotate","user":"alice"}`, nil, http.StatusBadRequest, CodeValidation},
		{"malformed json", `{"op":`, nil, http.StatusBadRequest, CodeValidation},
		{"admin protected", `{"op":"webauthn.delete","user":"ROOT","target":{"scope":"all"}}`, nil, http.StatusForbidden, CodeAdminProtected},
		{"directory down", `{"op":"totp.delete","user":"alice"}`, func(e *testEnv) { e.gate.err = errors.New("ldap down") }, http.StatusServiceUnavailable, CodeProtectionCheck},
		{"queue down", `{"op":"totp.delete","user":"alice"}`, func(e *testEnv) { e.queue.PutErr = errors.New("disk full") }, http.StatusServiceUnavailable, CodeQueueUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tc.setup != nil {
				tc.setup(env)
			}
			resp, body := env.do(t, http.MethodPost, "/api/mfa/actions", tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tc.status, body)
			}
			var eb ErrorBody
			if err := json.Unmarshal(body, &eb); err != nil || eb.Code != tc.code {
				t.Errorf("body = %s, want code %q", body, tc.code)
			}
			env.queue.PutErr = nil
			if names, _ := env.queue.List(context.Background()); len(names) != 0 {
				t.Errorf("queue = %v, want empty", names)
			}
		})
	}
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	for _, auth := range []string{"", "Bearer nope", "Basic Zm9vOmJhcg=="} {
		req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/mfa/status", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want 401", auth, resp.StatusCode)
		}
	}
	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200 without auth", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/mfa/actions", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET actions = %d, want 405", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/mfa/status", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want 405", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/mfa/status", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing snapshot = %d, want 404", resp.StatusCode)
	}
	doc := `{"generated_ts":7,"totp":{"alice":true},"webauthn":{"bob":{"count":2}}}`
	_ = env.status.Put(context.Background(), "status.json", []byte(doc))
	resp, body := env.do(t, http.MethodGet, "/api/mfa/status", "")
	if resp.StatusCode != http.StatusOK || string(body) != doc {
		t.Errorf("status = %d, body = %s, want verbatim", resp.StatusCode, body)
	}
}

func TestResult_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/mfa/results/20240101T000000Z-00000000", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown = %d, want 404", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/mfa/results/..%2Fetc", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("malformed = %d, want 404", resp.StatusCode)
	}

	_, body := env.do(t, http.MethodPost, "/api/mfa/actions", `{"op":"totp.delete","user":"alice"}`)
	var enq EnqueueResponse
	_ = json.Unmarshal(body, &enq)
	resp, _ = env.do(t, http.MethodGet, "/api/mfa/results/"+enq.ActionID, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("pending = %d, want 202", resp.StatusCode)
	}

	doc := `{"action_id":"` + enq.ActionID + `","success":false,"details":"ldap write refused"}`
	_ = env.results.Put(context.Background(), domain.ResultName(enq.ActionID), []byte(doc))
	resp, body = env.do(t, http.MethodGet, "/api/mfa/results/"+enq.ActionID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("done = %d, want 200", resp.StatusCode)
	}
	var rr ResultResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		t.Fatal(err)
	}
	if rr.Outcome != "failed" || string(rr.Result) != doc {
		t.Errorf("result = %+v", rr)
	}
}

func TestOrphans(t *testing.T) {
	env := newTestEnv(t)
	_ = env.status.Put(context.Background(), "status.json", []byte(`{"generated_ts":1,"totp":{"alice":true,"bob":true},"webauthn":{"carol":1}}`))
	resp, body := env.do(t, http.MethodGet, "/api/mfa/orphans", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := `{"orphan_totp":["alice"],"orphan_webauthn":[{"subject":"carol","count":1}],"total_unique_subjects":2}`
	if strings.TrimSpace(string(body)) != want {
		t.Errorf("body = %s, want %s", body, want)
	}

	env.dir.SetError(errors.New("ldap down"))
	resp, _ = env.do(t, http.MethodGet, "/api/mfa/orphans", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("directory down = %d, want 503", resp.StatusCode)
	}
}

func TestBulkEnqueue(t *testing.T) {
	env := newTestEnv(t)
	body := `{"actions":[
		{"op":"totp.delete","user":"alice"},
		{"op":"totp.delete","user":"root"},
		{"op":"webauthn.delete","user":"carol","target":{"scope":"all"}},
		{"op":"totp.delete","user":"a b"}
	]}`
	resp, raw := env.do(t, http.MethodPost, "/api/mfa/actions/bulk", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, raw)
	}
	var out BulkResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Submitted != 2 || out.Failed != 2 || len(out.Items) != 4 {
		t.Fatalf("out = %+v", out)
	}
	if out.Items[1].Status != http.StatusForbidden || out.Items[3].Status != http.StatusBadRequest {
		t.Errorf("items = %+v", out.Items)
	}
	if _, ok := out.Want["alice"]; !ok || len(out.Want) != 2 {
		t.Errorf("want = %+v", out.Want)
	}
	names, _ := env.queue.List(context.Background())
	if len(names) != 2 {
		t.Errorf("queue = %v, want 2 entries", names)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/mfa/actions/bulk", `{"actions":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty bulk = %d, want 400", resp.StatusCode)
	}
}

func TestAuditLog(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/mfa/actions", `{"op":"totp.delete","user":"alice"}`)
	env.do(t, http.MethodPost, "/api/mfa/actions", `{"op":"totp.delete","user":"root"}`)

	resp, body := env.do(t, http.MethodGet, "/api/audit?subject=alice", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entries []AuditEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatal(err)
	}
	// the enqueue audit write is synchronous, telemetry is not involved
	if len(entries) != 1 || entries[0].AdminUID != "ops-admin" || entries[0].IP != "203.0.113.7" {
		t.Errorf("entries = %+v", entries)
	}
	if time.Since(entries[0].CreatedAt) > time.Minute {
		t.Errorf("created_at = %v", entries[0].CreatedAt)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/audit?limit=0", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("limit=0 = %d, want 400", resp.StatusCode)
	}
}
