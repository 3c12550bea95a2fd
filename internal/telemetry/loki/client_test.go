package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestPushEventJSON_Labels(t *testing.T) {
	var got PushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	raw := []byte(`{"eventType":"mfa.action.enqueued","source":"mfa-orphans","op":"totp.delete","subject":"alice","createdAt":"2024-01-02T03:04:05Z"}`)
	if err := PushEventJSON(context.Background(), server.Client(), server.URL+"/", raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	want := map[string]string{"job": Job, "event_type": "mfa.action.enqueued", "source": "mfa-orphans", "op": "totp.delete"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	if _, ok := s.Stream["subject"]; ok {
		t.Error("subject must not become a label")
	}
	wantTS := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano()
	if s.Values[0][0] != strconv.FormatInt(wantTS, 10) {
		t.Errorf("timestamp = %s, want %d", s.Values[0][0], wantTS)
	}
	if s.Values[0][1] != string(raw) {
		t.Errorf("line = %s, want raw event", s.Values[0][1])
	}
}

func TestPushEvent_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	if err := PushEvent(context.Background(), nil, server.URL, time.Now(), "x", nil); err == nil {
		t.Fatal("PushEvent should fail on 400")
	}
}

func TestPushEvent_EmptyURL(t *testing.T) {
	if err := PushEvent(context.Background(), nil, "", time.Now(), "x", nil); err == nil {
		t.Fatal("PushEvent should fail without a base URL")
	}
}
