package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibiliti/kbdash/auth"
	"github.com/aibiliti/kbdash/storage"
	"github.com/aibiliti/kbdash/storage/memory"
)

func newTestForwarder(endpoint, header string, backlog int) *auditForwarder {
	f := newAuditForwarder(endpoint, header, backlog, slog.New(slog.DiscardHandler))
	f.backoff = time.Millisecond
	return f
}

func testRecord(eventType string) auditRecord {
	return auditRecord{Event: storage.Event{
		ID:        "0194c0de-0000-7000-8000-000000000001",
		Type:      eventType,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
}

// statusSequence answers with codes in order, then 200, and counts calls.
func statusSequence(calls *atomic.Int32, codes ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		if n <= len(codes) {
			w.WriteHeader(codes[n-1])
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func TestForwarderDeliversRecord(t *testing.T) {
	var (
		mu      sync.Mutex
		body    []byte
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, "Authorization: Bearer collector-token", 8)
	rec := testRecord("login_failure")
	rec.RemoteAddr = "203.0.113.9"
	rec.Details = map[string]string{"reason": "credential mismatch"}
	assert.True(t, f.submit(rec))
	f.shutdown()

	mu.Lock()
	defer mu.Unlock()
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, rec.ID, got["id"])
	assert.Equal(t, "login_failure", got["type"])
	assert.Equal(t, "203.0.113.9", got["remote_addr"])
	assert.Equal(t, "2026-01-01T00:00:00Z", got["created_at"])
	assert.NotContains(t, got, "subject")
	assert.Equal(t, map[string]any{"reason": "credential mismatch"}, got["details"])

	assert.Equal(t, "Bearer collector-token", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, forwardUserAgent, headers.Get("User-Agent"))
}

func TestForwarderMalformedHeaderIgnored(t *testing.T) {
	var sawHeader atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHeader.Store(r.Header.Get("Bearer") != "")
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, "Bearer no-colon-here", 8)
	assert.Empty(t, f.headerName)
	f.submit(testRecord("logout"))
	f.shutdown()
	assert.False(t, sawHeader.Load())
}

func TestForwarderRetryPolicy(t *testing.T) {
	for _, tc := range []struct {
		name  string
		codes []int
		want  int32
	}{
		{"success first try", nil, 1},
		{"5xx then success", []int{http.StatusInternalServerError}, 2},
		{"5xx twice gives up", []int{http.StatusBadGateway, http.StatusServiceUnavailable}, 2},
		{"4xx is final", []int{http.StatusBadRequest}, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(statusSequence(&calls, tc.codes...))
			defer srv.Close()

			f := newTestForwarder(srv.URL, "", 8)
			f.submit(testRecord("login_failure"))
			f.shutdown()
			assert.Equal(t, tc.want, calls.Load())
		})
	}
}

func TestForwarderDropsWhenBacklogFull(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, "", 2)

	done := make(chan int)
	go func() {
		accepted := 0
		for range 10 {
			if f.submit(testRecord("login_failure")) {
				accepted++
			}
		}
		done <- accepted
	}()

	var accepted int
	select {
	case accepted = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked on a full backlog")
	}
	// At most one in flight plus two queued.
	assert.LessOrEqual(t, accepted, 3)
	assert.Equal(t, int64(10-accepted), f.dropped.Load())

	close(release)
	f.shutdown()
}

func TestForwarderShutdownDrainsBacklog(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(statusSequence(&calls))
	defer srv.Close()

	f := newTestForwarder(srv.URL, "", 8)
	for range 5 {
		require.True(t, f.submit(testRecord("logout")))
	}
	f.shutdown()

	assert.Equal(t, int32(5), calls.Load())
	assert.Zero(t, f.dropped.Load())
}

func TestAuditEventForwardedWithPersistedID(t *testing.T) {
	var (
		mu       sync.Mutex
		received []auditRecord
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec auditRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err == nil {
			mu.Lock()
			received = append(received, rec)
			mu.Unlock()
		}
	}))
	defer srv.Close()

	events := memory.NewRepository()
	store := auth.NewCredentialStore(auth.Credentials{Username: "admin", Password: "secret", Secret: "s3cr3t"})
	a := New(auth.NewGate(store, auth.NewSessionCodec(store, auth.NewTokenSigner(store))), nil,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithEventRepository(events),
		WithAuditWebhook(srv.URL, ""),
	)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	a.audit.logFailure(AuditLoginFailure, req, "credential mismatch")
	a.Close()

	stored, err := events.Recent(100)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, stored[0].ID, received[0].ID)
	assert.Equal(t, string(AuditLoginFailure), received[0].Type)
	assert.Equal(t, "credential mismatch", received[0].Details["reason"])
}
