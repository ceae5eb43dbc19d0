package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aibiliti/kbdash/storage"
)

const (
	forwardBacklog   = 1024
	forwardAttempts  = 2
	forwardTimeout   = 10 * time.Second
	forwardUserAgent = "kbdash-audit-forwarder/1.0"
)

// auditRecord is what the collector receives: the persisted event, same ID,
// plus the failure details that only go to the log.
type auditRecord struct {
	storage.Event
	Details map[string]string `json:"details,omitempty"`
}

// auditForwarder ships login audit records to an external collector. A single
// goroutine drains the backlog, so records arrive in the order they happened.
// submit never blocks a login request; a full backlog drops the record.
type auditForwarder struct {
	endpoint    string
	headerName  string
	headerValue string
	client      *http.Client
	backlog     chan auditRecord
	done        chan struct{}
	dropped     atomic.Int64
	backoff     time.Duration
	logger      *slog.Logger
}

// newAuditForwarder starts the delivery goroutine. header has the form
// "Name: value"; a malformed header is ignored.
func newAuditForwarder(endpoint, header string, backlog int, logger *slog.Logger) *auditForwarder {
	f := &auditForwarder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: forwardTimeout},
		backlog:  make(chan auditRecord, backlog),
		done:     make(chan struct{}),
		backoff:  time.Second,
		logger:   logger.With("component", "audit_forwarder"),
	}
	if header != "" {
		name, value, ok := strings.Cut(header, ":")
		name = strings.TrimSpace(name)
		if ok && name != "" {
			f.headerName, f.headerValue = name, strings.TrimSpace(value)
		} else {
			// The value may be a credential, so it is not logged.
			f.logger.Warn("ignoring malformed collector header")
		}
	}
	go f.run()
	return f
}

// submit queues rec and reports whether it was accepted.
func (f *auditForwarder) submit(rec auditRecord) bool {
	select {
	case f.backlog <- rec:
		return true
	default:
	}
	n := f.dropped.Add(1)
	if n == 1 || n%100 == 0 {
		f.logger.Warn("audit backlog full, record dropped", "type", rec.Type, "dropped_total", n)
	}
	return false
}

// shutdown stops accepting records and waits until the backlog is delivered.
func (f *auditForwarder) shutdown() {
	close(f.backlog)
	<-f.done
	if n := f.dropped.Load(); n > 0 {
		f.logger.Warn("audit records dropped while running", "dropped_total", n)
	}
}

func (f *auditForwarder) run() {
	defer close(f.done)
	for rec := range f.backlog {
		f.forward(rec)
	}
}

// forward delivers one record. Transport errors and 5xx answers are retried;
// any other non-2xx answer means the collector refused it for good.
func (f *auditForwarder) forward(rec auditRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		f.logger.Warn("encoding audit record failed", "id", rec.ID, "error", err)
		return
	}

	for attempt := 1; attempt <= forwardAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(f.backoff)
		}
		status, err := f.post(body)
		switch {
		case err != nil:
			f.logger.Warn("audit delivery failed", "id", rec.ID, "attempt", attempt, "error", err)
		case status >= 200 && status < 300:
			return
		case status >= 500:
			f.logger.Warn("audit collector unavailable", "id", rec.ID, "attempt", attempt, "status", status)
		default:
			f.logger.Warn("audit collector refused record", "id", rec.ID, "status", status)
			return
		}
	}
	f.logger.Warn("audit record abandoned", "id", rec.ID, "type", rec.Type)
}

func (f *auditForwarder) post(body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", forwardUserAgent)
	if f.headerName != "" {
		req.Header.Set(f.headerName, f.headerValue)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection goes back to the pool.
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
