package api

import "github.com/aibiliti/kbdash/storage"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is returned from GET /auth/session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// AuditEventsResponse is returned from GET /audit.
type AuditEventsResponse struct {
	Events []storage.Event `json:"events"`
}
