package api

// RunRequest is the body of a run-code submission.
type RunRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"` // javascript, python
}

// RunResponse acknowledges an accepted submission. The execution proceeds
// asynchronously; callers poll the execution endpoint for the outcome.
type RunResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Queue    bool   `json:"queue"`
	Uptime   string `json:"uptime"`
}
