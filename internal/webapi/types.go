package webapi

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// HealthResponse is the payload for the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StartResponse acknowledges an accepted evaluation.
type StartResponse struct {
	EvaluationID string `json:"evaluation_id"`
}

// ErrorResponse is the payload for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
