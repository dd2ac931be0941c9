package faceapi

import "fmt"

// SessionStatusSucceeded is the only status whose results can be interpreted.
const SessionStatusSucceeded = "Succeeded"

// CreateSessionRequest is the session creation payload. When VerifyImage is set
// the request is sent as multipart form data.
type CreateSessionRequest struct {
	AuthTokenTimeToLiveInSeconds int    `json:"authTokenTimeToLiveInSeconds"`
	LivenessOperationMode        string `json:"livenessOperationMode"`
	SendResultsToClient          bool   `json:"sendResultsToClient"`
	DeviceCorrelationID          string `json:"deviceCorrelationId"`
	EnableSessionImage           bool   `json:"enableSessionImage"`

	VerifyImage     []byte `json:"-"`
	VerifyImageName string `json:"-"`
}

// CreateSessionResponse carries the identifiers of a new session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	AuthToken string `json:"authToken"`
}

// SessionResult is the status document of a liveness session.
type SessionResult struct {
	SessionID string          `json:"sessionId"`
	Status    string          `json:"status"`
	Results   *SessionResults `json:"results,omitempty"`
}

// SessionResults lists the attempts made in a session.
type SessionResults struct {
	Attempts []Attempt `json:"attempts"`
}

// Attempt is a single capture attempt.
type Attempt struct {
	AttemptID     int            `json:"attemptId"`
	AttemptStatus string         `json:"attemptStatus"`
	Result        *AttemptResult `json:"result,omitempty"`
}

// AttemptResult holds the decisions of an attempt.
type AttemptResult struct {
	LivenessDecision string        `json:"livenessDecision"`
	SessionImageID   string        `json:"sessionImageId"`
	VerifyResult     *VerifyResult `json:"verifyResult,omitempty"`
}

// VerifyResult is the face match outcome. IsIdentical is nil when the service did not decide.
type VerifyResult struct {
	MatchConfidence float64 `json:"matchConfidence"`
	IsIdentical     *bool   `json:"isIdentical,omitempty"`
}

// FirstAttemptResult returns the result of the first recorded attempt, if any.
func (r *SessionResult) FirstAttemptResult() *AttemptResult {
	if r == nil || r.Results == nil || len(r.Results.Attempts) == 0 {
		return nil
	}
	return r.Results.Attempts[0].Result
}

// APIError is returned for non 2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("face api returned status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("face api returned status %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
