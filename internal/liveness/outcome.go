package liveness

import (
	"time"

	"github.com/example/liveness-server/internal/config"
)

// FailureKind classifies why an operation produced a diagnostic instead of a result.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureConfiguration means FACEAPI_ENDPOINT, FACEAPI_KEY or FACEAPI_WEBSITE is unset.
	FailureConfiguration
	// FailureInput means a required argument or the reference image is missing.
	FailureInput
	// FailureRemote means the Face API or the website failed or answered without the expected fields.
	FailureRemote
	// FailureSessionStatus means the session has not succeeded (yet).
	FailureSessionStatus
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureConfiguration:
		return "configuration"
	case FailureInput:
		return "input"
	case FailureRemote:
		return "remote"
	case FailureSessionStatus:
		return "session_status"
	default:
		return "unknown"
	}
}

const (
	textMissingConfiguration = "Please set the FACEAPI_ENDPOINT, FACEAPI_KEY, FACEAPI_WEBSITE environment variables for the liveness server."
	textMissingVerifyImage   = "Please provide the VERIFY_IMAGE_FILE_NAME."
	textUnreadableVerifyFmt  = "Failed to read the verify image file %s. Please check the VERIFY_IMAGE_FILE_NAME."
	textCreateSessionFailed  = "Failed to create liveness session. Please check the FACEAPI_ENDPOINT, FACEAPI_KEY, FACEAPI_WEBSITE environment variables."
	textSessionURLFailed     = "Failed to create liveness session url. Please check the FACEAPI_ENDPOINT, FACEAPI_KEY, FACEAPI_WEBSITE environment variables."
	textStartInstructionsFmt = "Show the following url to the user to perform the liveness session.\n" +
		"The user needs to be instructed to visit the url %s and perform the liveness authentication session.\n" +
		"After the user performs the authentication, call %s with the session ID %s to retrieve the result."
	textMissingSessionID  = "Please provide the session ID."
	textStatusFetchFailed = "Failed to get the status of the liveness session. Please check the session ID."
	textSessionStatusFmt  = "The status of the session is %s. Please check the session ID."
)

// Session is a remote liveness session created by StartSession.
type Session struct {
	ID        string      `json:"session_id"`
	AuthToken string      `json:"-"`
	Mode      config.Mode `json:"-"`
	URL       string      `json:"url"`
	CreatedAt time.Time   `json:"created_at"`
}

// Evidence describes the outcome of the best effort evidence image download.
type Evidence struct {
	ImageID string `json:"image_id"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Saved reports whether the image was written to disk.
func (e *Evidence) Saved() bool {
	return e != nil && e.Path != ""
}

// Result is the interpretation of a session status document.
type Result struct {
	SessionID string           `json:"session_id"`
	Mode      config.Mode      `json:"-"`
	Status    string           `json:"status"`
	Liveness  LivenessDecision `json:"-"`
	Verify    VerifyDecision   `json:"-"`
	Evidence  *Evidence        `json:"evidence,omitempty"`
}

// Outcome is what an exposed operation returns. Text is always populated.
type Outcome struct {
	Text    string
	Failure FailureKind
	Session *Session
	Result  *Result
}

// OK reports whether the operation completed without a diagnostic.
func (o Outcome) OK() bool {
	return o.Failure == FailureNone
}

func failure(kind FailureKind, text string) Outcome {
	return Outcome{Text: text, Failure: kind}
}
