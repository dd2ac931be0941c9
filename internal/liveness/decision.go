package liveness

import (
	"fmt"
	"strings"

	"github.com/example/liveness-server/internal/faceapi"
)

// LivenessDecision is the interpreted liveness verdict of a session.
type LivenessDecision int

const (
	LivenessUndetermined LivenessDecision = iota
	LivenessRealFace
	LivenessSpoofFace
)

// ParseLivenessDecision maps the service's livenessDecision field.
func ParseLivenessDecision(attempt *faceapi.AttemptResult) LivenessDecision {
	if attempt == nil {
		return LivenessUndetermined
	}
	switch strings.ToLower(attempt.LivenessDecision) {
	case "realface":
		return LivenessRealFace
	case "spoofface":
		return LivenessSpoofFace
	default:
		return LivenessUndetermined
	}
}

func (d LivenessDecision) String() string {
	switch d {
	case LivenessRealFace:
		return "realface"
	case LivenessSpoofFace:
		return "spoofface"
	default:
		return "undetermined"
	}
}

// Sentence renders the decision for sessionID.
func (d LivenessDecision) Sentence(sessionID string) string {
	switch d {
	case LivenessRealFace:
		return fmt.Sprintf("%s is a real person.", sessionID)
	case LivenessSpoofFace:
		return fmt.Sprintf("%s failed the liveness check.", sessionID)
	default:
		return "Failed to get the liveness result. Please check the session ID."
	}
}

// VerifyDecision is the interpreted face match verdict of a verify session.
type VerifyDecision int

const (
	VerifyIndeterminate VerifyDecision = iota
	VerifyMatch
	VerifyNoMatch
)

// ParseVerifyDecision maps verifyResult.isIdentical; an absent value is indeterminate.
func ParseVerifyDecision(attempt *faceapi.AttemptResult) VerifyDecision {
	if attempt == nil || attempt.VerifyResult == nil || attempt.VerifyResult.IsIdentical == nil {
		return VerifyIndeterminate
	}
	if *attempt.VerifyResult.IsIdentical {
		return VerifyMatch
	}
	return VerifyNoMatch
}

func (d VerifyDecision) String() string {
	switch d {
	case VerifyMatch:
		return "match"
	case VerifyNoMatch:
		return "nomatch"
	default:
		return "indeterminate"
	}
}

// Sentence renders the decision.
func (d VerifyDecision) Sentence() string {
	switch d {
	case VerifyMatch:
		return "The verify image is a match."
	case VerifyNoMatch:
		return "The verify image is not a match."
	default:
		return "Failed to get the verify result. Please check the session ID."
	}
}
