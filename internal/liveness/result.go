package liveness

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/faceapi"
	"github.com/example/liveness-server/internal/logging"
	"github.com/example/liveness-server/internal/repository"
)

// GetResult polls a session once and interprets its decisions. The evidence
// image, when the service captured one, is downloaded on a best effort basis.
func (o *Orchestrator) GetResult(ctx context.Context, sessionID string, mode config.Mode) Outcome {
	sessionID = strings.TrimSpace(sessionID)
	opLogger := logging.WithOperation(o.logger, "liveness.get_result", sessionID)

	if sessionID == "" {
		return failure(FailureInput, textMissingSessionID)
	}
	if missing := o.cfg.MissingAPISettings(); len(missing) > 0 {
		opLogger.Warn("face api settings missing", zap.Strings("missing", missing))
		return failure(FailureConfiguration, textMissingConfiguration)
	}

	doc, err := o.face.GetSessionResult(ctx, mode, sessionID)
	if err != nil {
		opLogger.Error("session status request failed", zap.Error(err))
		return failure(FailureRemote, textStatusFetchFailed)
	}
	if doc == nil {
		return failure(FailureRemote, textStatusFetchFailed)
	}

	result := &Result{SessionID: sessionID, Mode: mode, Status: doc.Status}
	if doc.Status != faceapi.SessionStatusSucceeded {
		opLogger.Info("session not succeeded", zap.String("status", doc.Status))
		return Outcome{
			Text:    fmt.Sprintf(textSessionStatusFmt, doc.Status),
			Failure: FailureSessionStatus,
			Result:  result,
		}
	}

	attempt := doc.FirstAttemptResult()
	result.Liveness = ParseLivenessDecision(attempt)
	if attempt != nil && attempt.SessionImageID != "" {
		result.Evidence = o.captureEvidence(ctx, sessionID, attempt.SessionImageID, opLogger)
	}

	text := result.Liveness.Sentence(sessionID)
	if mode.RequiresVerifyImage() {
		result.Verify = ParseVerifyDecision(attempt)
		text += "\n" + result.Verify.Sentence()
	}

	o.record(ctx, result, opLogger)
	opLogger.Info("liveness result interpreted",
		zap.String("liveness", result.Liveness.String()),
		zap.String("verify", verifyLabel(result)),
		zap.Bool("evidence_saved", result.Evidence.Saved()),
	)
	return Outcome{Text: text, Result: result}
}

// captureEvidence never fails the result; problems are logged and kept on the Evidence.
func (o *Orchestrator) captureEvidence(ctx context.Context, sessionID, imageID string, opLogger *zap.Logger) *Evidence {
	ev := &Evidence{ImageID: imageID}
	if o.evidence == nil {
		ev.Error = "evidence store disabled"
		return ev
	}

	image, err := o.face.GetSessionImage(ctx, imageID)
	if err != nil {
		ev.Error = err.Error()
		opLogger.Warn("failed to fetch session image", zap.String("image_id", imageID), zap.Error(err))
		return ev
	}

	path, err := o.evidence.Save(sessionID, image)
	if err != nil {
		wrapped := logging.NewOperationError("evidence.save", sessionID, err)
		ev.Error = wrapped.Error()
		opLogger.Warn("failed to store session image", zap.String("image_id", imageID), zap.Error(wrapped))
		return ev
	}
	ev.Path = path
	return ev
}

func (o *Orchestrator) record(ctx context.Context, result *Result, opLogger *zap.Logger) {
	if o.recorder == nil {
		return
	}
	log := &repository.LivenessLog{
		SessionID:        result.SessionID,
		Mode:             result.Mode.String(),
		CorrelationID:    o.cfg.CorrelationID,
		Status:           result.Status,
		LivenessDecision: result.Liveness.String(),
		VerifyDecision:   verifyLabel(result),
		CreatedAt:        o.now().UTC(),
	}
	if result.Evidence != nil {
		log.EvidencePath = result.Evidence.Path
		log.EvidenceError = result.Evidence.Error
	}
	if err := o.recorder.SaveLog(ctx, log); err != nil {
		opLogger.Warn("failed to record liveness result", zap.Error(err))
	}
}

func verifyLabel(result *Result) string {
	if !result.Mode.RequiresVerifyImage() {
		return ""
	}
	return result.Verify.String()
}
