package liveness

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/faceapi"
	"github.com/example/liveness-server/internal/logging"
	"github.com/example/liveness-server/internal/repository"
	"github.com/example/liveness-server/internal/sessionstore"
)

const (
	authTokenTTLSeconds   = 600
	livenessOperationMode = "PassiveActive"
)

// FaceClient is the subset of the Face API used by the orchestrator.
type FaceClient interface {
	CreateSession(ctx context.Context, mode config.Mode, req *faceapi.CreateSessionRequest) (*faceapi.CreateSessionResponse, error)
	GetSessionResult(ctx context.Context, mode config.Mode, sessionID string) (*faceapi.SessionResult, error)
	GetSessionImage(ctx context.Context, imageID string) ([]byte, error)
}

// LinkShortener issues the short URL fragment for a session auth token.
type LinkShortener interface {
	ShortenSessionURL(ctx context.Context, authToken string) (string, error)
}

// EvidenceStore persists evidence images.
type EvidenceStore interface {
	Save(sessionID string, image []byte) (string, error)
}

// ResultRecorder keeps an audit log of interpreted results.
type ResultRecorder interface {
	SaveLog(ctx context.Context, log *repository.LivenessLog) error
	FindBySessionID(ctx context.Context, sessionID string) ([]*repository.LivenessLog, error)
	AggregateDecisions(ctx context.Context) (*repository.DecisionAggregation, error)
}

// Dependencies wires the orchestrator. Registry and Recorder are optional.
type Dependencies struct {
	Face     FaceClient
	Links    LinkShortener
	Evidence EvidenceStore
	Registry sessionstore.Store
	Recorder ResultRecorder
}

// Orchestrator starts liveness sessions and interprets their results.
type Orchestrator struct {
	cfg      config.Config
	face     FaceClient
	links    LinkShortener
	evidence EvidenceStore
	registry sessionstore.Store
	recorder ResultRecorder
	logger   *zap.Logger
	readFile func(string) ([]byte, error)
	now      func() time.Time
}

// NewOrchestrator constructs an orchestrator bound to cfg.
func NewOrchestrator(cfg config.Config, deps Dependencies, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		face:     deps.Face,
		links:    deps.Links,
		evidence: deps.Evidence,
		registry: deps.Registry,
		recorder: deps.Recorder,
		logger:   logger.Named("liveness"),
		readFile: os.ReadFile,
		now:      time.Now,
	}
}

// Mode returns the mode resolved at startup.
func (o *Orchestrator) Mode() config.Mode {
	return o.cfg.Mode
}

// StartSession creates a remote session and returns instructions naming its URL.
// Every failure is reported through the returned Outcome.
func (o *Orchestrator) StartSession(ctx context.Context, mode config.Mode, referenceImagePath string) Outcome {
	opLogger := logging.WithOperation(o.logger, "liveness.start_session", "")

	if missing := o.cfg.MissingAPISettings(); len(missing) > 0 {
		opLogger.Warn("face api settings missing", zap.Strings("missing", missing))
		return failure(FailureConfiguration, textMissingConfiguration)
	}

	req := &faceapi.CreateSessionRequest{
		AuthTokenTimeToLiveInSeconds: authTokenTTLSeconds,
		LivenessOperationMode:        livenessOperationMode,
		SendResultsToClient:          false,
		DeviceCorrelationID:          o.cfg.CorrelationID,
		EnableSessionImage:           true,
	}

	if mode.RequiresVerifyImage() {
		referenceImagePath = strings.TrimSpace(referenceImagePath)
		if referenceImagePath == "" {
			opLogger.Warn("verify image path missing")
			return failure(FailureInput, textMissingVerifyImage)
		}
		image, err := o.readFile(referenceImagePath)
		if err != nil {
			opLogger.Warn("failed to read verify image", zap.String("path", referenceImagePath), zap.Error(err))
			return failure(FailureInput, fmt.Sprintf(textUnreadableVerifyFmt, referenceImagePath))
		}
		if image == nil {
			image = []byte{}
		}
		req.VerifyImage = image
		req.VerifyImageName = referenceImagePath
	}

	created, err := o.face.CreateSession(ctx, mode, req)
	if err != nil {
		opLogger.Error("session creation failed", zap.Error(err))
		return failure(FailureRemote, textCreateSessionFailed)
	}
	if created == nil || created.SessionID == "" || created.AuthToken == "" {
		opLogger.Error("session creation response missing sessionId or authToken")
		return failure(FailureRemote, textCreateSessionFailed)
	}
	opLogger = opLogger.With(zap.String("session_id", created.SessionID))

	fragment, err := o.links.ShortenSessionURL(ctx, created.AuthToken)
	if err != nil {
		opLogger.Error("short url request failed", zap.Error(err))
		return failure(FailureRemote, textSessionURLFailed)
	}
	if fragment == "" {
		opLogger.Error("short url response missing url")
		return failure(FailureRemote, textSessionURLFailed)
	}

	session := &Session{
		ID:        created.SessionID,
		AuthToken: created.AuthToken,
		Mode:      mode,
		URL:       o.cfg.Website + fragment,
		CreatedAt: o.now().UTC(),
	}
	o.register(ctx, session, opLogger)

	opLogger.Info("liveness session started", zap.String("mode", mode.String()), zap.String("url", session.URL))
	return Outcome{
		Text:    fmt.Sprintf(textStartInstructionsFmt, session.URL, mode.ResultToolName(), session.ID),
		Session: session,
	}
}

// Start runs StartSession with the configured mode and reference image.
func (o *Orchestrator) Start(ctx context.Context) Outcome {
	return o.StartSession(ctx, o.cfg.Mode, o.cfg.VerifyImagePath)
}

// Result runs GetResult with the configured mode.
func (o *Orchestrator) Result(ctx context.Context, sessionID string) Outcome {
	return o.GetResult(ctx, sessionID, o.cfg.Mode)
}

// LookupSession returns the registry record of a session started by this process.
func (o *Orchestrator) LookupSession(ctx context.Context, sessionID string) (*sessionstore.Record, error) {
	if o.registry == nil {
		return nil, sessionstore.ErrNotFound
	}
	return o.registry.Get(ctx, sessionID)
}

func (o *Orchestrator) register(ctx context.Context, session *Session, opLogger *zap.Logger) {
	if o.registry == nil {
		return
	}
	record := &sessionstore.Record{
		SessionID:     session.ID,
		Mode:          session.Mode.String(),
		URL:           session.URL,
		CorrelationID: o.cfg.CorrelationID,
		CreatedAt:     session.CreatedAt,
	}
	if err := o.registry.Save(ctx, record); err != nil {
		opLogger.Warn("failed to register session", zap.Error(err))
	}
}
