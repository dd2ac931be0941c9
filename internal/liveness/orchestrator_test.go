package liveness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/evidence"
	"github.com/example/liveness-server/internal/faceapi"
	"github.com/example/liveness-server/internal/repository"
	"github.com/example/liveness-server/internal/sessionstore"
)

type stubFace struct {
	createResp  *faceapi.CreateSessionResponse
	createErr   error
	createCalls int
	createMode  config.Mode
	createReq   *faceapi.CreateSessionRequest

	result      *faceapi.SessionResult
	resultErr   error
	resultCalls int

	image      []byte
	imageErr   error
	imageCalls int
}

func (s *stubFace) CreateSession(ctx context.Context, mode config.Mode, req *faceapi.CreateSessionRequest) (*faceapi.CreateSessionResponse, error) {
	s.createCalls++
	s.createMode = mode
	s.createReq = req
	return s.createResp, s.createErr
}

func (s *stubFace) GetSessionResult(ctx context.Context, mode config.Mode, sessionID string) (*faceapi.SessionResult, error) {
	s.resultCalls++
	return s.result, s.resultErr
}

func (s *stubFace) GetSessionImage(ctx context.Context, imageID string) ([]byte, error) {
	s.imageCalls++
	return s.image, s.imageErr
}

type stubLinks struct {
	fragment  string
	err       error
	calls     int
	authToken string
}

func (s *stubLinks) ShortenSessionURL(ctx context.Context, authToken string) (string, error) {
	s.calls++
	s.authToken = authToken
	return s.fragment, s.err
}

type stubRecorder struct {
	logs    []*repository.LivenessLog
	saveErr error
	agg     *repository.DecisionAggregation
}

func (s *stubRecorder) SaveLog(ctx context.Context, log *repository.LivenessLog) error {
	s.logs = append(s.logs, log)
	return s.saveErr
}

func (s *stubRecorder) FindBySessionID(ctx context.Context, sessionID string) ([]*repository.LivenessLog, error) {
	var out []*repository.LivenessLog
	for _, log := range s.logs {
		if log.SessionID == sessionID {
			out = append(out, log)
		}
	}
	return out, nil
}

func (s *stubRecorder) AggregateDecisions(ctx context.Context) (*repository.DecisionAggregation, error) {
	if s.agg == nil {
		return &repository.DecisionAggregation{}, nil
	}
	return s.agg, nil
}

func testConfig(mode config.Mode) config.Config {
	cfg := config.Config{
		Endpoint:        "my-face",
		APIKey:          "key",
		Website:         "https://liveness.example.com",
		CorrelationID:   "corr-1",
		SessionImageDir: ".",
		Mode:            mode,
	}
	if mode.RequiresVerifyImage() {
		cfg.VerifyImagePath = "/tmp/me.jpg"
	}
	return cfg
}

func boolPtr(v bool) *bool { return &v }

func succeeded(attempt faceapi.AttemptResult) *faceapi.SessionResult {
	return &faceapi.SessionResult{
		Status: faceapi.SessionStatusSucceeded,
		Results: &faceapi.SessionResults{Attempts: []faceapi.Attempt{
			{AttemptID: 1, AttemptStatus: "Succeeded", Result: &attempt},
		}},
	}
}

func newTestOrchestrator(cfg config.Config, face *stubFace, links *stubLinks, deps Dependencies) *Orchestrator {
	deps.Face = face
	deps.Links = links
	return NewOrchestrator(cfg, deps, zap.NewNop())
}

func TestStartSessionMissingConfigurationMakesNoCalls(t *testing.T) {
	for _, mutate := range []func(*config.Config){
		func(c *config.Config) { c.Endpoint = "" },
		func(c *config.Config) { c.APIKey = "" },
		func(c *config.Config) { c.Website = "" },
	} {
		cfg := testConfig(config.ModeLiveness)
		mutate(&cfg)
		face := &stubFace{}
		links := &stubLinks{}
		o := newTestOrchestrator(cfg, face, links, Dependencies{})

		outcome := o.StartSession(context.Background(), config.ModeLiveness, "")

		assert.Equal(t, "Please set the FACEAPI_ENDPOINT, FACEAPI_KEY, FACEAPI_WEBSITE environment variables for the liveness server.", outcome.Text)
		assert.Equal(t, FailureConfiguration, outcome.Failure)
		assert.Zero(t, face.createCalls)
		assert.Zero(t, links.calls)
	}
}

func TestStartSessionVerifyModeRequiresReferenceImage(t *testing.T) {
	face := &stubFace{}
	o := newTestOrchestrator(testConfig(config.ModeLivenessWithVerify), face, &stubLinks{}, Dependencies{})

	for _, path := range []string{"", "   "} {
		outcome := o.StartSession(context.Background(), config.ModeLivenessWithVerify, path)

		assert.Equal(t, "Please provide the VERIFY_IMAGE_FILE_NAME.", outcome.Text)
		assert.Equal(t, FailureInput, outcome.Failure)
	}
	assert.Zero(t, face.createCalls)
}

func TestStartSessionUnreadableReferenceImage(t *testing.T) {
	face := &stubFace{}
	o := newTestOrchestrator(testConfig(config.ModeLivenessWithVerify), face, &stubLinks{}, Dependencies{})
	missing := filepath.Join(t.TempDir(), "missing.jpg")

	outcome := o.StartSession(context.Background(), config.ModeLivenessWithVerify, missing)

	assert.Equal(t, FailureInput, outcome.Failure)
	assert.Contains(t, outcome.Text, "Failed to read the verify image file "+missing)
	assert.Zero(t, face.createCalls)
}

func TestStartSessionMissingIdentifiers(t *testing.T) {
	for _, resp := range []*faceapi.CreateSessionResponse{
		{AuthToken: "tok"},
		{SessionID: "sess"},
		{},
		nil,
	} {
		face := &stubFace{createResp: resp}
		links := &stubLinks{fragment: "/s/abc"}
		o := newTestOrchestrator(testConfig(config.ModeLiveness), face, links, Dependencies{})

		outcome := o.StartSession(context.Background(), config.ModeLiveness, "")

		assert.Equal(t, "Failed to create liveness session. Please check the FACEAPI_ENDPOINT, FACEAPI_KEY, FACEAPI_WEBSITE environment variables.", outcome.Text)
		assert.Equal(t, FailureRemote, outcome.Failure)
		assert.Zero(t, links.calls)
	}
}

func TestStartSessionCreateError(t *testing.T) {
	face := &stubFace{createErr: &faceapi.APIError{StatusCode: 401, Message: "denied"}}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.StartSession(context.Background(), config.ModeLiveness, "")

	assert.True(t, strings.HasPrefix(outcome.Text, "Failed to create liveness session."))
	assert.Equal(t, FailureRemote, outcome.Failure)
}

func TestStartSessionMissingShortURL(t *testing.T) {
	for _, links := range []*stubLinks{{fragment: ""}, {err: errors.New("boom")}} {
		face := &stubFace{createResp: &faceapi.CreateSessionResponse{SessionID: "sess-1", AuthToken: "tok-1"}}
		o := newTestOrchestrator(testConfig(config.ModeLiveness), face, links, Dependencies{})

		outcome := o.StartSession(context.Background(), config.ModeLiveness, "")

		assert.Equal(t, "Failed to create liveness session url. Please check the FACEAPI_ENDPOINT, FACEAPI_KEY, FACEAPI_WEBSITE environment variables.", outcome.Text)
		assert.Equal(t, FailureRemote, outcome.Failure)
	}
}

func TestStartSessionSuccess(t *testing.T) {
	face := &stubFace{createResp: &faceapi.CreateSessionResponse{SessionID: "sess-1", AuthToken: "tok-1"}}
	links := &stubLinks{fragment: "/s/abc"}
	registry := sessionstore.NewMemoryStore()
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, links, Dependencies{Registry: registry})

	outcome := o.StartSession(context.Background(), config.ModeLiveness, "")

	require.True(t, outcome.OK())
	assert.Contains(t, outcome.Text, "https://liveness.example.com/s/abc")
	assert.Contains(t, outcome.Text, "call getLivenessResult with the session ID sess-1")
	assert.Equal(t, "tok-1", links.authToken)

	require.NotNil(t, face.createReq)
	assert.Equal(t, config.ModeLiveness, face.createMode)
	assert.Equal(t, 600, face.createReq.AuthTokenTimeToLiveInSeconds)
	assert.Equal(t, "PassiveActive", face.createReq.LivenessOperationMode)
	assert.False(t, face.createReq.SendResultsToClient)
	assert.True(t, face.createReq.EnableSessionImage)
	assert.Equal(t, "corr-1", face.createReq.DeviceCorrelationID)
	assert.Nil(t, face.createReq.VerifyImage)

	record, err := o.LookupSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "https://liveness.example.com/s/abc", record.URL)
	assert.Equal(t, "detectLiveness", record.Mode)
}

func TestStartSessionVerifyAttachesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "me.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	face := &stubFace{createResp: &faceapi.CreateSessionResponse{SessionID: "sess-1", AuthToken: "tok-1"}}
	o := newTestOrchestrator(testConfig(config.ModeLivenessWithVerify), face, &stubLinks{fragment: "/s/abc"}, Dependencies{})

	outcome := o.StartSession(context.Background(), config.ModeLivenessWithVerify, path)

	require.True(t, outcome.OK(), outcome.Text)
	assert.Equal(t, config.ModeLivenessWithVerify, face.createMode)
	assert.Equal(t, []byte("jpeg"), face.createReq.VerifyImage)
	assert.Equal(t, path, face.createReq.VerifyImageName)
	assert.Contains(t, outcome.Text, "call getLivenessResultWithVerify with the session ID sess-1")
}

func TestStartSessionUsesSameCorrelationID(t *testing.T) {
	face := &stubFace{createResp: &faceapi.CreateSessionResponse{SessionID: "sess-1", AuthToken: "tok-1"}}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{fragment: "/s/abc"}, Dependencies{})

	o.StartSession(context.Background(), config.ModeLiveness, "")
	first := face.createReq.DeviceCorrelationID
	o.StartSession(context.Background(), config.ModeLiveness, "")

	assert.Equal(t, first, face.createReq.DeviceCorrelationID)
}

func TestLookupSessionWithoutRegistry(t *testing.T) {
	o := newTestOrchestrator(testConfig(config.ModeLiveness), &stubFace{}, &stubLinks{}, Dependencies{})

	_, err := o.LookupSession(context.Background(), "sess-1")

	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestGetResultNotSucceeded(t *testing.T) {
	face := &stubFace{result: &faceapi.SessionResult{Status: "NotStarted"}}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{Evidence: evidence.NewFileStore(t.TempDir())})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "The status of the session is NotStarted. Please check the session ID.", outcome.Text)
	assert.Equal(t, FailureSessionStatus, outcome.Failure)
	assert.Zero(t, face.imageCalls)
}

func TestGetResultRealFace(t *testing.T) {
	face := &stubFace{result: succeeded(faceapi.AttemptResult{LivenessDecision: "realface"})}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "sess-1 is a real person.", outcome.Text)
	assert.True(t, strings.HasSuffix(outcome.Text, "is a real person."))
	assert.True(t, outcome.OK())
	assert.Equal(t, LivenessRealFace, outcome.Result.Liveness)
}

func TestGetResultSpoofFace(t *testing.T) {
	face := &stubFace{result: succeeded(faceapi.AttemptResult{LivenessDecision: "spoofface"})}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Contains(t, outcome.Text, "failed the liveness check.")
}

func TestGetResultUndeterminedLiveness(t *testing.T) {
	face := &stubFace{result: &faceapi.SessionResult{Status: faceapi.SessionStatusSucceeded}}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "Failed to get the liveness result. Please check the session ID.", outcome.Text)
}

func TestGetResultVerifyDecisions(t *testing.T) {
	cases := []struct {
		name     string
		verify   *faceapi.VerifyResult
		expected string
	}{
		{"match", &faceapi.VerifyResult{IsIdentical: boolPtr(true)}, "The verify image is a match."},
		{"no match", &faceapi.VerifyResult{IsIdentical: boolPtr(false)}, "The verify image is not a match."},
		{"absent decision", &faceapi.VerifyResult{}, "Failed to get the verify result. Please check the session ID."},
		{"absent result", nil, "Failed to get the verify result. Please check the session ID."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			face := &stubFace{result: succeeded(faceapi.AttemptResult{LivenessDecision: "realface", VerifyResult: tc.verify})}
			o := newTestOrchestrator(testConfig(config.ModeLivenessWithVerify), face, &stubLinks{}, Dependencies{})

			outcome := o.GetResult(context.Background(), "sess-1", config.ModeLivenessWithVerify)

			assert.Equal(t, "sess-1 is a real person.\n"+tc.expected, outcome.Text)
		})
	}
}

func TestGetResultPlainModeIgnoresVerifyResult(t *testing.T) {
	face := &stubFace{result: succeeded(faceapi.AttemptResult{
		LivenessDecision: "realface",
		VerifyResult:     &faceapi.VerifyResult{IsIdentical: boolPtr(true)},
	})}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "sess-1 is a real person.", outcome.Text)
}

func TestGetResultStoresEvidenceImage(t *testing.T) {
	dir := t.TempDir()
	face := &stubFace{
		result: succeeded(faceapi.AttemptResult{LivenessDecision: "realface", SessionImageID: "img-1"}),
		image:  []byte{0xff, 0xd8, 0xff, 0xe0},
	}
	recorder := &stubRecorder{}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{
		Evidence: evidence.NewFileStore(dir),
		Recorder: recorder,
	})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "sess-1 is a real person.", outcome.Text)
	path := filepath.Join(dir, "sess-1", "sessionImage.jpg")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, data)
	assert.Equal(t, path, outcome.Result.Evidence.Path)

	require.Len(t, recorder.logs, 1)
	assert.Equal(t, path, recorder.logs[0].EvidencePath)
	assert.Equal(t, "realface", recorder.logs[0].LivenessDecision)
	assert.Equal(t, "corr-1", recorder.logs[0].CorrelationID)
}

func TestGetResultEvidenceFetchFailureStillReturnsDecision(t *testing.T) {
	dir := t.TempDir()
	face := &stubFace{
		result:   succeeded(faceapi.AttemptResult{LivenessDecision: "realface", SessionImageID: "img-1"}),
		imageErr: errors.New("network down"),
	}
	recorder := &stubRecorder{}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{
		Evidence: evidence.NewFileStore(dir),
		Recorder: recorder,
	})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "sess-1 is a real person.", outcome.Text)
	assert.Equal(t, 1, face.imageCalls)
	_, err := os.Stat(filepath.Join(dir, "sess-1", "sessionImage.jpg"))
	assert.True(t, os.IsNotExist(err))
	require.NotNil(t, outcome.Result.Evidence)
	assert.False(t, outcome.Result.Evidence.Saved())
	assert.Contains(t, recorder.logs[0].EvidenceError, "network down")
}

func TestGetResultEvidenceWriteFailureStillReturnsDecision(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	face := &stubFace{
		result: succeeded(faceapi.AttemptResult{LivenessDecision: "spoofface", SessionImageID: "img-1"}),
		image:  []byte("jpeg"),
	}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{Evidence: evidence.NewFileStore(blocker)})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "sess-1 failed the liveness check.", outcome.Text)
	assert.NotEmpty(t, outcome.Result.Evidence.Error)
}

func TestGetResultWithoutSessionID(t *testing.T) {
	face := &stubFace{}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.GetResult(context.Background(), " ", config.ModeLiveness)

	assert.Equal(t, FailureInput, outcome.Failure)
	assert.Zero(t, face.resultCalls)
}

func TestGetResultStatusFetchError(t *testing.T) {
	face := &stubFace{resultErr: errors.New("timeout")}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, FailureRemote, outcome.Failure)
	assert.Equal(t, "Failed to get the status of the liveness session. Please check the session ID.", outcome.Text)
}

func TestGetResultRecorderFailureIsIgnored(t *testing.T) {
	face := &stubFace{result: succeeded(faceapi.AttemptResult{LivenessDecision: "realface"})}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), face, &stubLinks{}, Dependencies{
		Recorder: &stubRecorder{saveErr: errors.New("db down")},
	})

	outcome := o.GetResult(context.Background(), "sess-1", config.ModeLiveness)

	assert.Equal(t, "sess-1 is a real person.", outcome.Text)
}
