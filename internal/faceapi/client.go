package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/logging"
)

const (
	apiVersionPath  = "/face/v1.2"
	subscriptionKey = "Ocp-Apim-Subscription-Key"
	maxImageBytes   = 10 << 20
)

// Client talks to the Azure Face liveness API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a Face API client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.Named("faceapi"),
	}
}

// CreateSession creates a liveness session for mode.
func (c *Client) CreateSession(ctx context.Context, mode config.Mode, in *CreateSessionRequest) (*CreateSessionResponse, error) {
	body, contentType, err := encodeCreateSession(in)
	if err != nil {
		return nil, logging.NewOperationError("faceapi.create_session", "", err)
	}

	endpoint := c.baseURL + apiVersionPath + "/" + mode.String() + "-sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, logging.NewOperationError("faceapi.create_session", "", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	var out CreateSessionResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, logging.NewOperationError("faceapi.create_session", "", err)
	}
	c.logger.Debug("liveness session created", zap.String("mode", mode.String()), zap.String("session_id", out.SessionID))
	return &out, nil
}

// GetSessionResult fetches the status document of a session.
func (c *Client) GetSessionResult(ctx context.Context, mode config.Mode, sessionID string) (*SessionResult, error) {
	endpoint := c.baseURL + apiVersionPath + "/" + mode.String() + "-sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, logging.NewOperationError("faceapi.get_session_result", sessionID, fmt.Errorf("failed to create request: %w", err))
	}

	var out SessionResult
	if err := c.doJSON(req, &out); err != nil {
		return nil, logging.NewOperationError("faceapi.get_session_result", sessionID, err)
	}
	return &out, nil
}

// GetSessionImage downloads the raw bytes of a session image.
func (c *Client) GetSessionImage(ctx context.Context, imageID string) ([]byte, error) {
	endpoint := c.baseURL + apiVersionPath + "/sessionImages/" + url.PathEscape(imageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, logging.NewOperationError("faceapi.get_session_image", "", fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, logging.NewOperationError("faceapi.get_session_image", "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, logging.NewOperationError("faceapi.get_session_image", "", fmt.Errorf("failed to read image: %w", err))
	}
	return data, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends req with the subscription key and turns non 2xx replies into *APIError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set(subscriptionKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func encodeCreateSession(in *CreateSessionRequest) (io.Reader, string, error) {
	if in.VerifyImage == nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal session request: %w", err)
		}
		return bytes.NewReader(payload), "application/json", nil
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := []struct{ name, value string }{
		{"authTokenTimeToLiveInSeconds", strconv.Itoa(in.AuthTokenTimeToLiveInSeconds)},
		{"livenessOperationMode", in.LivenessOperationMode},
		{"sendResultsToClient", strconv.FormatBool(in.SendResultsToClient)},
		{"deviceCorrelationId", in.DeviceCorrelationID},
		{"enableSessionImage", strconv.FormatBool(in.EnableSessionImage)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	filename := filepath.Base(in.VerifyImageName)
	if in.VerifyImageName == "" {
		filename = "verify-image"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="VerifyImage"; filename=%q`, filename))
	header.Set("Content-Type", "application/octet-stream")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(in.VerifyImage); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
