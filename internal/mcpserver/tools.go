// Package mcpserver exposes the liveness operations as MCP tools over stdio.
//
// Exactly one tool pair is registered, chosen by the configured mode:
//
//	startLivenessAuthentication / getLivenessResult
//	startLivenessAuthenticationWithVerify / getLivenessResultWithVerify
//
// Tool handlers never return Go errors; every failure is reported to the
// client as plain text.
package mcpserver

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/liveness"
)

const (
	ServerName    = "liveness-server"
	ServerVersion = "0.0.1"

	sessionIDArg = "sessionId"
)

// Service is the liveness capability behind the tools.
type Service interface {
	StartSession(ctx context.Context, mode config.Mode, referenceImagePath string) liveness.Outcome
	GetResult(ctx context.Context, sessionID string, mode config.Mode) liveness.Outcome
}

// Tools binds a Service to the tool pair of one mode.
type Tools struct {
	svc             Service
	mode            config.Mode
	verifyImagePath string
	logger          *zap.Logger
}

// NewTools returns the tool set for cfg.Mode.
func NewTools(svc Service, cfg config.Config, logger *zap.Logger) *Tools {
	return &Tools{
		svc:             svc,
		mode:            cfg.Mode,
		verifyImagePath: cfg.VerifyImagePath,
		logger:          logger.Named("mcp"),
	}
}

// Definitions returns the start and result tools with their handlers.
func (t *Tools) Definitions() []server.ServerTool {
	startDescription := "Start new a liveness face authentication session without verify.\n" +
		"@return {string} the url generated for the user to perform the authentication session without verify."
	resultDescription := "Get the result of liveness session without verify.\n" +
		"@param sessionId {string} the session id in the url.\n" +
		"@return {string} if the person is real or spoof."
	if t.mode.RequiresVerifyImage() {
		startDescription = "Start new a liveness face authentication session with verify.\n" +
			"@return {string} the url generated for the user to perform the authentication session with verify."
		resultDescription = "Get the result of liveness session with verify.\n" +
			"@param sessionId {string} the session id in the url.\n" +
			"@return {string} if the person is real or spoof with verify scores."
	}

	return []server.ServerTool{
		{
			Tool:    mcp.NewTool(t.mode.StartToolName(), mcp.WithDescription(startDescription)),
			Handler: t.handleStart,
		},
		{
			Tool: mcp.NewTool(t.mode.ResultToolName(),
				mcp.WithDescription(resultDescription),
				mcp.WithString(sessionIDArg, mcp.Required(), mcp.Description("sessionId: the session id in the url")),
			),
			Handler: t.handleResult,
		},
	}
}

func (t *Tools) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.logger.Debug("tool called", zap.String("tool", request.Params.Name))
	outcome := t.svc.StartSession(ctx, t.mode, t.verifyImagePath)
	return mcp.NewToolResultText(outcome.Text), nil
}

func (t *Tools) handleResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString(sessionIDArg, "")
	t.logger.Debug("tool called", zap.String("tool", request.Params.Name), zap.String("session_id", sessionID))
	outcome := t.svc.GetResult(ctx, sessionID, t.mode)
	return mcp.NewToolResultText(outcome.Text), nil
}

// NewServer builds an MCP server with the tools registered.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))
	s.AddTools(tools.Definitions()...)
	return s
}

// ServeStdio runs the stdio transport until ctx is done or the stream closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *zap.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger.Named("mcp_stdio")))
	return stdio.Listen(ctx, in, out)
}
