package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/liveness-server/internal/auth"
	"github.com/example/liveness-server/internal/liveness"
	"github.com/example/liveness-server/internal/repository"
	"github.com/example/liveness-server/internal/sessionstore"
)

// Service is the liveness capability exposed over HTTP.
type Service interface {
	Start(ctx context.Context) liveness.Outcome
	Result(ctx context.Context, sessionID string) liveness.Outcome
	LookupSession(ctx context.Context, sessionID string) (*sessionstore.Record, error)
	History(ctx context.Context, sessionID string) ([]*repository.LivenessLog, error)
	GetMetricsSummary(ctx context.Context) (*liveness.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP bridge handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Service, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", authMiddleware)

	api.POST("/sessions", func(c *gin.Context) {
		outcome := svc.Start(c.Request.Context())
		logCall(logger, c, "bridge.start_session", outcome)

		body := gin.H{"message": outcome.Text, "failure": outcome.Failure.String()}
		if outcome.Session != nil {
			body["session_id"] = outcome.Session.ID
			body["url"] = outcome.Session.URL
			body["created_at"] = outcome.Session.CreatedAt
		}
		c.JSON(statusFor(outcome, http.StatusCreated), body)
	})

	api.GET("/sessions/:id", func(c *gin.Context) {
		record, err := svc.LookupSession(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sessionstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			logger.Error("session lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		c.JSON(http.StatusOK, record)
	})

	api.GET("/sessions/:id/result", func(c *gin.Context) {
		outcome := svc.Result(c.Request.Context(), c.Param("id"))
		logCall(logger, c, "bridge.get_result", outcome)

		body := gin.H{"message": outcome.Text, "failure": outcome.Failure.String()}
		if result := outcome.Result; result != nil {
			body["status"] = result.Status
			if outcome.OK() {
				body["liveness"] = result.Liveness.String()
				if result.Mode.RequiresVerifyImage() {
					body["verify"] = result.Verify.String()
				}
				if result.Evidence != nil {
					body["evidence"] = result.Evidence
				}
			}
		}
		c.JSON(statusFor(outcome, http.StatusOK), body)
	})

	api.GET("/sessions/:id/history", func(c *gin.Context) {
		logs, err := svc.History(c.Request.Context(), c.Param("id"))
		if !auditAvailable(c, logger, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "results": logs})
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if !auditAvailable(c, logger, err) {
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func statusFor(outcome liveness.Outcome, success int) int {
	switch outcome.Failure {
	case liveness.FailureNone:
		return success
	case liveness.FailureConfiguration:
		return http.StatusServiceUnavailable
	case liveness.FailureInput:
		return http.StatusBadRequest
	case liveness.FailureSessionStatus:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

func auditAvailable(c *gin.Context, logger *zap.Logger, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, liveness.ErrAuditLogDisabled) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return false
	}
	logger.Error("audit query failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
	return false
}

func logCall(logger *zap.Logger, c *gin.Context, operation string, outcome liveness.Outcome) {
	caller, _ := auth.GetCaller(c.Request.Context())
	logger.Info("bridge call",
		zap.String("operation", operation),
		zap.String("caller", caller),
		zap.String("failure", outcome.Failure.String()),
	)
}
