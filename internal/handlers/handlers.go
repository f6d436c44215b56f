package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/tray-verify/internal/profile"
	"github.com/example/tray-verify/internal/session"
)

type startRequest struct {
	TrayID string `json:"tray_id"`
}

type inputRequest struct {
	Action string `json:"action"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, mgr *session.Manager, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", authMiddleware)

	authed.POST("/session/start", func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.TrayID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tray_id is required"})
			return
		}

		snap, err := mgr.Start(c.Request.Context(), req.TrayID)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "session": snap})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": snap})
	})

	authed.POST("/session/input", func(c *gin.Context) {
		var req inputRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
			return
		}
		action, err := session.ParseAction(req.Action)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		snap, err := mgr.OperatorInput(c.Request.Context(), action)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "session": snap})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": snap})
	})

	authed.POST("/session/clearance", func(c *gin.Context) {
		snap, err := mgr.ConfirmArmClearance()
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "session": snap})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": snap})
	})

	authed.POST("/session/reset", func(c *gin.Context) {
		snap, err := mgr.Reset()
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "session": snap})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": snap})
	})

	authed.GET("/session/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"session": mgr.Status()})
	})

	authed.GET("/profiles", func(c *gin.Context) {
		ids, err := mgr.ListProfiles(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tray_ids": ids})
	})

	authed.GET("/verdicts/:scan_id", func(c *gin.Context) {
		scanID := c.Param("scan_id")
		if scanID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scan_id is required"})
			return
		}

		log, err := mgr.VerdictLog(c.Request.Context(), scanID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "verdict not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"scan_id":         log.ScanID,
			"tray_id":         log.TrayID,
			"overall":         log.Overall,
			"avg_confidence":  log.AvgConfidence,
			"verdict":         log.Verdict,
			"operator_action": log.OperatorAction,
			"created_at":      log.CreatedAt,
		})
	})

	authed.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := mgr.MetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// statusForError maps the session error taxonomy to HTTP statuses:
// unknown profiles are 404, rejected operator inputs are 409, anything
// else (acquisition escalation included) is 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClearanceRequired), errors.Is(err, session.ErrInvalidInput):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
