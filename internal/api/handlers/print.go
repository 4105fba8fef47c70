package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelrelay/internal/api/middleware"
	"github.com/orrn/labelrelay/internal/core"
)

const printSuccessMessage = "Print request sent successfully"

type PrintRequest struct {
	URL          *string `json:"url,omitempty" binding:"omitempty,url"`
	ZPL          *string `json:"zpl,omitempty"`
	WorkCenterID *string `json:"workCenterId,omitempty"`
}

// PrintResponseData echoes the submitted fields next to what was sent.
type PrintResponseData struct {
	URL          *string `json:"url,omitempty"`
	ZPL          *string `json:"zpl,omitempty"`
	WorkCenterID *string `json:"workCenterId,omitempty"`
	ZPLContent   string  `json:"zplContent"`
	Printer      string  `json:"printer"`
	Bytes        int     `json:"bytes"`
	JobID        string  `json:"jobId"`
}

type PrintResponse struct {
	Message string            `json:"message"`
	Data    PrintResponseData `json:"data"`
}

// Dispatcher is the part of core.Dispatcher the print endpoint needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req core.PrintRequest) (*core.Result, error)
}

type PrintHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewPrintHandler(dispatcher Dispatcher, logger *slog.Logger) *PrintHandler {
	return &PrintHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *PrintHandler) Print(c *gin.Context) {
	logger := h.logger.With("request_id", middleware.RequestID(c))

	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		issues := bindingIssues(err)
		logger.Info("rejected print request", "issues", len(issues))
		c.JSON(http.StatusBadRequest, gin.H{"error": issues})
		return
	}

	if isBlank(req.URL) && isBlank(req.ZPL) {
		logger.Info("rejected print request", "reason", "neither url nor zpl")
		c.JSON(http.StatusBadRequest, gin.H{"error": []Issue{eitherURLOrZPLIssue()}})
		return
	}

	logger.Info("received print request",
		"url", deref(req.URL),
		"zpl_bytes", len(deref(req.ZPL)),
		"work_center_id", deref(req.WorkCenterID),
	)

	result, err := h.dispatcher.Dispatch(c.Request.Context(), core.PrintRequest{
		SourceURL:     deref(req.URL),
		InlineContent: deref(req.ZPL),
		RoutingKey:    deref(req.WorkCenterID),
	})
	if err != nil {
		kind := core.KindOf(err)
		status := StatusFor(kind)
		logger.Warn("print request failed", "kind", kind, "status", status, "error", err)

		var de *core.DispatchError
		if errors.As(err, &de) && de.Kind == core.KindValidation {
			c.JSON(status, gin.H{"error": []Issue{{Code: "custom", Path: []string{}, Message: de.Error()}}})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PrintResponse{
		Message: printSuccessMessage,
		Data: PrintResponseData{
			URL:          req.URL,
			ZPL:          req.ZPL,
			WorkCenterID: req.WorkCenterID,
			ZPLContent:   result.Content,
			Printer:      result.Printer.Address,
			Bytes:        result.BytesSent,
			JobID:        result.JobID,
		},
	})
}

func RegisterPrintRoutes(router *gin.Engine, handler *PrintHandler) {
	router.POST("/print", handler.Print)
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
