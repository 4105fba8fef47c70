package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelrelay/internal/core"
)

type PrinterResponse struct {
	Address     string   `json:"address"`
	WorkCenters []string `json:"workCenters"`
	Default     bool     `json:"default"`
	DeviceURL   string   `json:"deviceUrl"`
}

type PrinterHandler struct {
	registry   *core.Registry
	devicePath string
}

func NewPrinterHandler(registry *core.Registry, devicePath string) *PrinterHandler {
	return &PrinterHandler{
		registry:   registry,
		devicePath: devicePath,
	}
}

// ListPrinters returns the configured inventory in routing order.
func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	records := h.registry.Records()

	responses := make([]PrinterResponse, 0, len(records))
	for i, p := range records {
		responses = append(responses, h.printerToResponse(p, i == 0))
	}

	c.JSON(http.StatusOK, responses)
}

func (h *PrinterHandler) printerToResponse(p core.PrinterRecord, isDefault bool) PrinterResponse {
	workCenters := p.RoutingKeys
	if workCenters == nil {
		workCenters = []string{}
	}
	return PrinterResponse{
		Address:     p.Address,
		WorkCenters: workCenters,
		Default:     isDefault,
		DeviceURL:   "http://" + p.Address + h.devicePath,
	}
}

func RegisterPrinterRoutes(router *gin.Engine, handler *PrinterHandler) {
	router.GET("/printers", handler.ListPrinters)
}
