package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelrelay/internal/api/handlers"
	"github.com/orrn/labelrelay/internal/api/middleware"
	"github.com/orrn/labelrelay/internal/core"
)

type RouterDeps struct {
	Dispatcher handlers.Dispatcher
	Registry   *core.Registry
	DevicePath string
	Logger     *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	handlers.UseJSONFieldNames()

	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.RecoveryMiddleware(deps.Logger),
		middleware.AccessLogMiddleware(deps.Logger),
	)

	handlers.RegisterSystemRoutes(router, handlers.NewSystemHandler())
	handlers.RegisterPrintRoutes(router, handlers.NewPrintHandler(deps.Dispatcher, deps.Logger))
	handlers.RegisterPrinterRoutes(router, handlers.NewPrinterHandler(deps.Registry, deps.DevicePath))

	return router
}
