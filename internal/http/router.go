package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/research-reports/internal/http/handlers"
	httpMW "github.com/yungbote/research-reports/internal/http/middleware"
	"github.com/yungbote/research-reports/internal/observability"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	ReportHandler *httpH.ReportHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Reports
		if cfg.ReportHandler != nil {
			api.POST("/reports", cfg.ReportHandler.CreateReport)
			api.GET("/reports", cfg.ReportHandler.ListReports)
			api.GET("/reports/:id", cfg.ReportHandler.GetReport)
			api.PATCH("/reports/:id", cfg.ReportHandler.UpdateReport)
			api.DELETE("/reports/:id", cfg.ReportHandler.DeleteReport)
			api.POST("/reports/:id/analyze", cfg.ReportHandler.AnalyzePrompt)
			api.POST("/reports/:id/generate", cfg.ReportHandler.GenerateReport)
			api.POST("/reports/:id/cancel", cfg.ReportHandler.CancelReport)
			api.GET("/reports/:id/related-documents", cfg.ReportHandler.RelatedDocuments)
			api.GET("/reports/:id/events", cfg.ReportHandler.StreamEvents)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
