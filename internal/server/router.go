package server

import (
	"pragrisk/internal/handlers"
	"pragrisk/internal/metrics"
	"pragrisk/internal/middleware"
	"pragrisk/internal/models"
	"pragrisk/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func NewRouter(svc *service.Services, db *gorm.DB, m *metrics.Metrics, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	// PUT/PATCH on a collection path answer 405 instead of 404
	r.HandleMethodNotAllowed = true

	r.Use(gin.Recovery())
	r.Use(middleware.InjectRequestContext(log))
	r.Use(middleware.AccessLog())

	api := r.Group("/api")

	// REGISTER
	handlers.NewResource[models.ActorPatch](svc.Actors).Mount(api)
	handlers.NewResource[models.TechnologyPatch](svc.Technologies).Mount(api)
	handlers.NewResource[models.VulnerabilityPatch](svc.Vulnerabilities).Mount(api)
	handlers.NewResource[models.MitigationPatch](svc.Mitigations).Mount(api)
	handlers.NewResource[models.ScenarioPatch](svc.Scenarios).Mount(api)
	handlers.NewResource[models.EnvironmentPatch](svc.Environments).Mount(api)

	// HIERARCHY AND RISK
	api.GET("/actors/:id/ancestors", handlers.Ancestors(svc.ActorTree))
	api.GET("/technologies/:id/ancestors", handlers.Ancestors(svc.TechnologyTree))
	api.GET("/technologies/:id/effective-stack", handlers.EffectiveTechStack(svc))
	api.GET("/scenarios/:id/risk", handlers.AssessRisk(svc))

	// AUDIT
	api.GET("/audit-logs", handlers.ListAuditLogs(db))

	r.GET("/health", handlers.Health(db))
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}
