package handlers

import (
	"net/http"
	"strconv"

	"pragrisk/internal/database"
	"pragrisk/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListAuditLogs serves the mutation journal, newest first. Optional query
// parameters: entity, entityId, limit.
func ListAuditLogs(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := database.AuditFilter{
			Entity:   models.Kind(c.Query("entity")),
			EntityID: c.Query("entityId"),
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(c, badRequest("invalid limit"))
				return
			}
			filter.Limit = n
		}

		logs, err := database.ListAuditLogs(c.Request.Context(), db, filter)
		if err != nil {
			writeError(c, err)
			return
		}
		if logs == nil {
			logs = []models.AuditLog{}
		}
		c.JSON(http.StatusOK, logs)
	}
}
