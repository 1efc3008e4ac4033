package handlers

import (
	"net/http"

	"pragrisk/internal/hierarchy"
	"pragrisk/internal/models"
	"pragrisk/internal/service"

	"github.com/gin-gonic/gin"
)

// Ancestors lists the parents of an entity, nearest first.
func Ancestors[P models.Hierarchical](tree *hierarchy.Resolver[P]) gin.HandlerFunc {
	return func(c *gin.Context) {
		chain, err := tree.Chain(c.Request.Context(), c.Param("id"), 0)
		if err != nil {
			writeError(c, err)
			return
		}
		// chain[0] is the entity itself
		c.JSON(http.StatusOK, chain[1:])
	}
}

type effectiveStack struct {
	ID        string            `json:"id"`
	TechStack *models.TechStack `json:"techStack"`
}

// EffectiveTechStack resolves the stack a technology inherits from its
// nearest ancestor declaring one.
func EffectiveTechStack(svc *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		stack, ok, err := svc.EffectiveTechStack(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		out := effectiveStack{ID: id}
		if ok {
			out.TechStack = &stack
		}
		c.JSON(http.StatusOK, out)
	}
}

// AssessRisk reports whether a scenario's stored risk value agrees with
// probability x consequence.
func AssessRisk(svc *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svc.AssessRisk(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}
