// Package router provides analyzer service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/callinsight/internal/analyzer/handler"
)

// Register registers the analyzer service routes on the gin engine.
func Register(engine *gin.Engine, h *handler.AnalyzerHandler) {
	logger.Info("Registering analyzer routes...")

	engine.GET("/healthz", h.Health)

	v1 := engine.Group("/v1")
	{
		analysis := v1.Group("/analysis")
		{
			analysis.POST("/query", h.Query)
			analysis.GET("/methods", h.Methods)
			analysis.GET("/history", h.History)
		}

		retrieval := v1.Group("/retrieval")
		{
			retrieval.POST("/search", h.Search)
		}

		dictionary := v1.Group("/dictionary")
		{
			dictionary.GET("", h.Dictionary)
			dictionary.POST("/aggregate", h.AggregateDictionary)
		}

		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
