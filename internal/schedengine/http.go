package schedengine

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paperrunner/internal/storeclient"
)

// Router builds the scheduled engine's HTTP surface: /health, /status,
// /test (runs one named enabled algorithm through RunAlgorithm; this
// is not a dry run, so any signal it produces submits an order and
// updates the store), and /run (manual out-of-cadence trigger). Grounded on entry.py's
// on_fetch branches; no authentication, per the spec's non-goal.
func (e *Engine) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		algorithms, err := e.store.ListEnabledAlgorithms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, e.Status(len(algorithms)))
	})

	r.POST("/test", func(c *gin.Context) {
		var req struct {
			AlgorithmName string `json:"algorithm_name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		algo, ok := e.findByName(c.Request.Context(), req.AlgorithmName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "algorithm not found or not enabled"})
			return
		}
		err := e.RunAlgorithm(c.Request.Context(), algo)
		result := gin.H{"algorithm": algo.Name}
		if err != nil {
			result["status"] = "error"
			result["error"] = err.Error()
		} else {
			result["status"] = "executed"
		}
		c.JSON(http.StatusOK, gin.H{"test_run": true, "results": []gin.H{result}})
	})

	r.POST("/run", func(c *gin.Context) {
		if err := e.RunOnce(c.Request.Context(), time.Now()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "scheduled engine run complete"})
	})

	return r
}

func (e *Engine) findByName(ctx context.Context, name string) (storeclient.Algorithm, bool) {
	algorithms, err := e.store.ListEnabledAlgorithms(ctx)
	if err != nil {
		return storeclient.Algorithm{}, false
	}
	for _, a := range algorithms {
		if a.Name == name {
			return a, true
		}
	}
	return storeclient.Algorithm{}, false
}
