package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunSweep triggers one cooloff sweep outside the regular schedule.
func (s *Server) RunSweep(c *gin.Context) {
	result, err := s.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"run_id":         result.RunID,
		"cutoff":         result.Cutoff,
		"batches":        result.Batches,
		"failed_batches": result.FailedBatches,
		"scanned":        result.Scanned,
		"expired":        result.Expired,
		"skipped":        result.Skipped,
		"failed":         result.Failed,
		"duration_ms":    result.Duration.Milliseconds(),
	}})
}
