package public

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "dujiao-settlement"

// Health 存活检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   serviceName,
	})
}
