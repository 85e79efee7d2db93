package utils

import (
	"log"

	"github.com/gin-gonic/gin"
)

type errorLogWriter struct {
	gin.ResponseWriter
	gc *gin.Context
}

func (w *errorLogWriter) Write(b []byte) (int, error) {
	if status := w.gc.Writer.Status(); status >= 400 {
		log.Printf("[DEBUG ERROR]: Status %d, Body: %s", status, string(b))
	}
	return w.ResponseWriter.Write(b)
}

// ErrorLogMiddleware logs response bodies of failed requests so
// generation and storage errors are visible without client-side
// capture. Debug mode only - it cannot see through gzip.
func ErrorLogMiddleware(c *gin.Context) {
	c.Writer = &errorLogWriter{gc: c, ResponseWriter: c.Writer}
	c.Next()
}
