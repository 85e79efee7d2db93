package handlers

import (
	"net/http"

	"artcache/importer"
	"artcache/models"

	"github.com/gin-gonic/gin"
)

type ImportRequest struct {
	Tuples []importer.Tuple `json:"tuples" binding:"required"`
}

// ImportBatch ingests a legacy client-cache export. Individual tuple
// failures are reported per tuple and never abort the batch.
func ImportBatch(c *gin.Context, client *models.ApiClient) {
	r := ImportRequest{}
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error(), Code: "invalid_input"})
		return
	}
	c.JSON(http.StatusOK, importer.ImportBatch(r.Tuples))
}
