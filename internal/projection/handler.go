package projection

import (
	"errors"
	"net/http"

	httperr "github.com/aevon-lab/aevon-rum/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/appmonitors/:app_id/sessions/:session_id/summary", s.HandleSessionSummary)
}

// HandleSessionSummary handles GET /appmonitors/:app_id/sessions/:session_id/summary
// Query parameters: granularity (total, 1m, 1h)
func (s *Service) HandleSessionSummary(c *gin.Context) {
	var uri struct {
		AppID     string `uri:"app_id" binding:"required"`
		SessionID string `uri:"session_id" binding:"required"`
	}
	var query struct {
		Granularity string `form:"granularity"`
	}

	// Bind URI parameters (app_id, session_id)
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.SummarizeSession(c.Request.Context(), SessionSummaryRequest{
		AppID:       uri.AppID,
		SessionID:   uri.SessionID,
		Granularity: query.Granularity,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuery):
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidQueryError,
				Message:   "Invalid summary query",
				Details:   err.Error(),
			})
		case errors.Is(err, ErrSessionNotFound):
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "No events stored for session",
			})
		default:
			c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
				ErrorType: httperr.HttpInternalError,
				Message:   "Failed to summarize session",
				Details:   err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
