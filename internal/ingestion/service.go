package ingestion

import (
	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aevon-lab/aevon-rum/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// MaxListLimit bounds the limit query parameter of the session events endpoint.
const MaxListLimit = 10000

type Service struct {
	store            storage.BatchStore
	clock            clock.Clock
	maxBodySizeBytes int
}

func NewService(repo storage.BatchStore, maxBodySizeMB int) *Service {
	if repo == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            repo,
		clock:            clock.Real,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the collector routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/appmonitors/:app_id", s.PutRumEventsHandler)
	r.GET("/appmonitors/:app_id/sessions/:session_id/events", s.ListSessionEventsHandler)
}
