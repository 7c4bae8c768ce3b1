package plugin

import (
	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/core/config"
	"github.com/aevon-lab/aevon-rum/internal/eventbus"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/aevon-lab/aevon-rum/internal/session"
)

// Plugin is an instrumentation producer. Load is called exactly once, at
// registration; Enable and Disable may toggle any number of times afterwards.
// A disabled plugin must detach everything it attached, and Enable attaches
// again from scratch.
type Plugin interface {
	ID() string
	Load(ctx Context)
	Enable()
	Disable()
}

// Recorder is implemented by plugins that accept manually recorded data.
type Recorder interface {
	Record(data any)
}

// Updater is implemented by plugins whose configuration can change at runtime.
type Updater interface {
	Update(config any)
}

// Flusher is implemented by plugins that buffer data and must push it into
// the cache before a dispatch snapshot is taken.
type Flusher interface {
	Flush()
}

// Context is what a plugin sees of the pipeline.
type Context interface {
	// Record queues an event of eventType for the current session.
	Record(eventType string, data any)
	// RecordCandidate keeps data for later correlation without sending it.
	RecordCandidate(key string, data any)
	// Candidate returns data kept by RecordCandidate.
	Candidate(key string) (any, bool)
	RecordPageView(in page.Input)
	// Session returns the current session, or nil before the first event.
	Session() *session.Session
	Bus() *eventbus.Bus
	Application() v1.AppMonitorDetails
	Config() config.TelemetryConfig
}
