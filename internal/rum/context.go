package rum

import (
	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/core/config"
	"github.com/aevon-lab/aevon-rum/internal/eventbus"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/aevon-lab/aevon-rum/internal/session"
)

// pluginContext exposes the client to plugins.
type pluginContext struct {
	client *Client
}

func (p *pluginContext) Record(eventType string, data any) {
	p.client.cache.RecordEvent(eventType, data)
}

func (p *pluginContext) RecordCandidate(key string, data any) {
	p.client.cache.RecordCandidate(key, data)
}

func (p *pluginContext) Candidate(key string) (any, bool) {
	return p.client.cache.Candidate(key)
}

func (p *pluginContext) RecordPageView(in page.Input) {
	p.client.cache.RecordPageView(in)
}

func (p *pluginContext) Session() *session.Session { return p.client.cache.Session() }

func (p *pluginContext) Bus() *eventbus.Bus { return p.client.bus }

func (p *pluginContext) Application() v1.AppMonitorDetails {
	return p.client.cache.AppMonitorDetails()
}

func (p *pluginContext) Config() config.TelemetryConfig { return p.client.cfg.Telemetry }
