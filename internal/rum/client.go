package rum

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/cache"
	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aevon-lab/aevon-rum/internal/core/config"
	"github.com/aevon-lab/aevon-rum/internal/dispatch"
	"github.com/aevon-lab/aevon-rum/internal/eventbus"
	"github.com/aevon-lab/aevon-rum/internal/page"
	"github.com/aevon-lab/aevon-rum/internal/plugin"
	"github.com/aevon-lab/aevon-rum/internal/session"
	"github.com/aws/aws-sdk-go-v2/aws"
)

// Version is reported in the aevon:clientVersion attribute.
const Version = "1.0.0"

// Option customises a Client.
type Option func(*options)

type options struct {
	clock       clock.Clock
	httpClient  *http.Client
	jar         session.CookieJar
	noCookies   bool
	sampler     func() float64
	credentials aws.CredentialsProvider
	plugins     []plugin.Plugin
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithHTTPClient sets the client used by both transports.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCookieJar sets where identity and session cookies are kept.
func WithCookieJar(jar session.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

// WithoutCookieSupport behaves as a host that cannot store cookies at all.
func WithoutCookieSupport() Option {
	return func(o *options) { o.noCookies = true }
}

// WithSampler replaces the random source of the session sampling draw.
func WithSampler(sample func() float64) Option {
	return func(o *options) { o.sampler = sample }
}

// WithCredentialsProvider replaces the default credential chain used for signing.
func WithCredentialsProvider(p aws.CredentialsProvider) Option {
	return func(o *options) { o.credentials = p }
}

// WithPlugins registers plugins when the client is created.
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, plugins...) }
}

// Client is the assembled telemetry pipeline: cache, session, dispatch and
// plugins, driven by commands.
type Client struct {
	cfg        config.Config
	bus        *eventbus.Bus
	cache      *cache.Cache
	dispatcher *dispatch.Dispatcher
	plugins    *plugin.Manager
}

// New assembles a client from cfg. A malformed endpoint or missing
// application id is returned as an error.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	if _, err := dispatch.ParseEndpoint(cfg.Telemetry.Endpoint); err != nil {
		return nil, err
	}

	o := options{clock: clock.Real, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.jar == nil && !o.noCookies {
		o.jar = session.NewMemoryJar(o.clock)
	}

	t := cfg.Telemetry
	c := &Client{cfg: *cfg, bus: eventbus.New()}

	sessionOpts := []session.Option{session.WithEnvironment(session.Environment{
		UserAgent:     t.UserAgent,
		Language:      t.Language,
		Domain:        hostDomain(t.CookieDomain),
		ClientVersion: Version,
	})}
	if !o.noCookies {
		sessionOpts = append(sessionOpts, session.WithCookieJar(o.jar))
	}
	if o.sampler != nil {
		sessionOpts = append(sessionOpts, session.WithSampler(o.sampler))
	}

	c.cache = cache.New(cache.Config{
		Application:       v1.AppMonitorDetails{ID: cfg.Application.ID, Version: cfg.Application.Version},
		EventCacheSize:    t.EventCacheSize,
		SessionEventLimit: t.SessionEventLimit,
		CandidateCapacity: t.CandidateCacheSize,
		Session: session.Config{
			AllowCookies:        t.AllowCookies,
			SampleRate:          t.SessionSampleRate,
			SessionLength:       t.SessionLength(),
			UserIDRetentionDays: t.UserIDRetentionDays,
			CookieDomain:        t.CookieDomain,
		},
	}, cache.WithClock(o.clock), cache.WithEventBus(c.bus), cache.WithSessionOptions(sessionOpts...))

	var signer *dispatch.Signer
	if t.Signing {
		provider := o.credentials
		if provider == nil {
			provider = dispatch.DefaultCredentialsProvider(cfg.Application.Region, dispatch.StaticCredentials{
				AccessKeyID:     t.Credentials.AccessKeyID,
				SecretAccessKey: t.Credentials.SecretAccessKey,
				SessionToken:    t.Credentials.SessionToken,
			})
		}
		signer = dispatch.NewSigner(cfg.Application.Region, provider, o.clock)
	}

	fetch, err := dispatch.NewHTTPSender(dispatch.HTTPConfig{
		Endpoint:       t.Endpoint,
		AppID:          cfg.Application.ID,
		Retries:        t.Retries,
		RetryBaseDelay: t.RetryBaseDelay,
		RequestTimeout: t.RequestTimeout,
		Compression:    dispatch.Compression{Enabled: t.Compression.Enabled, ThresholdBytes: t.Compression.ThresholdBytes},
	}, o.httpClient, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create http transport: %w", err)
	}
	beacon, err := dispatch.NewBeaconSender(t.Endpoint, cfg.Application.ID, o.httpClient, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create beacon transport: %w", err)
	}

	c.dispatcher = dispatch.NewDispatcher(c.cache, fetch, beacon, dispatch.Config{
		Interval:  t.DispatchInterval,
		UseBeacon: t.UseBeacon,
		Signer:    signer,
	})

	c.plugins = plugin.NewManager(&pluginContext{client: c})
	c.cache.SetPluginFlushHook(c.plugins.Flush)
	for _, p := range o.plugins {
		if err := c.plugins.AddPlugin(p); err != nil {
			return nil, fmt.Errorf("failed to add plugin: %w", err)
		}
	}

	slog.Info("[RUM] Client initialised",
		"app_id", cfg.Application.ID,
		"endpoint", t.Endpoint,
		"sample_rate", t.SessionSampleRate,
		"signing", t.Signing,
		"plugins", len(o.plugins))
	return c, nil
}

func hostDomain(cookieDomain string) string {
	if cookieDomain != "" {
		return cookieDomain
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return ""
}

// Start runs the dispatch loop until ctx is cancelled, then flushes.
func (c *Client) Start(ctx context.Context) error {
	return c.dispatcher.Start(ctx)
}

// PageHidden performs the final best-effort flush.
func (c *Client) PageHidden(ctx context.Context) {
	c.dispatcher.PageHidden(ctx)
}

// AddPlugin registers and loads p.
func (c *Client) AddPlugin(p plugin.Plugin) error {
	return c.plugins.AddPlugin(p)
}

// RecordEvent records an event of eventType with data as its details.
func (c *Client) RecordEvent(eventType string, data any) {
	c.cache.RecordEvent(eventType, data)
}

// RecordPageView records a page view.
func (c *Client) RecordPageView(in page.Input) {
	c.cache.RecordPageView(in)
}

// Enable resumes recording, dispatching and all plugins.
func (c *Client) Enable() {
	c.cache.Enable()
	c.dispatcher.Enable()
	c.plugins.EnableAll()
}

// Disable stops recording, dispatching and all plugins.
func (c *Client) Disable() {
	c.plugins.DisableAll()
	c.dispatcher.Disable()
	c.cache.Disable()
}

// Cache returns the event cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// Dispatcher returns the dispatcher shipping cached events.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Plugins returns the plugin manager.
func (c *Client) Plugins() *plugin.Manager { return c.plugins }

// Bus returns the bus shared with plugins.
func (c *Client) Bus() *eventbus.Bus { return c.bus }

// Config returns a copy of the configuration the client was built from.
func (c *Client) Config() config.Config { return c.cfg }

// Session returns the current session, or nil when none is active.
func (c *Client) Session() *session.Session { return c.cache.Session() }

// Application identifies the instrumented application.
func (c *Client) Application() v1.AppMonitorDetails { return c.cache.AppMonitorDetails() }
