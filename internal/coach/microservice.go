package coach

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"

	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/middleware"
	"github.com/coach-dss/coach/internal/settings"
)

// BaseType is the root of every service lineage.
const BaseType = "Microservice"

const (
	healthCheckTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
	limiterCleanup     = 10 * time.Minute
)

// Config configures a Microservice.
type Config struct {
	// Name identifies this instance in logs, metrics and outbound calls.
	Name string
	// Lineage lists the service's type names, most specific first. It is
	// used for settings lookup; BaseType is appended when missing.
	Lineage  []string
	Version  string
	Settings *settings.Settings
	Logger   *logging.Logger
}

// Microservice owns a service's router, settings, endpoints and lifecycle.
// Domain services embed it.
type Microservice struct {
	name     string
	version  string
	lineage  []string
	settings *settings.Settings
	logger   *logging.Logger
	router   *mux.Router
	proxies  *Pool

	apiMu     sync.RWMutex
	endpoints map[string]Endpoint
	paths     map[string]string

	handlerOnce sync.Once
	handler     http.Handler
	limiter     *middleware.RateLimiter

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	runCtx   context.Context
	cancel   context.CancelFunc

	// Extensibility hooks
	hydrate  func(context.Context) error
	statsFn  func() map[string]any
	onUpdate func(context.Context) error

	// Worker management
	workers []func(context.Context)
	cron    *cron.Cron
	closers []func() error

	// Health tracking
	healthMu        sync.RWMutex
	checks          map[string]func(context.Context) error
	checkResults    map[string]string
	lastHealthCheck time.Time
	startTime       time.Time
}

// New constructs a Microservice and registers its standard routes.
func New(cfg Config) *Microservice {
	lineage := append([]string(nil), cfg.Lineage...)
	if len(lineage) == 0 || lineage[len(lineage)-1] != BaseType {
		lineage = append(lineage, BaseType)
	}
	name := cfg.Name
	if name == "" {
		name = lineage[0]
	}
	if cfg.Settings == nil {
		cfg.Settings = settings.Empty()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault(name)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	m := &Microservice{
		name:         name,
		version:      version,
		lineage:      lineage,
		settings:     cfg.Settings,
		logger:       cfg.Logger,
		router:       mux.NewRouter(),
		endpoints:    make(map[string]Endpoint),
		paths:        make(map[string]string),
		stopCh:       make(chan struct{}),
		checks:       make(map[string]func(context.Context) error),
		checkResults: make(map[string]string),
	}
	m.proxies = NewPool(
		WithServiceID(name),
		WithTimeout(m.SettingDuration("proxy_timeout", 30*time.Second)),
	)
	m.registerStandardRoutes()
	return m
}

func (m *Microservice) Name() string                 { return m.name }
func (m *Microservice) Version() string              { return m.version }
func (m *Microservice) Logger() *logging.Logger      { return m.logger }
func (m *Microservice) Router() *mux.Router          { return m.router }
func (m *Microservice) Settings() *settings.Settings { return m.settings }

// Lineage returns the settings lookup chain.
func (m *Microservice) Lineage() []string {
	return append([]string(nil), m.lineage...)
}

// =============================================================================
// Settings
// =============================================================================

// Setting resolves key along the service lineage.
func (m *Microservice) Setting(key string) gjson.Result {
	return m.settings.Lookup(m.lineage, key)
}

func (m *Microservice) SettingString(key, def string) string {
	return m.settings.String(m.lineage, key, def)
}

func (m *Microservice) SettingInt(key string, def int) int {
	return m.settings.Int(m.lineage, key, def)
}

func (m *Microservice) SettingBool(key string, def bool) bool {
	return m.settings.Bool(m.lineage, key, def)
}

func (m *Microservice) SettingDuration(key string, def time.Duration) time.Duration {
	return m.settings.Duration(m.lineage, key, def)
}

func (m *Microservice) SettingStrings(key string) []string {
	return m.settings.Strings(m.lineage, key)
}

// ListenAddr builds the listen address from the "host" and "port" settings.
func (m *Microservice) ListenAddr(defaultPort int) string {
	return fmt.Sprintf("%s:%d", m.SettingString("host", ""), m.SettingInt("port", defaultPort))
}

// =============================================================================
// Endpoints
// =============================================================================

// Register mounts endpoints on the router and adds them to the API
// description.
func (m *Microservice) Register(eps ...Endpoint) error {
	m.apiMu.Lock()
	defer m.apiMu.Unlock()

	for _, raw := range eps {
		ep, err := raw.normalize()
		if err != nil {
			return err
		}
		if _, dup := m.endpoints[ep.Name]; dup {
			return fmt.Errorf("endpoint %q already registered", ep.Name)
		}
		if owner, dup := m.paths[ep.Path]; dup {
			return fmt.Errorf("endpoint %q: path %s already used by %q", ep.Name, ep.Path, owner)
		}
		m.endpoints[ep.Name] = ep
		m.paths[ep.Path] = ep.Name
		m.router.HandleFunc(ep.Path, m.dispatch(ep)).Methods(ep.Methods...)
	}
	return nil
}

// MustRegister is Register for endpoint tables fixed at compile time.
func (m *Microservice) MustRegister(eps ...Endpoint) {
	if err := m.Register(eps...); err != nil {
		panic(err)
	}
}

// API returns the service's API description.
func (m *Microservice) API() API {
	m.apiMu.RLock()
	defer m.apiMu.RUnlock()

	api := make(API, len(m.endpoints))
	for name, ep := range m.endpoints {
		api[name] = ep.Info()
	}
	return api
}

// =============================================================================
// Proxies
// =============================================================================

// Proxy returns the shared proxy for a peer service.
func (m *Microservice) Proxy(baseURL string) *Proxy {
	return m.proxies.Get(baseURL)
}

// PeerProxy returns a proxy for the peer whose URL is stored under the given
// settings key.
func (m *Microservice) PeerProxy(key string) (*Proxy, error) {
	url := m.SettingString(key, "")
	if url == "" {
		return nil, fmt.Errorf("setting %q is required", key)
	}
	return m.Proxy(url), nil
}

// =============================================================================
// HTTP
// =============================================================================

// Handler returns the router wrapped in the standard middleware chain.
func (m *Microservice) Handler() http.Handler {
	m.handlerOnce.Do(func() {
		m.router.Use(middleware.LoggingMiddleware(m.logger), middleware.MetricsMiddleware(m.name))

		var h http.Handler = m.router
		if rps := m.SettingInt("rate_limit", 0); rps > 0 {
			m.limiter = middleware.NewRateLimiter(rps, m.SettingInt("rate_burst", rps), m.logger)
			m.limiter.StartCleanup(limiterCleanup, m.stopCh)
			h = m.limiter.Handler(h)
		}
		if origins := m.SettingStrings("cors_origins"); len(origins) > 0 {
			h = middleware.NewCORSMiddleware(origins).Handler(h)
		}
		m.handler = middleware.RecoveryMiddleware(m.logger)(h)
	})
	return m.handler
}

// Run starts the service, serves HTTP on addr until ctx is done, then shuts
// down gracefully.
func (m *Microservice) Run(ctx context.Context, addr string) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		m.logger.WithFields(map[string]interface{}{"addr": addr, "version": m.version}).Info("service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// WithHydrate sets an optional hook executed during Start, before workers
// are launched. Use it for loading persistent state.
func (m *Microservice) WithHydrate(fn func(context.Context) error) *Microservice {
	m.hydrate = fn
	return m
}

// WithStats sets a statistics provider for the /info endpoint.
func (m *Microservice) WithStats(fn func() map[string]any) *Microservice {
	m.statsFn = fn
	return m
}

// OnUpdate sets the hook run after a verified GitHub push notification.
func (m *Microservice) OnUpdate(fn func(context.Context) error) *Microservice {
	m.onUpdate = fn
	return m
}

// AddHealthCheck registers a dependency probe reported by /health.
func (m *Microservice) AddHealthCheck(name string, fn func(context.Context) error) *Microservice {
	m.healthMu.Lock()
	m.checks[name] = fn
	m.healthMu.Unlock()
	return m
}

// AddWorker registers a background worker started after hydrate completes.
// Workers should return when their context is cancelled.
func (m *Microservice) AddWorker(fn func(context.Context)) *Microservice {
	m.workers = append(m.workers, fn)
	return m
}

// AddTickerWorker registers a worker that runs fn every interval.
func (m *Microservice) AddTickerWorker(interval time.Duration, fn func(context.Context) error) *Microservice {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					m.logger.WithContext(ctx).WithError(err).Warn("worker error")
				}
			}
		}
	}
	m.workers = append(m.workers, worker)
	return m
}

// AddCronWorker schedules fn with a cron spec ("*/5 * * * *", "@every 1m").
// The job receives the service's run context.
func (m *Microservice) AddCronWorker(spec string, fn func(context.Context) error) error {
	if m.cron == nil {
		m.cron = cron.New()
	}
	_, err := m.cron.AddFunc(spec, func() {
		ctx := m.runContext()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithField("schedule", spec).Warn("scheduled job error")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

func (m *Microservice) runContext() context.Context {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	return m.runCtx
}

// AddCloser registers a function run by Stop after workers have been
// signalled, such as closing a database.
func (m *Microservice) AddCloser(fn func() error) *Microservice {
	m.closers = append(m.closers, fn)
	return m
}

// StopChan exposes the stop channel for worker goroutines.
func (m *Microservice) StopChan() <-chan struct{} {
	return m.stopCh
}

// Start runs hydrate once, then launches workers and scheduled jobs.
func (m *Microservice) Start(ctx context.Context) error {
	m.healthMu.Lock()
	if m.startTime.IsZero() {
		m.startTime = time.Now()
	}
	m.healthMu.Unlock()

	if m.hydrate != nil {
		if err := m.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.healthMu.Lock()
	m.runCtx = runCtx
	m.cancel = cancel
	m.healthMu.Unlock()

	for _, w := range m.workers {
		go w(runCtx)
	}
	if m.cron != nil {
		m.cron.Start()
	}
	return nil
}

// Stop signals workers, stops scheduled jobs and runs closers. It is
// idempotent.
func (m *Microservice) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.healthMu.RLock()
		cancel := m.cancel
		m.healthMu.RUnlock()
		if cancel != nil {
			cancel()
		}
		if m.cron != nil {
			<-m.cron.Stop().Done()
		}
		for i := len(m.closers) - 1; i >= 0; i-- {
			if cerr := m.closers[i](); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// WorkerCount returns the number of registered workers.
func (m *Microservice) WorkerCount() int {
	return len(m.workers)
}

// =============================================================================
// Health
// =============================================================================

// CheckHealth runs every registered dependency probe.
func (m *Microservice) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	m.healthMu.RLock()
	checks := make(map[string]func(context.Context) error, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.healthMu.RUnlock()

	results := make(map[string]string, len(checks))
	for name, fn := range checks {
		if err := fn(ctx); err != nil {
			results[name] = err.Error()
		} else {
			results[name] = "ok"
		}
	}

	m.healthMu.Lock()
	m.checkResults = results
	m.lastHealthCheck = time.Now()
	m.healthMu.Unlock()
}

// HealthStatus refreshes the checks and returns "healthy" or "unhealthy".
func (m *Microservice) HealthStatus(ctx context.Context) (string, map[string]string) {
	m.CheckHealth(ctx)

	m.healthMu.RLock()
	defer m.healthMu.RUnlock()

	status := "healthy"
	results := make(map[string]string, len(m.checkResults))
	for name, res := range m.checkResults {
		results[name] = res
		if res != "ok" {
			status = "unhealthy"
		}
	}
	return status, results
}

// Uptime returns the time since Start.
func (m *Microservice) Uptime() time.Duration {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}
