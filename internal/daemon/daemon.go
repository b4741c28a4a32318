// Package daemon runs turnstyled: an HTTP front whose listeners are handed off
// on every configuration reload and whose requests can be paced through an
// admission turnstyle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quintans/go-turnstyle/admission"
	"github.com/quintans/go-turnstyle/config"
	"github.com/quintans/go-turnstyle/handoff"
	"github.com/quintans/go-turnstyle/pacer"
	"github.com/quintans/go-turnstyle/turnstyle"
)

type Option func(*Daemon)

func WithLogger(logger turnstyle.Logger) Option {
	return func(d *Daemon) {
		d.logger = logger
	}
}

// WithHandler sets the application handler. Defaults to a handler answering "ok".
func WithHandler(handler http.Handler) Option {
	return func(d *Daemon) {
		d.app = handler
	}
}

// stage is the admission setup of one configuration.
type stage struct {
	gate    *turnstyle.Turnstyle
	handler http.Handler
	cancel  context.CancelFunc
	done    chan struct{}
}

// close stops pacing and lets every request still in line through.
func (s *stage) close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.gate.Close()
}

type Daemon struct {
	path     string
	logger   turnstyle.Logger
	app      http.Handler
	registry *prometheus.Registry
	gateStat *turnstyle.Metrics
	handoff  *handoff.Handoff
	metrics  string

	handler atomic.Pointer[http.Handler]

	mu    sync.Mutex
	stage *stage
}

// New loads the configuration at path and prepares the daemon.
// Listener settings that cannot change on reload (shutdown timeout, metrics
// address) are taken from this first load.
func New(path string, options ...Option) (*Daemon, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		path:     path,
		logger:   turnstyle.StdLogger(),
		app:      http.HandlerFunc(answerOK),
		registry: prometheus.NewRegistry(),
		gateStat: turnstyle.NewMetrics("admission"),
		metrics:  cfg.Metrics,
	}
	for _, o := range options {
		o(d)
	}

	handoffStat := turnstyle.NewMetrics("handoff")
	for _, m := range []*turnstyle.Metrics{d.gateStat, handoffStat} {
		if err := m.Register(d.registry); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	d.handoff = handoff.New(
		http.HandlerFunc(d.serveHTTP),
		handoff.WithLogger(d.logger),
		handoff.WithShutdownTimeout(cfg.ShutdownTimeout),
		handoff.WithGateOptions(turnstyle.WithLogger(d.logger), turnstyle.WithMetrics(handoffStat)),
	)

	return d, nil
}

func answerOK(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "ok\n")
}

func (d *Daemon) serveHTTP(w http.ResponseWriter, r *http.Request) {
	h := d.handler.Load()
	if h == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	(*h).ServeHTTP(w, r)
}

// Registry returns the registry holding the daemon metrics.
func (d *Daemon) Registry() *prometheus.Registry {
	return d.registry
}

// Addrs returns the addresses currently served.
func (d *Daemon) Addrs() []string {
	return d.handoff.Addrs()
}

// Run serves until ctx is done, reloading the configuration on SIGHUP and
// whenever the configuration file is written.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.shutdown()

	if err := d.Reload(ctx); err != nil {
		return err
	}

	if d.metrics != "" {
		srv := d.serveMetrics()
		defer srv.Close()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	defer watcher.Close()
	// editors often replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("turnstyled stopping")
			return nil
		case <-hup:
			d.reload(ctx, "SIGHUP")
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(d.path) && ev.Has(fsnotify.Write|fsnotify.Create) {
				d.reload(ctx, "config change")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("config watcher: %v", err)
		}
	}
}

func (d *Daemon) reload(ctx context.Context, reason string) {
	d.logger.Info("reloading on %s", reason)
	if err := d.Reload(ctx); err != nil {
		d.logger.Error("failed to reload: %v", err)
	}
}

// Reload reads the configuration file again and applies it. On failure the
// running configuration is kept.
func (d *Daemon) Reload(ctx context.Context) error {
	cfg, err := config.Load(d.path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.newStage(cfg.Admission)
	if err != nil {
		return err
	}
	previous := d.stage
	d.stage = next
	d.handler.Store(&next.handler)

	if err := d.handoff.Reload(ctx, cfg.Listen); err != nil {
		d.stage = previous
		if previous != nil {
			d.handler.Store(&previous.handler)
		} else {
			d.handler.Store(nil)
		}
		next.close()
		return err
	}

	if previous != nil {
		previous.close()
	}
	return nil
}

func (d *Daemon) newStage(cfg config.Admission) (*stage, error) {
	s := &stage{
		gate:    turnstyle.New(turnstyle.WithLogger(d.logger), turnstyle.WithMetrics(d.gateStat)),
		handler: d.app,
	}
	if !cfg.Enabled() {
		return s, nil
	}

	trig, err := cfg.Trigger()
	if err != nil {
		s.gate.Close()
		return nil, err
	}
	s.handler = admission.Middleware(s.gate, admission.WithLogger(d.logger))(d.app)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	p := pacer.New(s.gate, trig, pacer.WithLogger(d.logger))
	go func() {
		defer close(s.done)
		if err := p.Run(ctx); err != nil {
			d.logger.Error("admission pacer stopped: %v", err)
		}
	}()

	return s, nil
}

func (d *Daemon) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: d.metrics, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server: %v", err)
		}
	}()
	return srv
}

// shutdown lets queued requests through before draining the listeners.
func (d *Daemon) shutdown() {
	d.mu.Lock()
	if d.stage != nil {
		d.stage.close()
	}
	d.mu.Unlock()

	d.handoff.Close()
}
