// Package api exposes the node's HTTP surface: the IS-05 Connection API,
// the read-only IS-04 Node API, health probes and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/config"
	"github.com/ManuGH/aes67-nmos/internal/connection"
	"github.com/ManuGH/aes67-nmos/internal/log"
	"github.com/ManuGH/aes67-nmos/internal/metrics"
	"github.com/ManuGH/aes67-nmos/internal/netutil"
	"github.com/ManuGH/aes67-nmos/internal/nmos"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxPatchBytes     = 1 << 20
)

// Controller is the slice of the connection controller the API drives.
type Controller interface {
	Snapshot() connection.ReceiverState
	UpdateStaged(patch []byte) (connection.ReceiverState, error)
	Activate(ctx context.Context) (string, error)
	SinkActive() bool
}

// PTPSource reads the daemon PTP status for the Node API clock declaration.
type PTPSource interface {
	PTPStatus(ctx context.Context) (map[string]any, error)
}

// Server serves the NMOS APIs for the single receiver.
type Server struct {
	cfg        config.AppConfig
	identity   nmos.Identity
	controller Controller
	ptp        PTPSource
	logger     zerolog.Logger

	advertiseIP func() string
	sysNet      string
}

// ServerOption adjusts server construction, mainly for tests.
type ServerOption func(*Server)

// WithAdvertiseIP overrides advertise address detection in Node API resources.
func WithAdvertiseIP(fn func() string) ServerOption {
	return func(s *Server) { s.advertiseIP = fn }
}

// WithSysNet overrides the sysfs root used for interface detection.
func WithSysNet(root string) ServerOption {
	return func(s *Server) { s.sysNet = root }
}

// NewServer wires the HTTP surface.
func NewServer(cfg config.AppConfig, identity nmos.Identity, controller Controller, ptp PTPSource, opts ...ServerOption) *Server {
	s := &Server{
		cfg:        cfg,
		identity:   identity,
		controller: controller,
		ptp:        ptp,
		logger:     log.WithComponent("api"),
		sysNet:     "/sys/class/net",
	}
	s.advertiseIP = func() string {
		// Prefer the address the kernel would use to reach a configured
		// registry so controllers get a reachable endpoint back.
		var registryURL string
		if len(cfg.Registry.StaticURLs) > 0 {
			registryURL = cfg.Registry.StaticURLs[0]
		}
		return netutil.AdvertiseIP(registryURL, nil)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.StripSlashes)
	r.Use(s.observe)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Get("/health/live", s.handleHealth)
	r.Get("/health/ready", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.registerConnectionRoutes(r)
	s.registerNodeRoutes(r)
	return r
}

// Run serves until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "http.listen").
			Str("addr", srv.Addr).
			Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// observe logs each request and counts it by method and status class.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		class := fmt.Sprintf("%dxx", ww.Status()/100)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, class).Inc()
		s.logger.Debug().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int(log.FieldStatus, ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// builder assembles the IS-04 resource builder from live host facts.
func (s *Server) builder() nmos.ResourceBuilder {
	ifaceName := s.cfg.InterfaceName
	if ifaceName == "" {
		ifaceName = netutil.PrimaryInterface(s.sysNet)
	}
	return nmos.ResourceBuilder{
		Identity:           s.identity,
		NodeLabel:          s.cfg.NodeFriendlyName,
		DeviceLabel:        s.cfg.DeviceFriendlyName,
		ReceiverLabel:      s.cfg.ReceiverFriendlyName,
		APIHost:            s.advertiseIP(),
		APIPort:            s.cfg.HTTPPort,
		InterfaceName:      ifaceName,
		PortID:             netutil.InterfaceMAC(s.sysNet, ifaceName),
		NodeVersions:       config.SupportedNodeVersions,
		ConnectionVersions: s.cfg.Registry.Versions,
	}
}
