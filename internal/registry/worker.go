package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/config"
	"github.com/ManuGH/aes67-nmos/internal/log"
	"github.com/ManuGH/aes67-nmos/internal/metrics"
	"github.com/ManuGH/aes67-nmos/internal/netutil"
	"github.com/ManuGH/aes67-nmos/internal/nmos"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// PTPSource reads the daemon's PTP status for the Node clock declaration.
type PTPSource interface {
	PTPStatus(ctx context.Context) (map[string]any, error)
}

// SinkActivity reports whether the receiver currently drives a daemon sink,
// mirrored into Receiver.subscription.active at registration time.
type SinkActivity interface {
	SinkActive() bool
}

// Worker drives the IS-04 registration lifecycle: discover a registry,
// register Node/Device/Receiver, then heartbeat until the registry forgets
// us or the worker is stopped.
type Worker struct {
	cfg      config.AppConfig
	identity nmos.Identity
	ptp      PTPSource
	activity SinkActivity
	client   *http.Client
	logger   zerolog.Logger

	browse      BrowseFunc
	advertiseIP func(registryURL string) string
	sysNet      string

	mu         sync.Mutex
	endpoint   *Endpoint
	registered bool
}

// Option adjusts worker construction, mainly for tests.
type Option func(*Worker)

// WithBrowser overrides DNS-SD discovery.
func WithBrowser(browse BrowseFunc) Option {
	return func(w *Worker) { w.browse = browse }
}

// WithAdvertiseIP overrides advertise address detection.
func WithAdvertiseIP(fn func(registryURL string) string) Option {
	return func(w *Worker) { w.advertiseIP = fn }
}

// WithSysNet overrides the sysfs root used for interface detection.
func WithSysNet(root string) Option {
	return func(w *Worker) { w.sysNet = root }
}

// NewWorker builds a registration worker. ptp and activity may not be nil.
func NewWorker(cfg config.AppConfig, identity nmos.Identity, ptp PTPSource, activity SinkActivity, opts ...Option) *Worker {
	w := &Worker{
		cfg:      cfg,
		identity: identity,
		ptp:      ptp,
		activity: activity,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   log.WithComponent("registry"),
		browse:   BrowseDNSSD,
		advertiseIP: func(registryURL string) string {
			return netutil.AdvertiseIP(registryURL, nil)
		},
		sysNet: "/sys/class/net",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loops until ctx is cancelled, then deletes the registered resources
// best-effort within a bounded timeout.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Str("event", "worker.start").
		Str("discovery", w.cfg.DescribeDiscovery()).
		Msg("registration worker started")

	ticker := time.NewTicker(w.cfg.Registry.HeartbeatPeriod())
	defer ticker.Stop()

	for {
		if err := w.tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn().Err(err).Str("event", "worker.tick_failed").Msg("registration tick failed")
		}
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	w.mu.Lock()
	endpoint := w.endpoint
	registered := w.registered
	w.mu.Unlock()

	if endpoint == nil {
		found, err := w.discover(ctx)
		if err != nil {
			return err
		}
		if found == nil {
			w.logger.Debug().Str("event", "registry.none").Msg("no registry discovered yet")
			return nil
		}
		w.logger.Info().
			Str("event", "registry.selected").
			Str(log.FieldRegistryURL, found.URL).
			Msg("using registry")
		w.mu.Lock()
		w.endpoint = found
		w.registered = false
		w.mu.Unlock()
		endpoint = found
		registered = false
	}

	if !registered {
		return w.register(ctx, endpoint)
	}
	return w.heartbeat(ctx, endpoint)
}

func (w *Worker) discover(ctx context.Context) (*Endpoint, error) {
	reg := w.cfg.Registry
	if reg.Mode == "static" && len(reg.StaticURLs) > 0 {
		return &Endpoint{URL: reg.StaticURLs[0]}, nil
	}

	endpoint, err := w.browse(ctx, reg.BrowseTimeout())
	if err != nil {
		w.logger.Warn().Err(err).Str("event", "registry.browse_failed").Msg("DNS-SD browse failed")
	}
	if endpoint != nil {
		return endpoint, nil
	}

	if len(reg.StaticURLs) > 0 {
		w.logger.Info().Str("event", "registry.static_fallback").Msg("falling back to static registry list")
		return &Endpoint{URL: reg.StaticURLs[0]}, nil
	}
	return nil, nil
}

func (w *Worker) builder(registryURL string) nmos.ResourceBuilder {
	ifaceName := w.cfg.InterfaceName
	if ifaceName == "" {
		ifaceName = netutil.PrimaryInterface(w.sysNet)
	}
	return nmos.ResourceBuilder{
		Identity:           w.identity,
		NodeLabel:          w.cfg.NodeFriendlyName,
		DeviceLabel:        w.cfg.DeviceFriendlyName,
		ReceiverLabel:      w.cfg.ReceiverFriendlyName,
		APIHost:            w.advertiseIP(registryURL),
		APIPort:            w.cfg.HTTPPort,
		InterfaceName:      ifaceName,
		PortID:             netutil.InterfaceMAC(w.sysNet, ifaceName),
		NodeVersions:       config.SupportedNodeVersions,
		ConnectionVersions: w.cfg.Registry.Versions,
	}
}

func (w *Worker) register(ctx context.Context, endpoint *Endpoint) error {
	// Clock state is advisory; an unreachable daemon yields an unlocked clock.
	ptpStatus, err := w.ptp.PTPStatus(ctx)
	if err != nil {
		ptpStatus = nil
	}
	b := w.builder(endpoint.URL)

	resources := []struct {
		kind string
		id   string
		data any
	}{
		{"node", w.identity.NodeID, b.Node(nmos.ClockFromPTP(ptpStatus))},
		{"device", w.identity.DeviceID, b.Device()},
		{"receiver", w.identity.ReceiverID, b.Receiver(w.activity.SinkActive())},
	}
	for _, r := range resources {
		if err := w.upsertResource(ctx, endpoint, r.kind, r.id, r.data); err != nil {
			return fmt.Errorf("register %s: %w", r.kind, err)
		}
	}

	w.mu.Lock()
	w.registered = true
	w.mu.Unlock()
	metrics.SetRegistered(true)
	w.logger.Info().
		Str("event", "registry.registered").
		Str(log.FieldNodeID, w.identity.NodeID).
		Str(log.FieldDeviceID, w.identity.DeviceID).
		Str(log.FieldReceiverID, w.identity.ReceiverID).
		Msg("resources registered")
	return nil
}

// upsertResource POSTs one resource envelope. A 409 means the registry
// already holds the resource; delete and re-create, which also bumps the
// stored version.
func (w *Worker) upsertResource(ctx context.Context, endpoint *Endpoint, kind, id string, data any) error {
	envelope := map[string]any{"type": kind, "data": data}
	status, body, err := w.postJSON(ctx, endpoint.URL+"/resource", envelope)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted:
		return nil
	case status == http.StatusConflict:
		w.logger.Info().
			Str("event", "registry.conflict").
			Str(log.FieldResource, kind).
			Str("id", id).
			Msg("resource already present; deleting then re-registering")
		if err := w.deleteResource(ctx, endpoint, kind, id); err != nil {
			return err
		}
		status, body, err = w.postJSON(ctx, endpoint.URL+"/resource", envelope)
		if err != nil {
			return err
		}
		if status == http.StatusOK || status == http.StatusCreated || status == http.StatusAccepted {
			return nil
		}
		return fmt.Errorf("re-register %s after conflict: status %d: %s", kind, status, body)
	default:
		return fmt.Errorf("register %s: status %d: %s", kind, status, body)
	}
}

func (w *Worker) deleteResource(ctx context.Context, endpoint *Endpoint, kind, id string) error {
	// The registration API addresses resources by the envelope's singular
	// type, not the query API's plural collection name.
	url := fmt.Sprintf("%s/resource/%s/%s", endpoint.URL, kind, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("delete %s %s: status %d", kind, id, resp.StatusCode)
	}
}

func (w *Worker) heartbeat(ctx context.Context, endpoint *Endpoint) error {
	url := fmt.Sprintf("%s/health/nodes/%s", endpoint.URL, w.identity.NodeID)
	status, body, err := w.postJSON(ctx, url, map[string]any{})
	if err != nil {
		metrics.IncHeartbeat("error")
		return fmt.Errorf("heartbeat: %w", err)
	}
	switch {
	case status == http.StatusNotFound:
		// The registry garbage-collected our node. Rediscover and re-register.
		metrics.IncHeartbeat("lost")
		metrics.SetRegistered(false)
		w.logger.Info().
			Str("event", "registry.lost").
			Str(log.FieldNodeID, w.identity.NodeID).
			Msg("registry lost our node; re-registering soon")
		w.mu.Lock()
		w.endpoint = nil
		w.registered = false
		w.mu.Unlock()
		return nil
	case status >= 200 && status < 300:
		metrics.IncHeartbeat("ok")
		return nil
	default:
		metrics.IncHeartbeat("error")
		return fmt.Errorf("heartbeat: status %d: %s", status, body)
	}
}

// shutdown removes our resources so controllers do not see a stale node.
// Child resources go first; failures are logged, not fatal.
func (w *Worker) shutdown() {
	w.mu.Lock()
	endpoint := w.endpoint
	registered := w.registered
	w.registered = false
	w.mu.Unlock()
	metrics.SetRegistered(false)

	if endpoint == nil || !registered {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, r := range []struct{ kind, id string }{
		{"receiver", w.identity.ReceiverID},
		{"device", w.identity.DeviceID},
		{"node", w.identity.NodeID},
	} {
		if err := w.deleteResource(ctx, endpoint, r.kind, r.id); err != nil {
			w.logger.Warn().Err(err).
				Str("event", "registry.cleanup_failed").
				Str(log.FieldResource, r.kind).
				Msg("failed to delete resource on shutdown")
		}
	}
	w.logger.Info().Str("event", "registry.deregistered").Msg("resources removed from registry")
}

// Registered reports whether the node is currently registered.
func (w *Worker) Registered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.registered
}

func (w *Worker) postJSON(ctx context.Context, url string, payload any) (int, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close() //nolint:errcheck
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}
