package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/aes67-nmos/internal/config"
	"github.com/ManuGH/aes67-nmos/internal/nmos"
)

type fakePTP struct {
	status map[string]any
}

func (f *fakePTP) PTPStatus(ctx context.Context) (map[string]any, error) {
	if f.status == nil {
		return nil, context.DeadlineExceeded
	}
	return f.status, nil
}

type fakeActivity struct{ active bool }

func (f *fakeActivity) SinkActive() bool { return f.active }

// mockRegistry records registration traffic and lets tests script
// per-request status codes.
type mockRegistry struct {
	mu       sync.Mutex
	requests []recordedRequest
	conflict map[string]int // resource type -> remaining 409 responses
	notFound bool           // heartbeat returns 404 when set
}

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func (m *mockRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		m.requests = append(m.requests, recordedRequest{r.Method, r.URL.Path, body})

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/resource":
			kind, _ := body["type"].(string)
			if m.conflict[kind] > 0 {
				m.conflict[kind]--
				w.WriteHeader(http.StatusConflict)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodDelete:
			// Registration API deletes address the singular resource type.
			// Anything else is an unknown path, and a scripted conflict only
			// clears once the resource was actually deleted.
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			if len(parts) != 3 || parts[0] != "resource" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			switch parts[1] {
			case "node", "device", "receiver":
				delete(m.conflict, parts[1])
				w.WriteHeader(http.StatusNoContent)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPost: // heartbeat
			if m.notFound {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func (m *mockRegistry) recorded() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *mockRegistry) setNotFound(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notFound = v
}

var testIdentity = nmos.Identity{
	NodeID:     "11111111-1111-4111-8111-111111111111",
	DeviceID:   "22222222-2222-4222-8222-222222222222",
	ReceiverID: "33333333-3333-4333-8333-333333333333",
}

func newTestWorker(t *testing.T, registryURL string, opts ...Option) *Worker {
	t.Helper()
	cfg := config.Defaults()
	cfg.Registry.Mode = "static"
	cfg.Registry.StaticURLs = []string{registryURL}
	cfg.InterfaceName = "eth0"

	base := []Option{
		WithAdvertiseIP(func(string) string { return "192.0.2.15" }),
		WithSysNet(t.TempDir()),
	}
	return NewWorker(cfg, testIdentity, &fakePTP{}, &fakeActivity{}, append(base, opts...)...)
}

func TestRegisterPostsAllResources(t *testing.T) {
	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background()))

	recorded := reg.recorded()
	require.Len(t, recorded, 3)
	for i, kind := range []string{"node", "device", "receiver"} {
		assert.Equal(t, http.MethodPost, recorded[i].method)
		assert.Equal(t, "/resource", recorded[i].path)
		assert.Equal(t, kind, recorded[i].body["type"])
		data, ok := recorded[i].body["data"].(map[string]any)
		require.True(t, ok)
		assert.NotEmpty(t, data["id"])
		assert.Regexp(t, `^[0-9]+:[0-9]+$`, data["version"])
	}
	assert.True(t, w.Registered())
}

func TestRegisterRecoversFromConflict(t *testing.T) {
	reg := &mockRegistry{conflict: map[string]int{"device": 1}}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background()))
	assert.True(t, w.Registered())

	var deleted []string
	for _, r := range reg.recorded() {
		if r.method == http.MethodDelete {
			deleted = append(deleted, r.path)
		}
	}
	require.Len(t, deleted, 1)
	assert.Equal(t, "/resource/device/"+testIdentity.DeviceID, deleted[0])
}

func TestConflictClearsOnlyThroughDelete(t *testing.T) {
	// The registry keeps answering 409 for the node until it sees the
	// DELETE on the singular resource path.
	reg := &mockRegistry{conflict: map[string]int{"node": 10}}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background()))
	assert.True(t, w.Registered())

	var deletes []string
	for _, r := range reg.recorded() {
		if r.method == http.MethodDelete {
			deletes = append(deletes, r.path)
		}
	}
	assert.Equal(t, []string{"/resource/node/" + testIdentity.NodeID}, deletes)
}

func TestHeartbeatAfterRegistration(t *testing.T) {
	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background())) // register
	require.NoError(t, w.tick(context.Background())) // heartbeat

	recorded := reg.recorded()
	last := recorded[len(recorded)-1]
	assert.Equal(t, "/health/nodes/"+testIdentity.NodeID, last.path)
	assert.True(t, w.Registered())
}

func TestHeartbeat404TriggersReRegistration(t *testing.T) {
	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background())) // register

	reg.setNotFound(true)
	require.NoError(t, w.tick(context.Background())) // heartbeat -> 404
	assert.False(t, w.Registered())

	reg.setNotFound(false)
	require.NoError(t, w.tick(context.Background())) // rediscover + re-register
	assert.True(t, w.Registered())

	var posts int
	for _, r := range reg.recorded() {
		if r.method == http.MethodPost && r.path == "/resource" {
			posts++
		}
	}
	assert.Equal(t, 6, posts)
}

func TestHeartbeatServerErrorStaysRegistered(t *testing.T) {
	var heartbeats int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/resource" {
			w.WriteHeader(http.StatusCreated)
			return
		}
		heartbeats++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background()))
	err := w.tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	// Next tick retries the heartbeat against the same registry.
	_ = w.tick(context.Background())
	assert.Equal(t, 2, heartbeats)
	assert.True(t, w.Registered())
}

func TestDiscoveryBrowseFallsBackToStatic(t *testing.T) {
	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Registry.Mode = "dns-sd"
	cfg.Registry.StaticURLs = []string{srv.URL}
	cfg.InterfaceName = "eth0"

	browsed := false
	w := NewWorker(cfg, testIdentity, &fakePTP{}, &fakeActivity{},
		WithAdvertiseIP(func(string) string { return "192.0.2.15" }),
		WithSysNet(t.TempDir()),
		WithBrowser(func(ctx context.Context, timeout time.Duration) (*Endpoint, error) {
			browsed = true
			return nil, nil
		}),
	)

	require.NoError(t, w.tick(context.Background()))
	assert.True(t, browsed)
	assert.True(t, w.Registered())
}

func TestDiscoveryBrowseResult(t *testing.T) {
	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Registry.Mode = "dns-sd"
	cfg.InterfaceName = "eth0"

	w := NewWorker(cfg, testIdentity, &fakePTP{}, &fakeActivity{},
		WithAdvertiseIP(func(string) string { return "192.0.2.15" }),
		WithSysNet(t.TempDir()),
		WithBrowser(func(ctx context.Context, timeout time.Duration) (*Endpoint, error) {
			return &Endpoint{URL: srv.URL}, nil
		}),
	)

	require.NoError(t, w.tick(context.Background()))
	assert.True(t, w.Registered())
}

func TestDiscoveryNothingFound(t *testing.T) {
	cfg := config.Defaults()
	cfg.Registry.Mode = "dns-sd"

	w := NewWorker(cfg, testIdentity, &fakePTP{}, &fakeActivity{},
		WithSysNet(t.TempDir()),
		WithBrowser(func(ctx context.Context, timeout time.Duration) (*Endpoint, error) {
			return nil, nil
		}),
	)

	require.NoError(t, w.tick(context.Background()))
	assert.False(t, w.Registered())
}

func TestShutdownDeletesResources(t *testing.T) {
	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	w := newTestWorker(t, srv.URL)
	require.NoError(t, w.tick(context.Background()))
	w.shutdown()

	var deletes []string
	for _, r := range reg.recorded() {
		if r.method == http.MethodDelete {
			deletes = append(deletes, r.path)
		}
	}
	require.Len(t, deletes, 3)
	assert.Equal(t, "/resource/receiver/"+testIdentity.ReceiverID, deletes[0])
	assert.Equal(t, "/resource/device/"+testIdentity.DeviceID, deletes[1])
	assert.Equal(t, "/resource/node/"+testIdentity.NodeID, deletes[2])
	assert.False(t, w.Registered())
}

func TestShutdownWithoutRegistrationIsNoop(t *testing.T) {
	w := newTestWorker(t, "http://127.0.0.1:1")
	w.shutdown()
	assert.False(t, w.Registered())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := &mockRegistry{}
	srv := httptest.NewServer(reg.handler())
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Registry.Mode = "static"
	cfg.Registry.StaticURLs = []string{srv.URL}
	cfg.Registry.HeartbeatInterval = 0.05
	cfg.InterfaceName = "eth0"

	w := NewWorker(cfg, testIdentity, &fakePTP{}, &fakeActivity{},
		WithAdvertiseIP(func(string) string { return "192.0.2.15" }),
		WithSysNet(t.TempDir()),
	)
	defer w.client.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, w.Registered, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	assert.False(t, w.Registered())
}
