package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/aes67d"
	"github.com/ManuGH/aes67-nmos/internal/log"
	"github.com/ManuGH/aes67-nmos/internal/metrics"
	"github.com/ManuGH/aes67-nmos/internal/store"
)

// StateNamespace is the store namespace holding the receiver state.
const StateNamespace = "receiver_state"

// Activation outcomes reported to the IS-05 caller.
const (
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// SinkClient is the daemon surface the activation transaction needs.
type SinkClient interface {
	UpsertSink(ctx context.Context, payload aes67d.SinkPayload) error
	DeleteSink(ctx context.Context) error
}

// Loop is the audio bridge surface.
type Loop interface {
	EnsureRunning() error
	Stop()
}

// Mixer is the mixer surface.
type Mixer interface {
	SetVolume(percent int)
	SetMute(mute bool)
}

// Controller owns the in-memory ReceiverState and the activation
// transaction. State reads and writes serialize on one mutex; whole
// activations serialize on a second so side effects of two concurrent
// activations never interleave.
type Controller struct {
	mu         sync.Mutex
	activateMu sync.Mutex

	store         *store.Store
	daemon        SinkClient
	loop          Loop
	mixer         Mixer
	streamLabel   string
	defaultVolume int

	state  ReceiverState
	now    func() time.Time
	logger zerolog.Logger
}

// NewController loads persisted state (or initializes defaults on an
// empty store) and wires the activation collaborators.
func NewController(st *store.Store, daemon SinkClient, loop Loop, mixer Mixer, streamLabel string, defaultVolume int) (*Controller, error) {
	c := &Controller{
		store:         st,
		daemon:        daemon,
		loop:          loop,
		mixer:         mixer,
		streamLabel:   streamLabel,
		defaultVolume: defaultVolume,
		now:           time.Now,
		logger:        log.WithComponent("connection"),
	}

	loaded := ReceiverState{}
	if err := st.ReadNamespaceInto(StateNamespace, &loaded); err != nil {
		return nil, err
	}
	if len(loaded.Staged.TransportParams) == 0 {
		// Empty store: staged == active == defaults, sink inactive.
		staged := DefaultStagedState(defaultVolume)
		loaded = ReceiverState{Staged: staged, Active: staged.Clone()}
		if err := st.WriteNamespace(StateNamespace, loaded); err != nil {
			return nil, err
		}
	}
	c.state = loaded
	return c, nil
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() ReceiverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SinkActive reports whether the last committed activation enabled the
// sink. Used by the Node API receiver projection.
func (c *Controller) SinkActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SinkActive
}

// UpdateStaged merges a shallow patch into staged, validates against the
// closed schema, persists and returns the new state.
func (c *Controller) UpdateStaged(patch []byte) (ReceiverState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := ApplyStagedPatch(c.state.Staged, patch, c.defaultVolume)
	if err != nil {
		return ReceiverState{}, err
	}
	c.state.Staged = next
	if err := c.persistLocked(); err != nil {
		return ReceiverState{}, err
	}
	return c.state.Clone(), nil
}

// commitActivation assigns active from staged, stamps last_activated and
// persists. Only the activation transaction calls this.
func (c *Controller) commitActivation(sinkActive bool) (ReceiverState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Active = c.state.Staged.Clone()
	ts := c.now().UTC().Format(time.RFC3339)
	c.state.LastActivated = &ts
	c.state.SinkActive = sinkActive
	if err := c.persistLocked(); err != nil {
		return ReceiverState{}, err
	}
	return c.state.Clone(), nil
}

func (c *Controller) persistLocked() error {
	return c.store.WriteNamespace(StateNamespace, c.state)
}

// Activate runs the immediate-activation transaction: it snapshots
// staged once, applies daemon and audio side effects in order, and
// commits only after the daemon accepted the sink. On daemon failure
// nothing is committed and the prior active state stands.
func (c *Controller) Activate(ctx context.Context) (string, error) {
	c.activateMu.Lock()
	defer c.activateMu.Unlock()

	timer := prometheus.NewTimer(metrics.ActivationDuration)
	defer timer.ObserveDuration()

	staged := c.Snapshot().Staged

	if staged.Activation.Mode != ModeActivateImmediate {
		return "", fmt.Errorf("%w: %q", ErrModeNotImplemented, staged.Activation.Mode)
	}

	if !staged.MasterEnable {
		c.logger.Info().
			Str("event", "activation.disconnect").
			Msg("deactivating receiver: deleting sink and stopping audio bridge")
		if err := c.daemon.DeleteSink(ctx); err != nil {
			metrics.IncActivation("error")
			return "", err
		}
		c.loop.Stop()
		if _, err := c.commitActivation(false); err != nil {
			return "", err
		}
		metrics.IncActivation(StateDisconnected)
		return StateDisconnected, nil
	}

	params := staged.TransportParams[0]
	c.logger.Info().
		Str("event", "activation.connect").
		Str(log.FieldDestination, fmt.Sprintf("%s:%d", params.DestinationIP, params.DestinationPort)).
		Str(log.FieldEncoding, params.EncodingName).
		Int(log.FieldSampleRate, params.SampleRate).
		Msg("activating receiver")

	sdp := BuildSDP(params, c.streamLabel)
	payload := aes67d.SinkPayload{
		UseSDP: true,
		SDP:    sdp,
		Map:    []int{0, 0}, // duplicate the mono channel on both playback legs
		Delay:  0,
	}
	if err := c.daemon.UpsertSink(ctx, payload); err != nil {
		// Do not commit, do not start the loop: the daemon is assumed to
		// have rejected the sink and stayed in its prior state.
		metrics.IncActivation("error")
		return "", err
	}

	// Audio side effects are advisory and never fail the activation.
	if err := c.loop.EnsureRunning(); err != nil {
		c.logger.Warn().Err(err).
			Str("event", "activation.loop_failed").
			Msg("audio bridge failed to start")
	}
	c.mixer.SetVolume(staged.Audio.Volume)
	c.mixer.SetMute(staged.Audio.Mute)

	if _, err := c.commitActivation(true); err != nil {
		return "", err
	}
	metrics.IncActivation(StateConnected)
	return StateConnected, nil
}
