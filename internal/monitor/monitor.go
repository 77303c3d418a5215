// Package monitor polls the aes67-linux-daemon and logs state transitions:
// sink presence, sink_flags changes and PTP status changes. It never acts
// on what it sees; activation logic stays with the connection controller.
package monitor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/aes67d"
	"github.com/ManuGH/aes67-nmos/internal/log"
	"github.com/ManuGH/aes67-nmos/internal/metrics"
)

// DaemonAPI is the slice of the daemon client the monitor reads from.
type DaemonAPI interface {
	SinkID() int
	BaseURL() string
	ListSinks(ctx context.Context) ([]aes67d.Sink, error)
	SinkStatus(ctx context.Context) (map[string]any, error)
	PTPStatus(ctx context.Context) (map[string]any, error)
}

// Failure counts at which a poll failure is worth a log line. Everything in
// between stays silent so a dead daemon does not flood the log.
var warnAt = map[int]bool{1: true, 5: true, 20: true}

// Monitor is the daemon status poll loop.
type Monitor struct {
	daemon DaemonAPI
	period time.Duration
	logger zerolog.Logger

	sinkPresent *bool
	lastFlags   map[string]any
	lastPTP     map[string]any
	failures    int
}

// New builds a monitor polling daemon every period.
func New(daemon DaemonAPI, period time.Duration) *Monitor {
	return &Monitor{
		daemon: daemon,
		period: period,
		logger: log.WithComponent("monitor"),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		m.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	if err := m.pollOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.failures++
		metrics.DaemonPollFailuresTotal.Inc()
		if warnAt[m.failures] {
			m.logger.Warn().Err(err).
				Str("event", "daemon.poll_failed").
				Int("consecutive_failures", m.failures).
				Str(log.FieldBaseURL, m.daemon.BaseURL()).
				Msg("daemon status poll failed")
		}
		return
	}
	if m.failures > 0 {
		m.logger.Info().Str("event", "daemon.poll_recovered").Msg("daemon status poll recovered")
		m.failures = 0
	}
}

func (m *Monitor) pollOnce(ctx context.Context) error {
	sinks, err := m.daemon.ListSinks(ctx)
	if err != nil {
		return err
	}
	present := false
	for _, s := range sinks {
		if s.ID == m.daemon.SinkID() {
			present = true
			break
		}
	}
	if m.sinkPresent == nil || *m.sinkPresent != present {
		m.sinkPresent = &present
		if present {
			m.logger.Info().
				Str("event", "daemon.sink_present").
				Int(log.FieldSinkID, m.daemon.SinkID()).
				Msg("daemon sink is present")
		} else {
			m.logger.Info().
				Str("event", "daemon.sink_absent").
				Int(log.FieldSinkID, m.daemon.SinkID()).
				Msg("daemon sink is not configured yet")
			m.lastFlags = nil
		}
	}

	if present {
		status, err := m.daemon.SinkStatus(ctx)
		if err != nil {
			return err
		}
		flags, _ := status["sink_flags"].(map[string]any)
		if !reflect.DeepEqual(flags, m.lastFlags) {
			m.logger.Info().
				Str("event", "daemon.sink_flags_changed").
				Str("sink_flags", fmt.Sprintf("%v", flags)).
				Msg("daemon sink flags changed")
			m.lastFlags = flags
		}
	}

	ptp, err := m.daemon.PTPStatus(ctx)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(ptp, m.lastPTP) {
		m.logger.Info().
			Str("event", "daemon.ptp_changed").
			Str(log.FieldStatus, fmt.Sprintf("%v", ptp)).
			Msg("daemon PTP status changed")
		m.lastPTP = ptp
	}
	return nil
}
