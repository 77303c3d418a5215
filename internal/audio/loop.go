// Package audio manages the capture->playback bridge subprocess and the
// mixer controls. The audio path is advisory: a missing binary degrades
// gracefully and never fails an activation.
package audio

import (
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/aes67-nmos/internal/log"
)

// DefaultLoopBinary is the capture->playback bridge executable.
const DefaultLoopBinary = "alsaloop"

// stopGrace is how long Stop waits after SIGTERM before SIGKILL.
const stopGrace = 3 * time.Second

// LoopController owns at most one bridge child process at any time.
type LoopController struct {
	mu             sync.Mutex
	binary         string
	captureDevice  string
	playbackDevice string
	bufferMS       int
	extraArgs      []string

	cmd    *exec.Cmd
	waitCh chan error
	logger zerolog.Logger
}

// LoopOption configures a LoopController.
type LoopOption func(*LoopController)

// WithLoopBinary overrides the bridge executable (used by tests).
func WithLoopBinary(binary string) LoopOption {
	return func(l *LoopController) { l.binary = binary }
}

// WithExtraArgs appends arguments after the standard flag set.
func WithExtraArgs(args ...string) LoopOption {
	return func(l *LoopController) { l.extraArgs = args }
}

// NewLoop creates a controller for the given ALSA devices.
func NewLoop(captureDevice, playbackDevice string, bufferMS int, opts ...LoopOption) *LoopController {
	l := &LoopController{
		binary:         DefaultLoopBinary,
		captureDevice:  captureDevice,
		playbackDevice: playbackDevice,
		bufferMS:       bufferMS,
		logger:         log.WithComponent("alsaloop"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureRunning spawns the bridge process unless one is already alive.
// A missing executable is logged and tolerated.
func (l *LoopController) EnsureRunning() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path, err := exec.LookPath(l.binary)
	if err != nil {
		l.logger.Warn().
			Str("event", "loop.binary_missing").
			Str("binary", l.binary).
			Msg("bridge binary not found; audio will not bridge capture/playback")
		return nil
	}

	if l.cmd != nil {
		select {
		case <-l.waitCh:
			// Previous child exited; reap and respawn below.
			l.cmd = nil
			l.waitCh = nil
		default:
			return nil // still running
		}
	}

	args := []string{
		"-C", l.captureDevice,
		"-P", l.playbackDevice,
		"-t", strconv.Itoa(l.bufferMS),
	}
	args = append(args, l.extraArgs...)

	cmd := exec.Command(path, args...) // #nosec G204 -- binary and devices come from config
	if err := cmd.Start(); err != nil {
		return err
	}
	l.logger.Info().
		Str("event", "loop.started").
		Str("capture", l.captureDevice).
		Str("playback", l.playbackDevice).
		Int("buffer_ms", l.bufferMS).
		Int("pid", cmd.Process.Pid).
		Msg("started audio bridge")

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
		close(waitCh)
	}()
	l.cmd = cmd
	l.waitCh = waitCh
	return nil
}

// Stop terminates the bridge: SIGTERM, wait up to stopGrace, then
// SIGKILL and reap. A controller without a child is a no-op.
func (l *LoopController) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return
	}
	l.logger.Info().
		Str("event", "loop.stopping").
		Int("pid", l.cmd.Process.Pid).
		Msg("stopping audio bridge")

	// ESRCH here means the child already exited; the waitCh drain below
	// reaps it either way.
	_ = l.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-l.waitCh:
	case <-time.After(stopGrace):
		l.logger.Warn().
			Str("event", "loop.kill").
			Msg("bridge did not exit after SIGTERM; killing")
		_ = l.cmd.Process.Kill()
		<-l.waitCh
	}
	l.cmd = nil
	l.waitCh = nil
}

// Running reports whether a bridge child is currently alive.
func (l *LoopController) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return false
	}
	select {
	case <-l.waitCh:
		l.cmd = nil
		l.waitCh = nil
		return false
	default:
		return true
	}
}
