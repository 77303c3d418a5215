package audio

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoop writes an executable that ignores its flags and sleeps.
func fakeLoop(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}
	path := filepath.Join(t.TempDir(), "fakeloop")
	script := "#!/bin/sh\nsleep 60\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) // #nosec G306
	return path
}

func TestEnsureRunningSpawnsOnce(t *testing.T) {
	l := NewLoop("hw:2,0", "hw:1,0", 50, WithLoopBinary(fakeLoop(t)))
	t.Cleanup(l.Stop)

	require.NoError(t, l.EnsureRunning())
	require.True(t, l.Running())
	first := l.cmd.Process.Pid

	// Re-entrant call must not spawn a second child.
	require.NoError(t, l.EnsureRunning())
	assert.Equal(t, first, l.cmd.Process.Pid)
}

func TestStopTerminatesChild(t *testing.T) {
	l := NewLoop("hw:2,0", "hw:1,0", 50, WithLoopBinary(fakeLoop(t)))
	require.NoError(t, l.EnsureRunning())
	require.True(t, l.Running())

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, l.Running())

	// Stop is idempotent.
	l.Stop()
}

func TestEnsureRunningRespawnsAfterExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}
	path := filepath.Join(t.TempDir(), "fastexit")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755)) // #nosec G306

	l := NewLoop("hw:2,0", "hw:1,0", 50, WithLoopBinary(path))
	require.NoError(t, l.EnsureRunning())

	// Wait for the child to exit, then confirm a respawn happens.
	require.Eventually(t, func() bool { return !l.Running() }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, l.EnsureRunning())
	t.Cleanup(l.Stop)
}

func TestMissingLoopBinaryIsTolerated(t *testing.T) {
	l := NewLoop("hw:2,0", "hw:1,0", 50, WithLoopBinary("definitely-not-installed-binary"))
	require.NoError(t, l.EnsureRunning())
	assert.False(t, l.Running())
}

func TestMixerMissingBinaryIsTolerated(t *testing.T) {
	m := NewMixer("1", []string{"Master"}, WithMixerBinary("definitely-not-installed-binary"))
	// Must not panic or error.
	m.SetVolume(50)
	m.SetMute(true)
}

func TestMixerInvokesEachControl(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}
	dir := t.TempDir()
	outFile := filepath.Join(dir, "calls.txt")
	binary := filepath.Join(dir, "fakemixer")
	script := "#!/bin/sh\necho \"$@\" >> " + outFile + "\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755)) // #nosec G306

	m := NewMixer("1", []string{"DAC LEFT LINEOUT", "DAC RIGHT LINEOUT"}, WithMixerBinary(binary))
	m.SetVolume(150) // clamps to 100
	m.SetMute(true)

	raw, err := os.ReadFile(outFile)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "-c 1 set DAC LEFT LINEOUT 100%")
	assert.Contains(t, out, "-c 1 set DAC RIGHT LINEOUT 100%")
	assert.Contains(t, out, "-c 1 set DAC LEFT LINEOUT mute")
}

func TestMixerNonZeroExitIsLoggedNotFatal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}
	binary := filepath.Join(t.TempDir(), "failmixer")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\nexit 1\n"), 0o755)) // #nosec G306

	m := NewMixer("1", []string{"Master"}, WithMixerBinary(binary))
	m.SetVolume(30) // must not panic
}
