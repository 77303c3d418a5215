// Command aes67-nmos runs the NMOS IS-04/IS-05 wrapper around a local
// aes67-linux-daemon: it registers the node with a registry, serves the
// Connection and Node APIs and drives the daemon sink plus ALSA bridge
// on activation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/aes67-nmos/internal/aes67d"
	"github.com/ManuGH/aes67-nmos/internal/api"
	"github.com/ManuGH/aes67-nmos/internal/audio"
	"github.com/ManuGH/aes67-nmos/internal/config"
	"github.com/ManuGH/aes67-nmos/internal/connection"
	xlog "github.com/ManuGH/aes67-nmos/internal/log"
	"github.com/ManuGH/aes67-nmos/internal/monitor"
	"github.com/ManuGH/aes67-nmos/internal/nmos"
	"github.com/ManuGH/aes67-nmos/internal/registry"
	"github.com/ManuGH/aes67-nmos/internal/store"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil && !errors.Is(err, context.Canceled) {
		logger := xlog.L()
		logger.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	xlog.Configure(xlog.Config{Service: "aes67-nmos", Version: version})
	logger := xlog.WithComponent("main")
	logger.Info().
		Str("event", "startup").
		Str(xlog.FieldBaseURL, cfg.Daemon.BaseURL).
		Int(xlog.FieldSinkID, cfg.Daemon.SinkID).
		Int("http_port", cfg.HTTPPort).
		Str("state_file", cfg.StateFile).
		Msg("configuration loaded")

	st, err := store.New(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	identity, err := ensureIdentity(st)
	if err != nil {
		return fmt.Errorf("ensure identity: %w", err)
	}
	logger.Info().
		Str("event", "identity").
		Str(xlog.FieldNodeID, identity.NodeID).
		Str(xlog.FieldDeviceID, identity.DeviceID).
		Str(xlog.FieldReceiverID, identity.ReceiverID).
		Msg("node identity ready")

	daemon := aes67d.New(cfg.Daemon.BaseURL, cfg.Daemon.SinkID)
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 3*time.Second)
	if _, err := daemon.Config(probeCtx); err != nil {
		logger.Warn().Err(err).Str("event", "daemon_probe").Msg("daemon not reachable yet, continuing")
	}
	cancelProbe()

	loop := audio.NewLoop(cfg.Audio.CaptureDevice, cfg.Audio.PlaybackDevice, cfg.Audio.AlsaloopBufferMS)
	mixer := audio.NewMixer(cfg.Audio.MixerCard, cfg.Audio.MixerControls)

	controller, err := connection.NewController(st, daemon, loop, mixer, cfg.NodeFriendlyName, cfg.Audio.DefaultVolume)
	if err != nil {
		return fmt.Errorf("init connection controller: %w", err)
	}

	worker := registry.NewWorker(cfg, identity, daemon, controller)
	mon := monitor.New(daemon, cfg.Daemon.PollPeriod())
	server := api.NewServer(cfg, identity, controller, daemon)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error { return mon.Run(ctx) })

	err = g.Wait()
	// The bridge outlives activations; kill it on the way out.
	loop.Stop()
	logger.Info().Str("event", "shutdown").Msg("node stopped")
	return err
}

// ensureIdentity mints (or reloads) the stable resource UUIDs.
func ensureIdentity(st *store.Store) (nmos.Identity, error) {
	var identity nmos.Identity
	for _, slot := range []struct {
		name string
		dst  *string
	}{
		{"node_id", &identity.NodeID},
		{"device_id", &identity.DeviceID},
		{"receiver_id", &identity.ReceiverID},
	} {
		id, err := st.GetOrCreateUUID(slot.name)
		if err != nil {
			return nmos.Identity{}, err
		}
		*slot.dst = id
	}
	return identity, nil
}
