// ABOUTME: Entry point for the Sendspin player CLI
// ABOUTME: Parses flags, discovers a server and runs synchronized playback
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-go/internal/config"
	"github.com/Sendspin/sendspin-go/internal/discovery"
	"github.com/Sendspin/sendspin-go/internal/metrics"
	"github.com/Sendspin/sendspin-go/pkg/protocol"
	"github.com/Sendspin/sendspin-go/pkg/sendspin"
	flag "github.com/spf13/pflag"
)

// Exit codes for the CLI driver.
const (
	exitOK               = 0
	exitBadConfig        = 64
	exitTransportUnavail = 69
	exitProtocolError    = 70
	exitCodecError       = 75
)

var (
	serverAddr  = flag.String("server", "", "Server address host:port (skip mDNS discovery)")
	name        = flag.String("name", "", "Player friendly name (default: hostname-sendspin-player)")
	volume      = flag.Float64("volume", 1.0, "Initial volume 0..1")
	logFile     = flag.String("log-file", "sendspin-player.log", "Log file path")
	quiet       = flag.BoolP("quiet", "q", false, "Log to file only, not stdout")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty: disabled)")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	_ = config.Load()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		return exitBadConfig
	}
	defer func() { _ = f.Close() }()

	if *quiet {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-sendspin-player", hostname)
	}

	endpoint := *serverAddr
	if endpoint == "" {
		endpoint = config.GetEnv(config.EnvEndpoint, "")
	}
	if endpoint == "" {
		log.Printf("No server given, browsing mDNS...")
		found, err := discoverServer(10 * time.Second)
		if err != nil {
			log.Printf("Discovery failed: %v", err)
			return exitTransportUnavail
		}
		endpoint = found
	}

	if *volume < 0 || *volume > 1 {
		log.Printf("Volume must be within 0..1, got %f", *volume)
		return exitBadConfig
	}

	player, err := sendspin.NewPlayer(sendspin.PlayerConfig{
		Endpoint:   endpoint,
		PlayerName: playerName,
		Volume:     *volume,
		OnMetadata: func(m sendspin.Metadata) {
			log.Printf("Now playing: %s — %s (%s)", m.Artist, m.Title, m.Album)
		},
	})
	if err != nil {
		log.Printf("Invalid configuration: %v", err)
		return exitBadConfig
	}

	log.Printf("Starting Sendspin Player: %s -> %s", playerName, endpoint)

	if err := player.Connect(); err != nil {
		log.Printf("Connect failed: %v", err)
		return classifyExit(err, exitTransportUnavail)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, player)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Printf("Interrupted, shutting down")
		player.Close()
		return exitOK
	case <-player.Done():
		if err := player.Err(); err != nil {
			log.Printf("Session ended: %v", err)
			return classifyExit(err, exitProtocolError)
		}
		return exitOK
	}
}

// classifyExit maps a session error to the documented exit codes.
func classifyExit(err error, fallback int) int {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return fallback
	}
	switch perr.Kind {
	case protocol.KindTransport:
		return exitTransportUnavail
	case protocol.KindCodec:
		return exitCodecError
	case protocol.KindProtocol, protocol.KindHandshake, protocol.KindTimeout, protocol.KindClock:
		return exitProtocolError
	}
	return fallback
}

// serveMetrics exposes playback counters on /metrics, refreshed from the
// player's stats once a second.
func serveMetrics(addr string, player *sendspin.Player) {
	met := metrics.New()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		var lastMissed, lastAccepted, lastRejected int64
		for {
			select {
			case <-ticker.C:
				stats := player.Stats()
				met.SchedulerMiss(stats.Scheduler.Missed - lastMissed)
				lastMissed = stats.Scheduler.Missed
				for ; lastAccepted < stats.SyncAccepted; lastAccepted++ {
					met.SyncSample(true)
				}
				for ; lastRejected < stats.SyncRejected; lastRejected++ {
					met.SyncSample(false)
				}
				met.SetClockStats(stats.SyncOffset, stats.SyncRTT)
			case <-player.Done():
				return
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	log.Printf("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server failed: %v", err)
	}
}

// discoverServer browses mDNS until a server appears or the timeout passes.
func discoverServer(timeout time.Duration) (string, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()
	mgr.Browse()

	select {
	case server := <-mgr.Servers():
		return server.Addr(), nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no server found within %v", timeout)
	}
}
