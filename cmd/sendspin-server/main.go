// ABOUTME: Entry point for the Sendspin server CLI
// ABOUTME: Streams a file, playlist or test tone to connected players
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/sendspin-go/internal/config"
	"github.com/Sendspin/sendspin-go/internal/metrics"
	"github.com/Sendspin/sendspin-go/internal/server"
	"github.com/Sendspin/sendspin-go/internal/ui"
	"github.com/Sendspin/sendspin-go/pkg/sendspin"
	flag "github.com/spf13/pflag"
)

var (
	port       = flag.Int("port", 8927, "Port to listen on")
	name       = flag.String("name", "Sendspin Server", "Server name")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, stream logs instead")
	logFile    = flag.String("log-file", "sendspin-server.log", "Log file path")
	sampleRate = flag.Int("sample-rate", 48000, "Tone sample rate when no files are given")
)

func main() {
	flag.Parse()
	_ = config.Load()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	useTUI := !*noTUI
	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	source, err := buildSource(flag.Args())
	if err != nil {
		log.Fatalf("audio source: %v", err)
	}

	met := metrics.New()

	srv, err := sendspin.NewServer(sendspin.ServerConfig{
		Port:       *port,
		Name:       *name,
		Source:     source,
		EnableMDNS: !*noMDNS,
		Metrics:    met,
		Debug:      config.DebugEnabled(),
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	var display *ui.TUI
	if useTUI {
		display, err = ui.Run()
		if err != nil {
			log.Fatalf("TUI: %v", err)
		}
		go pushStatus(display, srv, source)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
		case <-quitRequests(display):
		}
		srv.Stop()
		if display != nil {
			display.Stop()
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func quitRequests(display *ui.TUI) <-chan struct{} {
	if display == nil {
		return make(chan struct{})
	}
	return display.QuitRequests()
}

// buildSource picks the audio source from positional args: none means a test
// tone, one is a single file, several form a playlist.
func buildSource(paths []string) (sendspin.AudioSource, error) {
	switch len(paths) {
	case 0:
		return sendspin.NewToneSource(*sampleRate, 2), nil
	case 1:
		return server.NewFileSource(paths[0])
	default:
		return server.NewPlaylist(paths)
	}
}

// pushStatus feeds the TUI one status snapshot per second.
func pushStatus(display *ui.TUI, srv *sendspin.Server, source sendspin.AudioSource) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		title, artist, _ := source.Metadata()
		clients := srv.Clients()

		rows := make([]ui.ClientRow, 0, len(clients))
		for _, c := range clients {
			rows = append(rows, ui.ClientRow{
				Name:   c.Name,
				ID:     c.ID,
				Codec:  c.Codec,
				State:  c.State,
				Volume: c.Volume,
				Muted:  c.Muted,
			})
		}

		display.UpdateStatus(ui.Status{
			Name:       *name,
			Port:       *port,
			GroupState: srv.GroupState(),
			TrackTitle: fmt.Sprintf("%s — %s", artist, title),
			Clients:    rows,
		})
	}
}
