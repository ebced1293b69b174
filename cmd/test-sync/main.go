// ABOUTME: Clock synchronization probe tool
// ABOUTME: Connects to a server and reports offset/RTT convergence
package main

import (
	"log"
	"os"
	"time"

	"github.com/Sendspin/sendspin-go/pkg/protocol"
	"github.com/Sendspin/sendspin-go/pkg/sync"
	flag "github.com/spf13/pflag"
)

var (
	serverAddr = flag.String("server", "localhost:8927", "Server address")
	rounds     = flag.Int("rounds", 20, "Number of probe rounds")
	interval   = flag.Duration("interval", 250*time.Millisecond, "Delay between probes")
)

func main() {
	flag.Parse()

	client := protocol.NewClient(protocol.Config{
		Endpoint:       *serverAddr,
		Name:           "test-sync",
		SupportedRoles: []string{"player@v1"},
		PlayerV1Support: &protocol.PlayerV1Support{
			SupportedFormats: []protocol.AudioFormat{
				{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
			},
		},
	})

	if err := client.Connect(); err != nil {
		log.Printf("connect failed: %v", err)
		os.Exit(69)
	}
	defer client.Close("user_request")

	cs := sync.NewClockSync()

	for i := 0; i < *rounds; i++ {
		t1 := sync.LocalMicros()
		if err := client.SendTime(t1); err != nil {
			log.Printf("probe failed: %v", err)
			os.Exit(70)
		}

		select {
		case resp := <-client.TimeSyncResp:
			s := sync.Sample{
				T1: t1,
				T2: resp.ServerReceived,
				T3: resp.ServerTransmitted,
				T4: sync.LocalMicros(),
			}
			accepted := cs.AddSample(s)
			offset, _, quality := cs.Stats()
			log.Printf("round %2d: rtt=%5dµs offset=%dµs accepted=%v quality=%v",
				i+1, s.RTT(), offset, accepted, quality)

		case <-time.After(2 * time.Second):
			log.Printf("round %2d: timeout", i+1)
		}

		time.Sleep(*interval)
	}

	offset, rtt, quality := cs.Stats()
	log.Printf("final: offset=%dµs rtt=%dµs quality=%v valid=%v", offset, rtt, quality, cs.IsValid())
}
