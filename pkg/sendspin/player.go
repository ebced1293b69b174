// ABOUTME: High-level Player API for Sendspin streaming
// ABOUTME: Binds transport, clock sync, decoding and the scheduler for one session
package sendspin

import (
	"encoding/base64"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/Sendspin/sendspin-go/pkg/audio"
	"github.com/Sendspin/sendspin-go/pkg/audio/decode"
	"github.com/Sendspin/sendspin-go/pkg/audio/output"
	"github.com/Sendspin/sendspin-go/pkg/protocol"
	"github.com/Sendspin/sendspin-go/pkg/sync"
	"github.com/google/uuid"
)

const (
	// SyncPeriod is the cadence of client/time probes.
	SyncPeriod = 5 * time.Second

	// SyncTimeout discards probes with no matching server/time reply.
	SyncTimeout = 2 * time.Second

	// ClockStartupWindow upgrades a never-synced clock to a fatal timeout.
	ClockStartupWindow = 10 * time.Second

	// StateCoalesceWindow rate-limits client/state updates.
	StateCoalesceWindow = 100 * time.Millisecond
)

// PlayerConfig holds player configuration
type PlayerConfig struct {
	// Endpoint is the server address (host:port or ws:// URL).
	Endpoint string

	// PlayerName is the display name for this player
	PlayerName string

	// Volume is the initial volume (0..1). Zero means full volume.
	Volume float64

	// Output is the audio sink. Defaults to the oto backend.
	Output output.Output

	// Scheduler tuning. Zero values use defaults.
	Scheduler SchedulerConfig

	// SupportedFormats overrides the default preference-ordered format list.
	SupportedFormats []protocol.AudioFormat

	// DeviceInfo provides device identification
	DeviceInfo protocol.DeviceInfo

	// OnMetadata is called when track metadata arrives
	OnMetadata func(Metadata)

	// OnStateChange is called when playback state changes
	OnStateChange func(PlayerState)

	// OnError is called for non-fatal errors
	OnError func(error)
}

// Metadata contains track information
type Metadata struct {
	Title          string
	Artist         string
	Album          string
	DurationMicros int64
	PositionMicros int64
}

// PlayerState describes the current state
type PlayerState struct {
	State      string // "playing", "paused", "stopped"
	Volume     float64
	Mute       bool
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	Connected  bool
}

// PlayerStats contains playback statistics
type PlayerStats struct {
	Scheduler    SchedulerStats
	BufferDepth  int // milliseconds
	SyncOffset   int64
	SyncRTT      int64
	SyncQuality  sync.Quality
	SyncAccepted int64
	SyncRejected int64
}

// Player streams synchronized audio from a Sendspin server. It exclusively
// owns the clock estimator, the connection and the scheduler for the
// session's lifetime.
type Player struct {
	config PlayerConfig

	client    *protocol.Client
	clockSync *sync.ClockSync
	scheduler *Scheduler
	output    output.Output

	mu       stdsync.Mutex
	state    PlayerState
	decoder  decode.Decoder
	format   audio.Format
	draining bool

	// Consecutive decoder failures; the second in a row is fatal.
	codecErrors int

	stateDirty chan struct{}
	done       chan struct{}
	doneOnce   stdsync.Once
	closeErr   error

	// publish overrides how client/state leaves the player; nil means the
	// protocol client. Tests hook this.
	publish func(protocol.ClientState) error
}

// DefaultSupportedFormats is the preference-ordered format list sent in
// client/hello when the config does not override it. Hi-res PCM first,
// Opus as the low-bandwidth fallback.
func DefaultSupportedFormats() []protocol.AudioFormat {
	return []protocol.AudioFormat{
		{Codec: "pcm", Channels: 2, SampleRate: 192000, BitDepth: 24},
		{Codec: "pcm", Channels: 2, SampleRate: 176400, BitDepth: 24},
		{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24},
		{Codec: "pcm", Channels: 2, SampleRate: 88200, BitDepth: 24},
		{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 24},
		{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
		{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
		{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 24},
		{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
	}
}

// NewPlayer creates a new player with the given configuration
func NewPlayer(config PlayerConfig) (*Player, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Volume == 0 {
		config.Volume = 1.0
	}
	if config.Output == nil {
		config.Output = output.NewOto()
	}
	if config.SupportedFormats == nil {
		config.SupportedFormats = DefaultSupportedFormats()
	}
	if config.DeviceInfo.ProductName == "" {
		config.DeviceInfo.ProductName = "Sendspin Player"
	}
	if config.DeviceInfo.Manufacturer == "" {
		config.DeviceInfo.Manufacturer = "Sendspin"
	}
	if config.DeviceInfo.SoftwareVersion == "" {
		config.DeviceInfo.SoftwareVersion = Version
	}

	clockSync := sync.NewClockSync()

	return &Player{
		config:     config,
		clockSync:  clockSync,
		scheduler:  NewScheduler(clockSync, config.Scheduler),
		output:     config.Output,
		stateDirty: make(chan struct{}, 1),
		done:       make(chan struct{}),
		state: PlayerState{
			State:  "stopped",
			Volume: config.Volume,
		},
	}, nil
}

// Connect establishes the connection and starts the session tasks: the
// transport reader, the clock-sync ticker, the state publisher and the
// playback consumer.
func (p *Player) Connect() error {
	p.client = protocol.NewClient(protocol.Config{
		Endpoint:       p.config.Endpoint,
		ClientID:       uuid.New().String(),
		Name:           p.config.PlayerName,
		Version:        1,
		DeviceInfo:     p.config.DeviceInfo,
		SupportedRoles: []string{"player@v1", "metadata@v1", "controller@v1"},
		PlayerV1Support: &protocol.PlayerV1Support{
			SupportedFormats:  p.config.SupportedFormats,
			BufferCapacity:    1048576,
			SupportedCommands: []string{"volume", "mute"},
		},
	})

	if err := p.client.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	log.Printf("Connected to server: %s", p.config.Endpoint)
	p.mu.Lock()
	p.state.Connected = true
	p.mu.Unlock()
	p.notifyStateChange()

	p.performInitialSync()

	go p.readerLoop()
	go p.clockSyncLoop()
	go p.statePublisher()
	go p.playbackConsumer()
	go p.scheduler.Run()
	go p.watchConnection()

	return nil
}

// performInitialSync runs a few quick probe rounds so playback can be
// scheduled as soon as the stream starts.
func (p *Player) performInitialSync() {
	for i := 0; i < 5; i++ {
		t1 := sync.LocalMicros()
		if err := p.client.SendTime(t1); err != nil {
			return
		}

		select {
		case resp := <-p.client.TimeSyncResp:
			p.consumeTimeReply(t1, resp)
		case <-time.After(500 * time.Millisecond):
			log.Printf("Initial sync round %d timeout", i+1)
		}

		time.Sleep(100 * time.Millisecond)
	}

	offset, rtt, quality := p.clockSync.Stats()
	log.Printf("Initial clock sync: offset=%dµs rtt=%dµs quality=%v", offset, rtt, quality)
}

// clockSyncLoop probes the server clock every SyncPeriod. A probe with no
// reply within SyncTimeout is discarded without blocking the next probe.
func (p *Player) clockSyncLoop() {
	ticker := time.NewTicker(SyncPeriod)
	defer ticker.Stop()

	startup := time.NewTimer(ClockStartupWindow)
	defer startup.Stop()

	var pendingT1 int64
	var pendingAt time.Time

	for {
		select {
		case <-ticker.C:
			state := p.client.State()
			if state != protocol.StateReady && state != protocol.StateStreaming {
				continue
			}
			if pendingT1 != 0 && time.Since(pendingAt) > SyncTimeout {
				log.Printf("Clock probe t1=%d unanswered, discarding", pendingT1)
				pendingT1 = 0
			}
			t1 := sync.LocalMicros()
			if err := p.client.SendTime(t1); err == nil {
				pendingT1 = t1
				pendingAt = time.Now()
			}

		case resp := <-p.client.TimeSyncResp:
			if resp.ClientTransmitted != pendingT1 {
				log.Printf("Unmatched server/time reply (t1=%d), discarding", resp.ClientTransmitted)
				continue
			}
			if time.Since(pendingAt) > SyncTimeout {
				log.Printf("server/time reply after sync timeout, discarding")
				pendingT1 = 0
				continue
			}
			p.consumeTimeReply(pendingT1, resp)
			pendingT1 = 0

		case <-startup.C:
			if !p.clockSync.IsValid() {
				p.fail(protocol.TimeoutErrorf("no clock sample accepted within %v", ClockStartupWindow))
				return
			}

		case <-p.done:
			return
		}
	}
}

func (p *Player) consumeTimeReply(t1 int64, resp protocol.ServerTime) {
	s := sync.Sample{
		T1: t1,
		T2: resp.ServerReceived,
		T3: resp.ServerTransmitted,
		T4: sync.LocalMicros(),
	}
	if !p.clockSync.AddSample(s) {
		log.Printf("Rejected clock sample: rtt=%dµs", s.RTT())
	}
}

// readerLoop routes decoded transport events into the session.
func (p *Player) readerLoop() {
	for {
		select {
		case start := <-p.client.StreamStart:
			p.handleStreamStart(start)

		case chunk := <-p.client.AudioChunks:
			p.handleAudioChunk(chunk)

		case <-p.client.StreamClear:
			log.Printf("Stream clear: dropping queued audio")
			p.scheduler.Reset()
			p.clockSync.Reseed()

		case <-p.client.StreamEnd:
			log.Printf("Stream end: draining")
			p.mu.Lock()
			p.draining = true
			p.mu.Unlock()
			go p.drainThenStop()

		case cmd := <-p.client.Commands:
			p.handleCommand(cmd)

		case state := <-p.client.ServerState:
			p.handleServerState(state)

		case update := <-p.client.GroupUpdate:
			log.Printf("Group update: state=%s members=%d", update.GroupState, len(update.Members))

		case <-p.client.Done():
			p.shutdown(p.client.Err())
			return

		case <-p.done:
			return
		}
	}
}

// handleStreamStart configures the decode pipeline and the sink for the
// announced format. The scheduler is reset here before the new decoder is
// installed, so audio still queued from the old format never reaches the sink.
func (p *Player) handleStreamStart(start protocol.StreamStart) {
	pl := start.Player
	if pl == nil {
		return
	}

	log.Printf("Stream starting: %s %dHz %dch %dbit", pl.Codec, pl.SampleRate, pl.Channels, pl.BitDepth)

	if err := protocol.ValidateFormat(pl.Format()); err != nil {
		p.fail(fmt.Errorf("stream/start format invalid: %w", err))
		return
	}

	format := audio.Format{
		Codec:      pl.Codec,
		SampleRate: pl.SampleRate,
		Channels:   pl.Channels,
		BitDepth:   pl.BitDepth,
	}
	if pl.CodecHeader != "" {
		header, err := base64.StdEncoding.DecodeString(pl.CodecHeader)
		if err != nil {
			p.fail(fmt.Errorf("stream/start codec header: %w", err))
			return
		}
		format.CodecHeader = header
	}

	decoder, err := decode.New(format)
	if err != nil {
		p.fail(protocol.CodecError("failed to create decoder", err))
		return
	}

	if err := p.output.Open(format.SampleRate, format.Channels, format.BitDepth); err != nil {
		p.fail(fmt.Errorf("failed to initialize output: %w", err))
		return
	}

	p.scheduler.Reset()

	p.mu.Lock()
	if p.decoder != nil {
		p.decoder.Close()
	}
	p.decoder = decoder
	p.format = format
	p.codecErrors = 0
	p.draining = false
	p.state.Codec = format.Codec
	p.state.SampleRate = format.SampleRate
	p.state.Channels = format.Channels
	p.state.BitDepth = format.BitDepth
	p.state.State = "playing"
	p.mu.Unlock()

	p.notifyStateChange()
	p.markStateDirty()
}

// handleAudioChunk decodes one chunk and hands it to the scheduler. The
// first decoder failure clears the stream; a second consecutive failure is
// fatal.
func (p *Player) handleAudioChunk(chunk protocol.AudioChunk) {
	p.mu.Lock()
	decoder := p.decoder
	format := p.format
	draining := p.draining
	p.mu.Unlock()

	if decoder == nil || draining {
		return
	}

	samples, err := decoder.Decode(chunk.Payload)
	if err != nil {
		p.mu.Lock()
		p.codecErrors++
		fatal := p.codecErrors >= 2
		p.mu.Unlock()

		if fatal {
			p.fail(protocol.CodecError("decoder failed twice in a row", err))
			return
		}
		p.notifyError(fmt.Errorf("decode error, clearing stream: %w", err))
		p.scheduler.Reset()
		return
	}

	p.mu.Lock()
	p.codecErrors = 0
	p.mu.Unlock()

	p.scheduler.Schedule(audio.Buffer{
		Timestamp: chunk.DeadlineMicros,
		Samples:   samples,
		Format:    format,
	})
}

// playbackConsumer drains the scheduler into the sink, covering gaps with
// silence.
func (p *Player) playbackConsumer() {
	for {
		select {
		case buf := <-p.scheduler.Output():
			if err := p.output.Write(buf.Samples); err != nil {
				p.notifyError(fmt.Errorf("playback error: %w", err))
			}

		case gap := <-p.scheduler.Gaps():
			p.writeSilence(gap)

		case <-p.done:
			return
		}
	}
}

func (p *Player) writeSilence(gap Gap) {
	p.mu.Lock()
	format := p.format
	p.mu.Unlock()
	if format.SampleRate == 0 {
		return
	}

	holeMicros := gap.ToMicros - gap.FromMicros
	frames := int(holeMicros * int64(format.SampleRate) / 1_000_000)
	if frames <= 0 {
		return
	}
	log.Printf("Underrun: inserting %dµs of silence", holeMicros)
	if err := p.output.Write(make([]int32, frames*format.Channels)); err != nil {
		p.notifyError(fmt.Errorf("silence write failed: %w", err))
	}
}

// drainThenStop waits for queued audio to play out, then completes the
// stream/end transition.
func (p *Player) drainThenStop() {
	for p.scheduler.Len() > 0 {
		select {
		case <-p.done:
			return
		case <-time.After(20 * time.Millisecond):
		}
	}

	p.mu.Lock()
	p.state.State = "stopped"
	p.mu.Unlock()
	p.notifyStateChange()
	p.client.Drained()
}

func (p *Player) handleCommand(cmd protocol.PlayerCommand) {
	switch cmd.Command {
	case "volume":
		p.SetVolume(cmd.Volume)
	case "mute":
		p.SetMute(cmd.Mute)
	}
}

func (p *Player) handleServerState(state protocol.ServerState) {
	if state.Metadata == nil || p.config.OnMetadata == nil {
		return
	}
	m := state.Metadata
	p.config.OnMetadata(Metadata{
		Title:          deref(m.Title),
		Artist:         deref(m.Artist),
		Album:          deref(m.Album),
		DurationMicros: m.DurationMicros,
		PositionMicros: m.PositionMicros,
	})
}

// statePublisher coalesces local state mutations into at most one
// client/state per StateCoalesceWindow, always carrying the latest values.
func (p *Player) statePublisher() {
	for {
		select {
		case <-p.stateDirty:
			timer := time.NewTimer(StateCoalesceWindow)
		coalesce:
			for {
				select {
				case <-p.stateDirty:
				case <-timer.C:
					break coalesce
				case <-p.done:
					timer.Stop()
					return
				}
			}
			p.publishState()

		case <-p.done:
			return
		}
	}
}

func (p *Player) publishState() {
	p.mu.Lock()
	state := protocol.ClientState{
		Volume: p.state.Volume,
		Mute:   p.state.Mute,
		State:  p.state.State,
	}
	publish := p.publish
	p.mu.Unlock()

	if publish == nil {
		publish = p.client.SendState
	}
	if err := publish(state); err != nil {
		log.Printf("Failed to send client/state: %v", err)
	}
}

func (p *Player) markStateDirty() {
	select {
	case p.stateDirty <- struct{}{}:
	default:
	}
}

// SetVolume sets the volume (0..1) and publishes the change.
func (p *Player) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	p.mu.Lock()
	p.state.Volume = volume
	p.mu.Unlock()

	if oto, ok := p.output.(*output.Oto); ok {
		oto.SetVolume(volume)
	}
	p.notifyStateChange()
	p.markStateDirty()
}

// SetMute sets the mute state and publishes the change.
func (p *Player) SetMute(mute bool) {
	p.mu.Lock()
	p.state.Mute = mute
	p.mu.Unlock()

	if oto, ok := p.output.(*output.Oto); ok {
		oto.SetMuted(mute)
	}
	p.notifyStateChange()
	p.markStateDirty()
}

// RequestFormat asks the server to switch to the given stream format.
func (p *Player) RequestFormat(format protocol.AudioFormat) error {
	if err := protocol.ValidateFormat(format); err != nil {
		return err
	}
	return p.client.RequestFormat(format)
}

// SendCommand forwards a controller command (play/pause/seek/next/prev).
func (p *Player) SendCommand(cmd protocol.ClientCommand) error {
	return p.client.SendCommand(cmd)
}

// Status returns the current player state.
func (p *Player) Status() PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns playback statistics.
func (p *Player) Stats() PlayerStats {
	offset, rtt, quality := p.clockSync.Stats()
	accepted, rejected := p.clockSync.Counts()
	return PlayerStats{
		Scheduler:    p.scheduler.Stats(),
		BufferDepth:  p.scheduler.BufferDepth(),
		SyncOffset:   offset,
		SyncRTT:      rtt,
		SyncQuality:  quality,
		SyncAccepted: accepted,
		SyncRejected: rejected,
	}
}

// Err returns the error that terminated the session, if any.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeErr
}

// Done is closed when the session has fully shut down.
func (p *Player) Done() <-chan struct{} { return p.done }

// watchConnection propagates a transport-level close into the session.
func (p *Player) watchConnection() {
	select {
	case <-p.client.Done():
		p.shutdown(p.client.Err())
	case <-p.done:
	}
}

// fail terminates the session with an error.
func (p *Player) fail(err error) {
	p.notifyError(err)
	p.shutdown(err)
}

// shutdown releases resources in reverse creation order: decoder, connection,
// scheduler, then output.
func (p *Player) shutdown(err error) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.closeErr = err
		p.state.Connected = false
		p.state.State = "stopped"
		decoder := p.decoder
		p.decoder = nil
		p.mu.Unlock()

		close(p.done)
		if decoder != nil {
			decoder.Close()
		}
		if p.client != nil {
			p.client.Close("shutdown")
		}
		p.scheduler.Stop()
		p.output.Close()
		p.notifyStateChange()
	})
}

// Close shuts the player down gracefully.
func (p *Player) Close() error {
	if p.client != nil {
		p.client.SendGoodbye("user_request")
	}
	p.shutdown(nil)
	return nil
}

func (p *Player) notifyStateChange() {
	if p.config.OnStateChange != nil {
		p.config.OnStateChange(p.Status())
	}
}

func (p *Player) notifyError(err error) {
	if p.config.OnError != nil {
		p.config.OnError(err)
	} else {
		log.Printf("Player error: %v", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
