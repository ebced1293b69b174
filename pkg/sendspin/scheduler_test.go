// ABOUTME: Tests for the playback scheduler
// ABOUTME: Covers ordering, capacity policy, late drops, resets and gaps
package sendspin

import (
	"testing"
	"time"

	"github.com/Sendspin/sendspin-go/pkg/audio"
	"github.com/Sendspin/sendspin-go/pkg/sync"
)

// syncedClock returns an estimator whose offset maps server-loop µs 0 to the
// local instant it was created, so test deadlines are relative milliseconds.
func syncedClock(t *testing.T) *sync.ClockSync {
	t.Helper()
	cs := sync.NewClockSync()
	now := sync.LocalMicros()
	if !cs.AddSample(sync.Sample{T1: now, T2: 0, T3: 0, T4: now}) {
		t.Fatal("failed to seed clock")
	}
	return cs
}

func testBuffer(deadlineMicros int64, marker int32) audio.Buffer {
	samples := make([]int32, 1920) // 20ms stereo at 48kHz
	samples[0] = marker
	return audio.Buffer{
		Timestamp: deadlineMicros,
		Samples:   samples,
		Format:    audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24},
	}
}

func TestEmitsInDeadlineOrder(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{})
	defer s.Stop()
	go s.Run()

	// Arrival order 40ms, 80ms, 60ms, 20ms.
	for i, d := range []int64{40_000, 80_000, 60_000, 20_000} {
		s.Schedule(testBuffer(d, int32(i)))
	}

	var deadlines []int64
	for i := 0; i < 4; i++ {
		select {
		case buf := <-s.Output():
			deadlines = append(deadlines, buf.Timestamp)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for buffer %d", i)
		}
	}

	want := []int64{20_000, 40_000, 60_000, 80_000}
	for i := range want {
		if deadlines[i] != want[i] {
			t.Fatalf("emission order %v, want %v", deadlines, want)
		}
	}

	stats := s.Stats()
	if stats.Missed != 0 {
		t.Errorf("unexpected misses: %d", stats.Missed)
	}
	if stats.Played != 4 {
		t.Errorf("played = %d, want 4", stats.Played)
	}
}

func TestEqualDeadlinesAreStable(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{})
	defer s.Stop()
	go s.Run()

	s.Schedule(testBuffer(30_000, 1))
	s.Schedule(testBuffer(30_000, 2))

	first := <-s.Output()
	second := <-s.Output()
	if first.Samples[0] != 1 || second.Samples[0] != 2 {
		t.Errorf("stability violated: got markers %d, %d", first.Samples[0], second.Samples[0])
	}
}

func TestCapacityDropsLaterKeepsEarlier(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{Capacity: 4})
	defer s.Stop()
	// No Run: inspect the queue at rest, far-future deadlines.

	for i := int64(1); i <= 4; i++ {
		s.Schedule(testBuffer(i*1_000_000, 0))
	}
	if s.Len() != 4 {
		t.Fatalf("queue length %d", s.Len())
	}

	// Later than the current max: the new chunk is dropped.
	s.Schedule(testBuffer(5_000_000, 0))
	stats := s.Stats()
	if s.Len() != 4 || stats.Dropped != 1 || stats.Evicted != 0 {
		t.Fatalf("after late enqueue: len=%d dropped=%d evicted=%d", s.Len(), stats.Dropped, stats.Evicted)
	}

	// Earlier than the current max: the max is evicted to make room.
	s.Schedule(testBuffer(500_000, 0))
	stats = s.Stats()
	if s.Len() != 4 || stats.Evicted != 1 {
		t.Fatalf("after early enqueue: len=%d evicted=%d", s.Len(), stats.Evicted)
	}
}

func TestLateChunkCountsAsMiss(t *testing.T) {
	cs := syncedClock(t)
	s := NewScheduler(cs, SchedulerConfig{})
	defer s.Stop()
	go s.Run()

	// Deadline 50ms in the past, well beyond the late window.
	s.Schedule(testBuffer(-50_000, 0))

	deadline := time.After(time.Second)
	for {
		if s.Stats().Missed == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("late chunk never counted as miss")
		case <-time.After(5 * time.Millisecond):
		}
	}

	select {
	case buf := <-s.Output():
		t.Fatalf("late chunk emitted: deadline %d", buf.Timestamp)
	default:
	}
}

func TestResetIsIdempotent(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{})
	defer s.Stop()

	for i := int64(1); i <= 5; i++ {
		s.Schedule(testBuffer(i*100_000, 0))
	}

	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("queue not empty after reset: %d", s.Len())
	}
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("queue not empty after second reset: %d", s.Len())
	}
}

func TestPlaysNormallyAfterReset(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{})
	defer s.Stop()
	go s.Run()

	for i := int64(1); i <= 5; i++ {
		s.Schedule(testBuffer(i*1_000_000, 0)) // 1s..5s out, never due in test
	}
	s.Reset()

	s.Schedule(testBuffer(30_000, 7))
	select {
	case buf := <-s.Output():
		if buf.Samples[0] != 7 {
			t.Errorf("got marker %d", buf.Samples[0])
		}
	case <-time.After(time.Second):
		t.Fatal("post-reset chunk never emitted")
	}
}

func TestGapSignaledOnDiscontinuity(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{})
	defer s.Stop()
	go s.Run()

	// Chunk ends at 40ms; next starts at 120ms: an 80ms hole.
	s.Schedule(testBuffer(20_000, 0))
	s.Schedule(testBuffer(120_000, 0))

	<-s.Output()
	<-s.Output()

	select {
	case gap := <-s.Gaps():
		if gap.FromMicros != 40_000 || gap.ToMicros != 120_000 {
			t.Errorf("gap = %+v, want 40000..120000", gap)
		}
	case <-time.After(time.Second):
		t.Fatal("no gap event")
	}
}

func TestEmitTimingWithinWindows(t *testing.T) {
	s := NewScheduler(syncedClock(t), SchedulerConfig{})
	defer s.Stop()
	go s.Run()

	s.Schedule(testBuffer(60_000, 0))

	select {
	case buf := <-s.Output():
		skew := time.Since(buf.PlayAt)
		// Emitted no earlier than the lead window allows, and not late
		// beyond the late window plus loop slack.
		if skew < -5*time.Millisecond || skew > 20*time.Millisecond {
			t.Errorf("emit skew %v", skew)
		}
	case <-time.After(time.Second):
		t.Fatal("chunk never emitted")
	}
}
