package reveal_test

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"gefen/reveal"
	"gefen/reveal/testutil"
)

type recorder struct {
	ticks []string
	done  int
}

func (r *recorder) tick(s string) { r.ticks = append(r.ticks, s) }
func (r *recorder) finish()       { r.done++ }

func TestStartEmitsOnePrefixPerInterval(t *testing.T) {
	clock := testutil.NewManualClock()
	s := reveal.New(clock)
	rec := &recorder{}

	h, err := s.Start("k1", "héllo", rec.tick, rec.finish)
	require.NoError(t, err)
	require.Equal(t, "k1", h.Key())
	require.Empty(t, rec.ticks, "nothing is revealed before the first interval")

	want := []string{"h", "hé", "hél", "héll", "héllo"}
	require.Equal(t, reveal.DefaultInterval, s.Interval())
	for i := range want {
		clock.Advance(s.Interval() - time.Millisecond)
		require.Len(t, rec.ticks, i)
		clock.Advance(time.Millisecond)
		require.Len(t, rec.ticks, i+1)
	}

	require.Equal(t, want, rec.ticks)
	require.Equal(t, 1, rec.done)
	require.False(t, h.Stopped())
	require.Equal(t, 0, s.Live())
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after the last tick")
	}
}

func TestTicksAreStrictlyGrowingPrefixes(t *testing.T) {
	tests := []struct {
		name string
		text string
		step int
	}{
		{"ascii", "Great question! Let me break it down.", 1},
		{"hebrew", "שלום, במה אפשר לעזור?", 1},
		{"emoji", "ok 👍🏽 done", 1},
		{"batched", "Based on the documents I've analyzed", 4},
		{"step larger than text", "abc", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewManualClock()
			s := reveal.New(clock, reveal.WithStep(tt.step))
			rec := &recorder{}

			_, err := s.Start("k7", tt.text, rec.tick, rec.finish)
			require.NoError(t, err)
			clock.Advance(time.Hour)

			runes := utf8.RuneCountInString(tt.text)
			require.Len(t, rec.ticks, (runes+tt.step-1)/tt.step)
			prev := ""
			for _, got := range rec.ticks {
				require.True(t, utf8.ValidString(got), "tick %q splits a rune", got)
				require.Greater(t, len(got), len(prev))
				require.Equal(t, prev, got[:len(prev)])
				prev = got
			}
			require.Equal(t, tt.text, prev)
			require.Equal(t, 1, rec.done)
		})
	}
}

func TestEmptyTextFinishesImmediately(t *testing.T) {
	clock := testutil.NewManualClock()
	s := reveal.New(clock)
	rec := &recorder{}

	h, err := s.Start("k1", "", rec.tick, rec.finish)
	require.NoError(t, err)

	require.Empty(t, rec.ticks)
	require.Equal(t, 1, rec.done)
	require.Equal(t, 0, clock.Pending())
	require.Equal(t, 0, s.Live())
	<-h.Done()

	clock.Advance(time.Second)
	require.Equal(t, 1, rec.done)
}

func TestStopSilencesReveal(t *testing.T) {
	clock := testutil.NewManualClock()
	s := reveal.New(clock)
	rec := &recorder{}

	h, err := s.Start("k1", "abcdef", rec.tick, rec.finish)
	require.NoError(t, err)
	clock.Advance(2 * reveal.DefaultInterval)
	require.Equal(t, []string{"a", "ab"}, rec.ticks)

	h.Stop()
	h.Stop()
	clock.Advance(time.Second)

	require.Equal(t, []string{"a", "ab"}, rec.ticks)
	require.Zero(t, rec.done)
	require.True(t, h.Stopped())
	require.Equal(t, 0, clock.Pending())
	require.Equal(t, 0, s.Live())
}

func TestRestartingKeyCancelsStaleReveal(t *testing.T) {
	clock := testutil.NewManualClock()
	s := reveal.New(clock)
	stale := &recorder{}
	fresh := &recorder{}

	first, err := s.Start("k3", "stale text", stale.tick, stale.finish)
	require.NoError(t, err)
	clock.Advance(reveal.DefaultInterval)

	_, err = s.Start("k3", "new", fresh.tick, fresh.finish)
	require.NoError(t, err)
	clock.Advance(time.Second)

	require.True(t, first.Stopped())
	require.Equal(t, []string{"s"}, stale.ticks)
	require.Zero(t, stale.done)
	require.Equal(t, []string{"n", "ne", "new"}, fresh.ticks)
	require.Equal(t, 1, fresh.done)
}

func TestIndependentKeysInterleave(t *testing.T) {
	clock := testutil.NewManualClock()
	s := reveal.New(clock)
	a := &recorder{}
	b := &recorder{}

	_, err := s.Start("k1", "ab", a.tick, a.finish)
	require.NoError(t, err)
	_, err = s.Start("k2", "xyz", b.tick, b.finish)
	require.NoError(t, err)
	require.Equal(t, 2, s.Live())

	clock.Advance(time.Second)
	require.Equal(t, []string{"a", "ab"}, a.ticks)
	require.Equal(t, []string{"x", "xy", "xyz"}, b.ticks)
}

func TestCloseStopsEverythingAndRejectsStart(t *testing.T) {
	clock := testutil.NewManualClock()
	s := reveal.New(clock)
	rec := &recorder{}

	h, err := s.Start("k1", "abc", rec.tick, rec.finish)
	require.NoError(t, err)

	s.Close()
	s.Close()
	clock.Advance(time.Second)

	require.True(t, h.Stopped())
	require.Empty(t, rec.ticks)

	_, err = s.Start("k2", "abc", rec.tick, rec.finish)
	require.ErrorIs(t, err, reveal.ErrClosed)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	tests := []struct {
		name string
		opts []reveal.Option
	}{
		{"zero interval", []reveal.Option{reveal.WithInterval(0)}},
		{"negative interval", []reveal.Option{reveal.WithInterval(-time.Millisecond)}},
		{"zero step", []reveal.Option{reveal.WithStep(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := reveal.New(testutil.NewManualClock(), tt.opts...)
			_, err := s.Start("k1", "abc", nil, nil)
			require.ErrorIs(t, err, reveal.ErrInvalidConfig)
		})
	}
}

func TestRealClockCompletes(t *testing.T) {
	s := reveal.New(nil, reveal.WithInterval(time.Millisecond))
	defer s.Close()

	ticks := make(chan string, 16)
	h, err := s.Start("k1", "hello", func(p string) { ticks <- p }, nil)
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reveal did not complete")
	}
	close(ticks)

	var last string
	n := 0
	for p := range ticks {
		last = p
		n++
	}
	require.Equal(t, 5, n)
	require.Equal(t, "hello", last)
}
