package model

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"gefen/provider"
	"gefen/provider/testutil"
	"gefen/reveal"
	clocktest "gefen/reveal/testutil"
)

const waitFor = 2 * time.Second

type harness struct {
	t     *testing.T
	clock *clocktest.ManualClock
	sched *reveal.Scheduler
	ctrl  *Controller
}

func newHarness(t *testing.T, src provider.Source, opts ...Option) *harness {
	t.Helper()
	clock := clocktest.NewManualClock()
	sched := reveal.New(clock)
	ctrl := NewController(src, sched, opts...)
	t.Cleanup(ctrl.Close)
	return &harness{t: t, clock: clock, sched: sched, ctrl: ctrl}
}

// waitRevealing blocks until the reply is placed and the controller holds
// its reveal handle.
func (h *harness) waitRevealing() {
	h.t.Helper()
	waitRevealing(h.t, h.ctrl)
}

func waitRevealing(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.phase == PhaseRevealing && c.handle != nil
	}, waitFor, time.Millisecond)
}

func (h *harness) waitIdle() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.ctrl.Phase() == PhaseIdle
	}, waitFor, time.Millisecond)
}

func (h *harness) revealAll() {
	h.clock.Advance(time.Hour)
}

func TestSubmitHelloRevealsReply(t *testing.T) {
	const reply = "Hi there"
	h := newHarness(t, testutil.NewMockSource(reply))

	require.True(t, h.ctrl.Submit("hello"))

	snap := h.ctrl.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, RoleUser, snap.Messages[0].Role)
	require.Equal(t, "hello", snap.Messages[0].Content)
	require.True(t, snap.Typing)

	h.waitRevealing()
	snap = h.ctrl.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, RoleAssistant, snap.Messages[1].Role)
	require.Empty(t, snap.Messages[1].Content)
	require.True(t, snap.Typing, "typing gates input for the whole reveal")
	require.False(t, snap.Awaiting())

	runes := []rune(reply)
	for i := range runes {
		h.clock.Advance(h.sched.Interval())
		got := h.ctrl.Snapshot().Messages[1].Content
		require.Equal(t, string(runes[:i+1]), got)
	}

	snap = h.ctrl.Snapshot()
	require.Equal(t, PhaseIdle, snap.Phase)
	require.False(t, snap.Typing)
	require.Equal(t, reply, snap.Messages[1].Content)
	require.False(t, snap.Messages[1].Error)
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	src := testutil.NewMockSource("unused")
	h := newHarness(t, src)
	before := h.ctrl.Snapshot()

	for _, in := range []string{"", "   ", "\n\t "} {
		require.False(t, h.ctrl.Submit(in), "input %q", in)
	}

	after := h.ctrl.Snapshot()
	require.Equal(t, before.Version, after.Version)
	require.Empty(t, after.Messages)
	require.False(t, after.Typing)
	require.Zero(t, src.CallCount())
}

func TestSubmitTrimsInput(t *testing.T) {
	src := testutil.NewMockSource("ok")
	h := newHarness(t, src)

	require.True(t, h.ctrl.Submit("  what is new? \n"))
	require.Equal(t, "what is new?", h.ctrl.Snapshot().Messages[0].Content)

	h.waitRevealing()
	require.Equal(t, "what is new?", src.Calls()[0].Query)
}

func TestSubmitWhileBusyIsRejected(t *testing.T) {
	release := make(chan string)
	src := testutil.GatedSource(release)
	h := newHarness(t, src)

	require.True(t, h.ctrl.Submit("a"))
	require.False(t, h.ctrl.Submit("b"), "rejected while awaiting the reply")

	release <- "reply to a"
	h.waitRevealing()
	h.clock.Advance(h.sched.Interval())
	require.False(t, h.ctrl.Submit("b"), "rejected while revealing")

	h.revealAll()
	snap := h.ctrl.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "a", snap.Messages[0].Content)
	require.Equal(t, "reply to a", snap.Messages[1].Content)
	require.Equal(t, 1, src.CallCount())

	require.True(t, h.ctrl.Submit("b"))
	release <- "reply to b"
	h.waitRevealing()
	h.revealAll()
	require.Len(t, h.ctrl.Snapshot().Messages, 4)
}

func TestTranscriptOrdering(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("noted"))

	for _, q := range []string{"one", "two", "three"} {
		require.True(t, h.ctrl.Submit(q))
		h.waitRevealing()
		h.revealAll()
	}

	msgs := h.ctrl.Snapshot().Messages
	require.Len(t, msgs, 6)
	for i, m := range msgs {
		require.Equal(t, uint64(i+1), m.ID)
		if i%2 == 0 {
			require.Equal(t, RoleUser, m.Role)
		} else {
			require.Equal(t, RoleAssistant, m.Role)
			require.Equal(t, "noted", m.Content)
		}
	}
}

func TestRevealIsRuneSafe(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource(testutil.HebrewReply))
	require.True(t, h.ctrl.Submit("שלום"))
	h.waitRevealing()

	prev := ""
	for h.ctrl.Phase() == PhaseRevealing {
		h.clock.Advance(h.sched.Interval())
		got := h.ctrl.Snapshot().Messages[1].Content
		require.True(t, utf8.ValidString(got))
		require.Greater(t, len(got), len(prev))
		require.Equal(t, prev, got[:len(prev)])
		prev = got
	}
	require.Equal(t, testutil.HebrewReply, prev)
}

func TestSourceFailureProducesErrorEntry(t *testing.T) {
	tests := []struct {
		name   string
		source provider.Source
		opts   []Option
	}{
		{"error", testutil.FailingSource(errors.New("backend down")), nil},
		{"empty reply", testutil.NewMockSource(""), nil},
		{"timeout", testutil.BlockingSource(), []Option{WithReplyTimeout(20 * time.Millisecond)}},
		{"empty pool", provider.NewCannedSource(provider.WithPool(nil)), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithErrorText("no answer")}, tt.opts...)
			h := newHarness(t, tt.source, opts...)

			require.True(t, h.ctrl.Submit("hello"))
			h.waitIdle()

			snap := h.ctrl.Snapshot()
			require.False(t, snap.Typing)
			require.Len(t, snap.Messages, 2)
			require.Equal(t, RoleAssistant, snap.Messages[1].Role)
			require.True(t, snap.Messages[1].Error)
			require.Equal(t, "no answer", snap.Messages[1].Content)

			require.True(t, h.ctrl.Submit("again"), "session accepts input after a failure")
		})
	}
}

func TestSourceIgnoringContextStillTimesOut(t *testing.T) {
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	src := provider.SourceFunc(func(context.Context, string, []provider.Turn) (string, error) {
		<-stuck
		return "too late", nil
	})
	h := newHarness(t, src, WithReplyTimeout(10*time.Millisecond))

	require.True(t, h.ctrl.Submit("hello"))
	h.waitIdle()
	require.True(t, h.ctrl.Snapshot().Messages[1].Error)
}

func TestRevealStartFailureFinalizes(t *testing.T) {
	release := make(chan string)
	h := newHarness(t, testutil.GatedSource(release))

	require.True(t, h.ctrl.Submit("hello"))
	h.sched.Close()
	release <- "never shown"
	h.waitIdle()

	snap := h.ctrl.Snapshot()
	require.False(t, snap.Typing)
	require.Len(t, snap.Messages, 2)
	require.True(t, snap.Messages[1].Error)
	require.Equal(t, DefaultErrorText, snap.Messages[1].Content)
}

func TestCloseWhileAwaitingCancelsSource(t *testing.T) {
	returned := make(chan error, 1)
	src := provider.SourceFunc(func(ctx context.Context, _ string, _ []provider.Turn) (string, error) {
		<-ctx.Done()
		returned <- ctx.Err()
		return "", ctx.Err()
	})
	h := newHarness(t, src)

	require.True(t, h.ctrl.Submit("hello"))
	h.ctrl.Close()

	select {
	case err := <-returned:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("source context was not cancelled")
	}

	snap := h.ctrl.Snapshot()
	require.Equal(t, PhaseClosed, snap.Phase)
	require.Len(t, snap.Messages, 1)
	require.False(t, h.ctrl.Submit("more"))
}

func TestCloseWhileRevealingStopsWrites(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("abcdefgh"))

	require.True(t, h.ctrl.Submit("hello"))
	h.waitRevealing()
	h.clock.Advance(2 * h.sched.Interval())

	h.ctrl.Close()
	h.ctrl.Close()
	closed := h.ctrl.Snapshot()

	h.revealAll()
	after := h.ctrl.Snapshot()
	require.Equal(t, closed.Version, after.Version)
	require.Equal(t, "ab", after.Messages[1].Content)
	require.Equal(t, PhaseClosed, after.Phase)
	require.False(t, after.Typing)
	require.Zero(t, h.clock.Pending())
	require.Zero(t, h.sched.Live())
}

func TestSchedulerCloseEndsRevealWithPartialReply(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("abcdef"))

	require.True(t, h.ctrl.Submit("hello"))
	h.waitRevealing()
	h.clock.Advance(2 * h.sched.Interval())

	h.sched.Close()
	h.waitIdle()

	snap := h.ctrl.Snapshot()
	require.False(t, snap.Typing)
	require.Equal(t, "ab", snap.Messages[1].Content)
	require.False(t, snap.Messages[1].Error)

	// The scheduler is gone, so the next reply cannot be revealed and
	// ends as an error entry.
	require.True(t, h.ctrl.Submit("again"))
	require.Eventually(t, func() bool {
		s := h.ctrl.Snapshot()
		return s.Phase == PhaseIdle && len(s.Messages) == 4
	}, waitFor, time.Millisecond)

	snap = h.ctrl.Snapshot()
	require.True(t, snap.Messages[3].Error)
	require.Equal(t, DefaultErrorText, snap.Messages[3].Content)
}

func TestStoppedHandleEndsReveal(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("abcdef"))

	require.True(t, h.ctrl.Submit("hello"))
	h.waitRevealing()
	h.clock.Advance(h.sched.Interval())

	h.ctrl.mu.Lock()
	handle := h.ctrl.handle
	h.ctrl.mu.Unlock()
	handle.Stop()
	h.waitIdle()

	snap := h.ctrl.Snapshot()
	require.False(t, snap.Typing)
	require.Equal(t, "a", snap.Messages[1].Content)
	require.True(t, h.ctrl.Submit("next"))
}

func TestControllersShareScheduler(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("abcdef"))
	other := NewController(testutil.NewMockSource("uvwxyz"), h.sched)
	t.Cleanup(other.Close)

	require.True(t, h.ctrl.Submit("first"))
	h.waitRevealing()
	require.True(t, other.Submit("second"))
	waitRevealing(t, other)
	require.Equal(t, 2, h.sched.Live())

	h.revealAll()

	for _, tt := range []struct {
		ctrl  *Controller
		reply string
	}{
		{h.ctrl, "abcdef"},
		{other, "uvwxyz"},
	} {
		require.Eventually(t, func() bool {
			return tt.ctrl.Phase() == PhaseIdle
		}, waitFor, time.Millisecond)
		snap := tt.ctrl.Snapshot()
		require.False(t, snap.Typing)
		require.Equal(t, tt.reply, snap.Messages[1].Content)
	}
}

func TestCloseBeforeReplyArrives(t *testing.T) {
	release := make(chan string, 1)
	h := newHarness(t, testutil.GatedSource(release))

	require.True(t, h.ctrl.Submit("hello"))
	h.ctrl.Close()
	release <- "late reply"

	time.Sleep(10 * time.Millisecond)
	h.revealAll()
	require.Len(t, h.ctrl.Snapshot().Messages, 1)
	require.Zero(t, h.sched.Live())
}

func TestSubscribeDeliversInitialAndLatest(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("abc"))

	feed, cancel := h.ctrl.Subscribe()
	defer cancel()

	initial := <-feed
	require.Equal(t, h.ctrl.SessionID(), initial.SessionID)
	require.Equal(t, PhaseIdle, initial.Phase)

	require.True(t, h.ctrl.Submit("hello"))
	h.waitRevealing()
	h.revealAll()

	// Only the newest pending snapshot is kept for a slow reader.
	latest := <-feed
	require.Equal(t, h.ctrl.Snapshot().Version, latest.Version)
	require.Equal(t, "abc", latest.Messages[1].Content)
	require.Greater(t, latest.Version, initial.Version)

	select {
	case extra := <-feed:
		t.Fatalf("unexpected extra snapshot v%d", extra.Version)
	default:
	}
}

func TestSubscribeVersionsIncrease(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("a longer reply to reveal"))
	feed, cancel := h.ctrl.Subscribe()
	defer cancel()

	collected := make(chan []Snapshot, 1)
	go func() {
		var got []Snapshot
		for snap := range feed {
			got = append(got, snap)
		}
		collected <- got
	}()

	require.True(t, h.ctrl.Submit("hello"))
	h.waitRevealing()
	h.revealAll()
	h.ctrl.Close()

	var got []Snapshot
	select {
	case got = <-collected:
	case <-time.After(waitFor):
		t.Fatal("feed was not closed by Close")
	}

	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		require.Greater(t, got[i].Version, got[i-1].Version)
	}
	require.Equal(t, PhaseClosed, got[len(got)-1].Phase)
}

func TestSubscribeCancel(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("x"))

	feed, cancel := h.ctrl.Subscribe()
	<-feed
	cancel()
	cancel()

	_, ok := <-feed
	require.False(t, ok)
	require.True(t, h.ctrl.Submit("still works"))
}

func TestSubscribeAfterClose(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("x"))
	h.ctrl.Close()

	feed, cancel := h.ctrl.Subscribe()
	defer cancel()

	snap, ok := <-feed
	require.True(t, ok)
	require.Equal(t, PhaseClosed, snap.Phase)
	_, ok = <-feed
	require.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t, testutil.NewMockSource("reply"))
	require.True(t, h.ctrl.Submit("hello"))

	snap := h.ctrl.Snapshot()
	snap.Messages[0].Content = "tampered"
	snap.Messages = append(snap.Messages, Message{Content: "extra"})

	fresh := h.ctrl.Snapshot()
	require.Len(t, fresh.Messages, 1)
	require.Equal(t, "hello", fresh.Messages[0].Content)
}

func TestHistoryExcludesErrorsAndIsCapped(t *testing.T) {
	fail := true
	src := testutil.NewMockSource("")
	src.GenerateFunc = func(context.Context, string, []provider.Turn) (string, error) {
		if fail {
			return "", errors.New("nope")
		}
		return "fine", nil
	}
	h := newHarness(t, src, WithHistoryLimit(3))

	require.True(t, h.ctrl.Submit("first"))
	h.waitIdle()

	fail = false
	require.True(t, h.ctrl.Submit("second"))
	h.waitRevealing()
	h.revealAll()
	require.True(t, h.ctrl.Submit("third"))
	h.waitRevealing()
	h.revealAll()

	calls := src.Calls()
	require.Len(t, calls, 3)
	require.Empty(t, calls[0].History)
	require.Equal(t, []provider.Turn{{Role: "user", Content: "first"}}, calls[1].History)
	require.Equal(t, []provider.Turn{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: "fine"},
	}, calls[2].History)
}

func TestMessageTimestampsUseClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	h := newHarness(t, testutil.NewMockSource("ok"), WithClock(func() time.Time { return at }))

	require.True(t, h.ctrl.Submit("hello"))
	h.waitRevealing()
	for _, m := range h.ctrl.Snapshot().Messages {
		require.Equal(t, at, m.CreatedAt)
	}
}

func TestSnapshotHelpers(t *testing.T) {
	snap := Snapshot{
		Phase: PhaseRevealing,
		Messages: []Message{
			{ID: 1, Role: RoleUser, Content: "q1"},
			{ID: 2, Role: RoleAssistant, Content: "a1"},
			{ID: 3, Role: RoleUser, Content: "q2"},
			{ID: 4, Role: RoleAssistant, Content: "a2 partial"},
		},
	}

	rev, ok := snap.Revealing()
	require.True(t, ok)
	require.Equal(t, uint64(4), rev.ID)

	last, ok := snap.LastReply()
	require.True(t, ok)
	require.Equal(t, uint64(2), last.ID)

	snap.Phase = PhaseIdle
	_, ok = snap.Revealing()
	require.False(t, ok)
	last, ok = snap.LastReply()
	require.True(t, ok)
	require.Equal(t, uint64(4), last.ID)

	_, ok = Snapshot{}.LastReply()
	require.False(t, ok)
}
