package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/callback-scheduler/internal/bookings"
	"github.com/wolfman30/callback-scheduler/internal/intent"
	"github.com/wolfman30/callback-scheduler/internal/messaging/catalog"
	"github.com/wolfman30/callback-scheduler/internal/sessions"
	"github.com/wolfman30/callback-scheduler/internal/temporal"
)

// monday is the reference instant for every scenario.
var monday = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

type sentMessage struct {
	to   string
	text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, to, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to: to, text: text})
	return s.err
}

func (s *recordingSender) Sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type fixture struct {
	driver   *Driver
	sessions *sessions.Store
	bookings *bookings.Service
	sender   *recordingSender
	catalog  *catalog.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return monday }

	store := sessions.NewStore(sessions.NewFilePersister(filepath.Join(dir, "sessions.json")), nil,
		sessions.WithClock(clock))
	bookingStore := bookings.NewFileStore(filepath.Join(dir, "bookings.json"), nil)
	service := bookings.NewService(bookingStore, bookings.NewDetector(bookingStore, 0, nil), nil)
	sender := &recordingSender{}
	cat := catalog.Default()

	d := NewDriver(Deps{
		Sessions:   store,
		Classifier: intent.NewHybrid(nil, nil),
		Scheduler:  service,
		Sender:     sender,
		Templates:  cat,
	}, WithClock(clock))
	return &fixture{driver: d, sessions: store, bookings: service, sender: sender, catalog: cat}
}

// seed puts id into state with an optional patch applied.
func (f *fixture) seed(t *testing.T, id string, state sessions.State, p sessions.Patch) {
	t.Helper()
	f.sessions.GetOrCreate(id, state)
	_, err := f.sessions.Update(context.Background(), id, p)
	require.NoError(t, err)
}

func (f *fixture) book(t *testing.T, id string, date temporal.Date, hour, minute int) {
	t.Helper()
	_, _, err := f.bookings.Book(context.Background(), id, date, temporal.Clock{Hour: hour, Minute: minute}, nil)
	require.NoError(t, err)
}

func tuesday() temporal.Date { return temporal.DateOf(monday).AddDays(1) }

func TestYesInWaitingAsksForCallTime(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateWaitingInitial, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "yes")
	require.NoError(t, err)

	assert.Equal(t, sessions.StateAskingCallTime, out.To)
	assert.Equal(t, EventPositive, out.Event)
	require.Len(t, f.sender.Sent(), 1)
	assert.Equal(t, f.catalog.Get("schedule.ask_call_time", nil), f.sender.Sent()[0].text)
}

func TestNotInterestedAsksForReason(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateWaitingInitial, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "not interested")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateAskingReason, out.To)

	sess, _ := f.sessions.Get("+1")
	assert.True(t, sess.WaitingForFreeText)

	out, err = f.driver.HandleMessage(context.Background(), "+1", "I already have a provider")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateCompleted, out.To)
	sess, _ = f.sessions.Get("+1")
	assert.Equal(t, "I already have a provider", sess.Data["reason"])
	assert.False(t, sess.WaitingForFreeText)
	assert.Nil(t, sess.FinalSchedule)
}

func TestNeutralRepliesKeepClarifying(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateWaitingInitial, sessions.Patch{})

	for i := 1; i <= 3; i++ {
		out, err := f.driver.HandleMessage(context.Background(), "+1", "hmm")
		require.NoError(t, err)
		assert.Equal(t, sessions.StateClarifying, out.To)
	}
	sess, _ := f.sessions.Get("+1")
	assert.Equal(t, "3", sess.Data["clarifications"])

	out, err := f.driver.HandleMessage(context.Background(), "+1", "ok")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateAskingCallTime, out.To)
}

func TestTomorrowAt3pmGoesToConfirmation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateConfirming, out.To)
	assert.Equal(t, EventScheduleComplete, out.Event)

	sess, _ := f.sessions.Get("+1")
	require.NotNil(t, sess.PendingSchedule)
	assert.Equal(t, "03/06/2025", sess.PendingSchedule.Date)
	assert.Equal(t, "15:00", sess.PendingSchedule.Time)
	assert.Equal(t, "2025-06-03T15:00", sess.PendingSchedule.Formatted)
	assert.Equal(t, f.catalog.Get("schedule.confirm", map[string]string{"date": "03/06/2025", "time": "15:00"}), out.Reply)
}

func TestConfirmationBooks(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})
	_, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
	require.NoError(t, err)

	out, err := f.driver.HandleMessage(context.Background(), "+1", "yes please")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateCompleted, out.To)
	require.NotNil(t, out.Booking)

	b, ok, err := f.bookings.Store().Get(context.Background(), "+1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "03/06/2025", b.Date)
	assert.Equal(t, "15:00", b.Time)
	assert.Equal(t, bookings.StatusScheduled, b.Status)

	sess, _ := f.sessions.Get("+1")
	require.NotNil(t, sess.FinalSchedule)
	assert.Nil(t, sess.PendingSchedule)
	assert.Equal(t, "tomorrow at 3pm", sess.FinalSchedule.OriginalText)

	out, err = f.driver.HandleMessage(context.Background(), "+1", "hello?")
	require.NoError(t, err)
	assert.True(t, out.Ignored, "completed conversations are not reopened")
}

func TestConflictRedirectsToCallTime(t *testing.T) {
	f := newFixture(t)
	f.book(t, "+2", tuesday(), 15, 10)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
	require.NoError(t, err)
	assert.Equal(t, EventScheduleConflict, out.Event)
	assert.Equal(t, sessions.StateAskingCallTime, out.To)
	assert.Equal(t, f.catalog.Get("schedule.conflict", map[string]string{"date": "03/06/2025", "time": "15:00"}), out.Reply)

	sess, _ := f.sessions.Get("+1")
	assert.Nil(t, sess.PartialSchedule)
	assert.Nil(t, sess.PendingSchedule)
}

func TestPastTimeIsRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "today at 8am")
	require.NoError(t, err)
	assert.Equal(t, EventSchedulePast, out.Event)
	assert.Equal(t, sessions.StateAskingCallTime, out.To)
}

func TestImmediateBooksWithoutConfirmation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "right now")
	require.NoError(t, err)
	assert.Equal(t, EventScheduleImmediate, out.Event)
	assert.Equal(t, sessions.StateCompleted, out.To)
	assert.Equal(t, f.catalog.Get("schedule.booked_immediate", nil), out.Reply)

	sess, _ := f.sessions.Get("+1")
	require.NotNil(t, sess.FinalSchedule)
	assert.True(t, sess.FinalSchedule.Immediate)
	assert.Equal(t, "02/06/2025", sess.FinalSchedule.Date)
	assert.Equal(t, "10:00", sess.FinalSchedule.Time)
}

func TestPartialScheduleIsCompleted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "friday")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateAskingTime, out.To)
	sess, _ := f.sessions.Get("+1")
	require.NotNil(t, sess.PartialSchedule)
	assert.Equal(t, sessions.KnownDate, sess.PartialSchedule.Known)
	assert.Equal(t, "06/06/2025", sess.PartialSchedule.Date)

	out, err = f.driver.HandleMessage(context.Background(), "+1", "4:30 pm")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateConfirming, out.To)
	sess, _ = f.sessions.Get("+1")
	assert.Nil(t, sess.PartialSchedule)
	require.NotNil(t, sess.PendingSchedule)
	assert.Equal(t, "06/06/2025", sess.PendingSchedule.Date)
	assert.Equal(t, "16:30", sess.PendingSchedule.Time)
}

func TestTimeOnlyThenDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "at 3pm")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateAskingDate, out.To)

	out, err = f.driver.HandleMessage(context.Background(), "+1", "no idea honestly")
	require.NoError(t, err)
	assert.Equal(t, EventUnresolved, out.Event)
	assert.Equal(t, sessions.StateAskingDate, out.To)

	out, err = f.driver.HandleMessage(context.Background(), "+1", "wednesday")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateConfirming, out.To)
	sess, _ := f.sessions.Get("+1")
	assert.Equal(t, "04/06/2025", sess.PendingSchedule.Date)
	assert.Equal(t, "15:00", sess.PendingSchedule.Time)
}

func TestConflictWhileAskingTimeReturnsToDate(t *testing.T) {
	f := newFixture(t)
	f.book(t, "+2", tuesday(), 15, 0)
	f.seed(t, "+1", sessions.StateAskingTime, sessions.Patch{
		PartialSchedule: &sessions.PartialSchedule{Known: sessions.KnownDate, Date: tuesday().String()},
	})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "3pm")
	require.NoError(t, err)
	assert.Equal(t, EventScheduleConflict, out.Event)
	assert.Equal(t, sessions.StateAskingDate, out.To)

	sess, _ := f.sessions.Get("+1")
	require.NotNil(t, sess.PartialSchedule)
	assert.Equal(t, sessions.KnownTime, sess.PartialSchedule.Known)
	assert.Equal(t, "15:00", sess.PartialSchedule.Time)
}

func TestConfirmationRace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})
	_, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
	require.NoError(t, err)

	// Another identifier takes the slot before the confirmation arrives.
	f.book(t, "+2", tuesday(), 15, 5)

	out, err := f.driver.HandleMessage(context.Background(), "+1", "yes")
	require.NoError(t, err)
	assert.Equal(t, EventConfirmConflict, out.Event)
	assert.Equal(t, sessions.StateAskingDate, out.To)

	_, ok, err := f.bookings.Store().Get(context.Background(), "+1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirmationNegativeAndNeutral(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})
	_, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
	require.NoError(t, err)

	out, err := f.driver.HandleMessage(context.Background(), "+1", "maybe")
	require.NoError(t, err)
	assert.Equal(t, EventNeutral, out.Event)
	assert.Equal(t, sessions.StateConfirming, out.To)
	assert.Contains(t, out.Reply, "03/06/2025")

	out, err = f.driver.HandleMessage(context.Background(), "+1", "no")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateAskingCallTime, out.To)
	sess, _ := f.sessions.Get("+1")
	assert.Nil(t, sess.PendingSchedule)
}

func TestConfirmationReplies(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		event  Event
		to     sessions.State
		booked bool
	}{
		{"thumbs down", "👎", EventNegative, sessions.StateAskingCallTime, false},
		{"cross mark", "❌", EventNegative, sessions.StateAskingCallTime, false},
		{"thumbs up", "👍", EventConfirmed, sessions.StateCompleted, true},
		{"yes with condition", "yes, if you want", EventConfirmed, sessions.StateCompleted, true},
		{"sure with hedge", "sure, maybe", EventConfirmed, sessions.StateCompleted, true},
		{"bare reluctance", "if i have to", EventNeutral, sessions.StateConfirming, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})
			_, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
			require.NoError(t, err)

			out, err := f.driver.HandleMessage(context.Background(), "+1", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.event, out.Event)
			assert.Equal(t, tt.to, out.To)

			_, ok, err := f.bookings.Store().Get(context.Background(), "+1")
			require.NoError(t, err)
			assert.Equal(t, tt.booked, ok)
		})
	}
}

func TestAmbiguousConfirmationDefaultsToYes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingCallTime, sessions.Patch{})
	_, err := f.driver.HandleMessage(context.Background(), "+1", "tomorrow at 3pm")
	require.NoError(t, err)

	out, err := f.driver.HandleMessage(context.Background(), "+1", "whatever works for the team")
	require.NoError(t, err)
	assert.Equal(t, EventConfirmed, out.Event)
	assert.Equal(t, sessions.StateCompleted, out.To)
}

func TestOptOutAndRestart(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateAskingDate, sessions.Patch{
		PartialSchedule: &sessions.PartialSchedule{Known: sessions.KnownTime, Time: "15:00"},
	})

	out, err := f.driver.HandleMessage(context.Background(), "+1", "STOP")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateIdle, out.To)
	assert.Equal(t, f.catalog.Get("session.optout", nil), out.Reply)
	sess, _ := f.sessions.Get("+1")
	assert.Nil(t, sess.PartialSchedule)

	out, err = f.driver.HandleMessage(context.Background(), "+1", "stop")
	require.NoError(t, err)
	assert.True(t, out.Ignored, "repeated opt-out does not restart")

	out, err = f.driver.HandleMessage(context.Background(), "+1", "hi again")
	require.NoError(t, err)
	assert.Equal(t, EventRestart, out.Event)
	assert.Equal(t, sessions.StateWaitingInitial, out.To)
	assert.Equal(t, f.catalog.Get("greeting.restart", nil), out.Reply)
}

func TestNewSenderStartsInGreeting(t *testing.T) {
	f := newFixture(t)

	out, err := f.driver.HandleMessage(context.Background(), "+9", "yes")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, sessions.StateGreeting, out.From)
	assert.Equal(t, sessions.StateAskingCallTime, out.To)

	sess, _ := f.sessions.Get("+9")
	assert.Equal(t, 1, sess.Metadata.MessageCount)
}

func TestWelcome(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.driver.Welcome(context.Background(), "+1"))
	sess, ok := f.sessions.Get("+1")
	require.True(t, ok)
	assert.Equal(t, sessions.StateWaitingInitial, sess.State)
	assert.Equal(t, []sentMessage{{to: "+1", text: f.catalog.Get("greeting.welcome", nil)}}, f.sender.Sent())

	require.NoError(t, f.driver.Welcome(context.Background(), "+1"))
	assert.Len(t, f.sender.Sent(), 1, "existing sessions are not re-welcomed")

	f.sender.err = errors.New("transport down")
	require.Error(t, f.driver.Welcome(context.Background(), "+2"))
	assert.False(t, f.sessions.Exists("+2"))
}

func TestNotifyTimeout(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.driver.NotifyTimeout(context.Background(), sessions.Session{Identifier: "+1", State: sessions.StateAskingDate}))
	require.NoError(t, f.driver.NotifyTimeout(context.Background(), sessions.Session{Identifier: "+2", State: sessions.StateIdle}))

	assert.Equal(t, []sentMessage{{to: "+1", text: f.catalog.Get("session.timeout", nil)}}, f.sender.Sent())
}

func TestSendFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "+1", sessions.StateWaitingInitial, sessions.Patch{})
	f.sender.err = errors.New("transport down")

	out, err := f.driver.HandleMessage(context.Background(), "+1", "yes")
	require.NoError(t, err)
	assert.Equal(t, sessions.StateAskingCallTime, out.To)
}
