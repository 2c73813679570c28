// Package conversation runs the per-identifier scheduling dialogue: it turns
// each inbound message into an event, looks up the transition and applies its
// session patch and reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/callback-scheduler/internal/bookings"
	"github.com/wolfman30/callback-scheduler/internal/intent"
	"github.com/wolfman30/callback-scheduler/internal/messaging"
	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
	"github.com/wolfman30/callback-scheduler/internal/sessions"
	"github.com/wolfman30/callback-scheduler/internal/temporal"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

var tracer = otel.Tracer("callback-scheduler/conversation")

const (
	questionInitial  = "initial"
	questionReason   = "reason"
	questionCallTime = "call_time"
	questionDate     = "date"
	questionTime     = "time"
	questionConfirm  = "confirm"

	dataClarifications = "clarifications"
	dataReason         = "reason"
)

// Classifier labels a reply given the kind of question it answers.
type Classifier interface {
	Classify(ctx context.Context, text string, tag intent.ContextTag) intent.Sentiment
}

// Scheduler checks slots and writes bookings.
type Scheduler interface {
	Check(ctx context.Context, date temporal.Date, clock temporal.Clock, exclude string) (bookings.Conflict, error)
	Book(ctx context.Context, identifier string, date temporal.Date, clock temporal.Clock, meta map[string]string) (bookings.Booking, bookings.Conflict, error)
}

// Templates renders reply text.
type Templates interface {
	Get(key string, vars map[string]string) string
}

// Outcome describes what one message did.
type Outcome struct {
	Identifier string
	From       sessions.State
	To         sessions.State
	Event      Event
	Effect     Effect
	Reply      string
	Created    bool
	Ignored    bool
	Booking    *bookings.Booking
}

// Deps are the collaborators a Driver needs.
type Deps struct {
	Sessions   *sessions.Store
	Classifier Classifier
	Analyzer   *intent.Analyzer
	Resolver   *temporal.Resolver
	Scheduler  Scheduler
	Sender     messaging.Sender
	Templates  Templates
	Metrics    *metrics.SchedulerMetrics
	Logger     *logging.Logger
}

// Driver advances conversations one message at a time. Callers must not
// run two messages for the same identifier concurrently; the Dispatcher
// guarantees that.
type Driver struct {
	sessions   *sessions.Store
	classifier Classifier
	analyzer   *intent.Analyzer
	resolver   *temporal.Resolver
	scheduler  Scheduler
	sender     messaging.Sender
	templates  Templates
	metrics    *metrics.SchedulerMetrics
	logger     *logging.Logger
	table      Table
	now        func() time.Time
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithClock overrides the reference instant used to resolve times.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDriver wires a driver. Sessions, Classifier, Scheduler, Sender and
// Templates are required.
func NewDriver(deps Deps, opts ...DriverOption) *Driver {
	if deps.Sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if deps.Classifier == nil {
		panic("conversation: classifier cannot be nil")
	}
	if deps.Scheduler == nil {
		panic("conversation: scheduler cannot be nil")
	}
	if deps.Sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if deps.Templates == nil {
		panic("conversation: templates cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = intent.NewAnalyzer(deps.Logger)
	}
	if deps.Resolver == nil {
		deps.Resolver = temporal.NewResolver(deps.Logger)
	}
	d := &Driver{
		sessions:   deps.Sessions,
		classifier: deps.Classifier,
		analyzer:   deps.Analyzer,
		resolver:   deps.Resolver,
		scheduler:  deps.Scheduler,
		sender:     deps.Sender,
		templates:  deps.Templates,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		table:      Transitions(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// slot is a fully resolved candidate.
type slot struct {
	date      temporal.Date
	clock     temporal.Clock
	immediate bool
}

func (s slot) vars() map[string]string {
	return map[string]string{"date": s.date.String(), "time": s.clock.String()}
}

// turn carries everything derived from one message.
type turn struct {
	sess      sessions.Session
	text      string
	now       time.Time
	candidate *slot
	partial   *sessions.PartialSchedule
	conflict  bookings.Conflict
	booking   *bookings.Booking
}

// HandleMessage processes one inbound message for id. Business outcomes such
// as a past time or a conflict are reported through the Outcome; an error
// means the turn could not be completed.
func (d *Driver) HandleMessage(ctx context.Context, id, text string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "conversation.turn")
	defer span.End()

	sess, created := d.sessions.GetOrCreate(id, sessions.StateGreeting)
	d.sessions.RecordInbound(id)
	out := Outcome{Identifier: id, From: sess.State, To: sess.State, Created: created}
	span.SetAttributes(
		attribute.String("scheduler.identifier", id),
		attribute.String("scheduler.state", string(sess.State)),
	)

	d.observeFeatures(ctx, id, text)

	if sess.State == sessions.StateCompleted {
		d.logger.Debug("ignoring message for completed conversation", "identifier", id)
		out.Ignored = true
		return out, nil
	}

	t := &turn{sess: sess, text: text, now: d.now()}
	ev, err := d.derive(ctx, t)
	if err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("conversation: derive event for %s: %w", id, err)
	}
	out.Event = ev

	tr, ok := d.table.Lookup(sess.State, ev)
	if !ok {
		d.logger.Debug("no transition", "identifier", id, "state", sess.State, "event", ev)
		out.Ignored = true
		return out, nil
	}
	out.Effect = tr.Effect
	span.SetAttributes(attribute.String("scheduler.event", string(ev)), attribute.String("scheduler.to", string(tr.To)))

	patch, key, vars := d.effect(tr, t)
	if _, err := d.sessions.Update(ctx, id, patch); err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("conversation: update session %s: %w", id, err)
	}
	out.To = tr.To
	out.Booking = t.booking
	d.metrics.ObserveTransition(string(sess.State), string(tr.To))
	d.logger.Info("conversation transition",
		"identifier", id, "from", sess.State, "to", tr.To, "event", ev, "effect", tr.Effect)

	out.Reply = d.templates.Get(key, vars)
	d.send(ctx, id, out.Reply)
	return out, nil
}

// Welcome starts a conversation from the outbound side. An identifier that
// already has a session is left alone. If the greeting cannot be sent the
// new session is dropped so a later attempt starts fresh.
func (d *Driver) Welcome(ctx context.Context, id string) error {
	_, created := d.sessions.GetOrCreate(id, sessions.StateWaitingInitial)
	if !created {
		return nil
	}
	if _, err := d.sessions.Update(ctx, id, sessions.Patch{CurrentQuestion: sessions.Ptr(questionInitial)}); err != nil {
		return fmt.Errorf("conversation: welcome %s: %w", id, err)
	}
	if err := d.sender.Send(ctx, id, d.templates.Get("greeting.welcome", nil)); err != nil {
		d.sessions.Delete(id)
		return fmt.Errorf("conversation: welcome %s: %w", id, err)
	}
	return nil
}

// NotifyTimeout tells an identifier its idle session was closed. Opted-out
// identifiers are not messaged.
func (d *Driver) NotifyTimeout(ctx context.Context, s sessions.Session) error {
	if s.State == sessions.StateIdle {
		return nil
	}
	return d.sender.Send(ctx, s.Identifier, d.templates.Get("session.timeout", nil))
}

// ReplyError sends the generic apology used when a turn fails.
func (d *Driver) ReplyError(ctx context.Context, id string) {
	d.send(ctx, id, d.templates.Get("errors.generic", nil))
}

func (d *Driver) send(ctx context.Context, id, text string) {
	if err := d.sender.Send(ctx, id, text); err != nil {
		d.logger.Warn("reply send failed", "identifier", id, "error", err)
	}
}

func (d *Driver) observeFeatures(ctx context.Context, id, text string) {
	f := d.analyzer.Analyze(ctx, text)
	if f.Urgency.Level == intent.UrgencyHigh {
		d.metrics.ObserveFeature("urgency", string(f.Urgency.Level))
		d.logger.Info("urgent message", "identifier", id, "confidence", f.Urgency.Confidence)
	}
	if f.Confusion.Level != intent.LevelNone {
		d.metrics.ObserveFeature("confusion", string(f.Confusion.Level))
	}
	if f.Cancellation.Action != intent.CancelNone {
		d.metrics.ObserveFeature("cancellation", string(f.Cancellation.Action))
	}
	if f.Tone == intent.ToneFrustrated {
		d.metrics.ObserveFeature("tone", string(f.Tone))
	}
}

// derive turns the message into an event for the session's state.
func (d *Driver) derive(ctx context.Context, t *turn) (Event, error) {
	state := t.sess.State
	if state == sessions.StateIdle {
		if intent.IsOptOut(t.text) {
			return "", nil
		}
		return EventRestart, nil
	}
	if intent.IsOptOut(t.text) {
		return EventOptOut, nil
	}

	switch state {
	case sessions.StateGreeting, sessions.StateWaitingInitial, sessions.StateClarifying:
		return d.classify(ctx, t.text, intent.General), nil
	case sessions.StateAskingReason:
		return EventReply, nil
	case sessions.StateAskingCallTime, sessions.StateAskingDate, sessions.StateAskingTime:
		return d.deriveSchedule(ctx, t)
	case sessions.StateConfirming:
		return d.deriveConfirmation(ctx, t)
	}
	return "", nil
}

func (d *Driver) classify(ctx context.Context, text string, tag intent.ContextTag) Event {
	s := d.classifier.Classify(ctx, text, tag)
	d.metrics.ObserveClassification(string(tag), string(s))
	switch s {
	case intent.Positive:
		return EventPositive
	case intent.Negative:
		return EventNegative
	default:
		return EventNeutral
	}
}

// deriveSchedule resolves the message, merges it with any stored partial
// schedule and vets the resulting slot.
func (d *Driver) deriveSchedule(ctx context.Context, t *turn) (Event, error) {
	res := d.resolver.Resolve(t.text, t.now)
	if res.Immediate && res.Complete() {
		return d.bookImmediate(ctx, t, slot{date: *res.Date, clock: *res.Time, immediate: true})
	}
	if res.Complete() {
		return d.vet(ctx, t, slot{date: *res.Date, clock: *res.Time})
	}

	known := t.sess.PartialSchedule
	if res.HasDate && res.Date != nil {
		if clock, ok := partialClock(known); ok {
			return d.vet(ctx, t, slot{date: *res.Date, clock: clock})
		}
		t.partial = &sessions.PartialSchedule{Known: sessions.KnownDate, Date: res.Date.String(), OriginalText: t.text}
		return EventScheduleDateOnly, nil
	}
	if res.HasTime && res.Time != nil {
		if date, ok := partialDate(known); ok {
			return d.vet(ctx, t, slot{date: date, clock: *res.Time})
		}
		t.partial = &sessions.PartialSchedule{Known: sessions.KnownTime, Time: res.Time.String(), OriginalText: t.text}
		return EventScheduleTimeOnly, nil
	}
	return EventUnresolved, nil
}

func partialClock(p *sessions.PartialSchedule) (temporal.Clock, bool) {
	if p == nil || p.Known != sessions.KnownTime {
		return temporal.Clock{}, false
	}
	c, err := temporal.ParseClock(p.Time)
	return c, err == nil
}

func partialDate(p *sessions.PartialSchedule) (temporal.Date, bool) {
	if p == nil || p.Known != sessions.KnownDate {
		return temporal.Date{}, false
	}
	date, err := temporal.ParseDate(p.Date)
	return date, err == nil
}

// vet applies the past-time and conflict checks to a complete slot.
func (d *Driver) vet(ctx context.Context, t *turn, s slot) (Event, error) {
	t.candidate = &s
	if temporal.IsPast(temporal.Join(s.date, s.clock), t.now) {
		return EventSchedulePast, nil
	}
	conflict, err := d.scheduler.Check(ctx, s.date, s.clock, t.sess.Identifier)
	if err != nil {
		return "", err
	}
	if conflict.HasConflict {
		t.conflict = conflict
		d.metrics.ObserveConflict("resolve")
		return EventScheduleConflict, nil
	}
	return EventScheduleComplete, nil
}

func (d *Driver) bookImmediate(ctx context.Context, t *turn, s slot) (Event, error) {
	t.candidate = &s
	b, conflict, err := d.scheduler.Book(ctx, t.sess.Identifier, s.date, s.clock, map[string]string{
		"originalText": t.text,
		"immediate":    "true",
	})
	if errors.Is(err, bookings.ErrConflict) {
		t.conflict = conflict
		d.metrics.ObserveConflict("immediate")
		return EventScheduleConflict, nil
	}
	if err != nil {
		return "", err
	}
	t.booking = &b
	d.metrics.ObserveBooking("immediate")
	return EventScheduleImmediate, nil
}

// deriveConfirmation classifies a yes/no answer and, on yes, re-checks and
// writes the pending booking.
func (d *Driver) deriveConfirmation(ctx context.Context, t *turn) (Event, error) {
	ev := d.classify(ctx, t.text, intent.YesNoQuestion)
	if ev != EventPositive {
		return ev, nil
	}
	pending := t.sess.PendingSchedule
	if pending == nil {
		d.logger.Warn("confirmation without pending schedule", "identifier", t.sess.Identifier)
		return EventNegative, nil
	}
	date, derr := temporal.ParseDate(pending.Date)
	clock, cerr := temporal.ParseClock(pending.Time)
	if derr != nil || cerr != nil {
		d.logger.Warn("malformed pending schedule", "identifier", t.sess.Identifier, "date", pending.Date, "time", pending.Time)
		return EventNegative, nil
	}
	t.candidate = &slot{date: date, clock: clock}

	b, conflict, err := d.scheduler.Book(ctx, t.sess.Identifier, date, clock, map[string]string{
		"originalText": pending.OriginalText,
	})
	if errors.Is(err, bookings.ErrConflict) {
		t.conflict = conflict
		d.metrics.ObserveConflict("confirm")
		return EventConfirmConflict, nil
	}
	if err != nil {
		return "", err
	}
	t.booking = &b
	d.metrics.ObserveBooking("confirmed")
	return EventConfirmed, nil
}

// effect builds the session patch and reply for a transition.
func (d *Driver) effect(tr Transition, t *turn) (sessions.Patch, string, map[string]string) {
	p := sessions.Patch{State: sessions.Ptr(tr.To)}
	var vars map[string]string
	if t.candidate != nil {
		vars = t.candidate.vars()
	}

	switch tr.Effect {
	case EffectAskCallTime:
		p.CurrentQuestion = sessions.Ptr(questionCallTime)
		p.ClearPartial, p.ClearPending = true, true
		return p, "schedule.ask_call_time", nil

	case EffectAskReason:
		p.CurrentQuestion = sessions.Ptr(questionReason)
		p.WaitingForFreeText = sessions.Ptr(true)
		p.FreeTextContext = sessions.Ptr(questionReason)
		return p, "reason.ask", nil

	case EffectClarify:
		n, _ := strconv.Atoi(t.sess.Data[dataClarifications])
		p.CurrentQuestion = sessions.Ptr(questionInitial)
		p.Data = map[string]string{dataClarifications: strconv.Itoa(n + 1)}
		return p, "clarify.initial", nil

	case EffectRecordReason:
		p.Data = map[string]string{dataReason: t.text}
		p.WaitingForFreeText = sessions.Ptr(false)
		p.FreeTextContext = sessions.Ptr("")
		return p, "reason.thanks", nil

	case EffectConfirm:
		s := t.candidate
		p.CurrentQuestion = sessions.Ptr(questionConfirm)
		p.PendingSchedule = &sessions.Schedule{
			Date:         s.date.String(),
			Time:         s.clock.String(),
			Formatted:    temporal.Join(s.date, s.clock).Formatted,
			OriginalText: t.text,
		}
		return p, "schedule.confirm", vars

	case EffectBookedImmediate, EffectBooked:
		s := t.candidate
		final := &sessions.Schedule{
			Date:      s.date.String(),
			Time:      s.clock.String(),
			Formatted: temporal.Join(s.date, s.clock).Formatted,
			Immediate: s.immediate,
		}
		if t.sess.PendingSchedule != nil && !s.immediate {
			final.OriginalText = t.sess.PendingSchedule.OriginalText
		} else {
			final.OriginalText = t.text
		}
		p.FinalSchedule = final
		p.CurrentQuestion = sessions.Ptr("")
		if tr.Effect == EffectBookedImmediate {
			return p, "schedule.booked_immediate", vars
		}
		return p, "schedule.booked", vars

	case EffectRejectPast:
		p.CurrentQuestion = sessions.Ptr(questionCallTime)
		p.ClearPartial, p.ClearPending = true, true
		return p, "schedule.past", vars

	case EffectRejectConflict:
		p.ClearPending = true
		if tr.To == sessions.StateAskingDate && t.candidate != nil {
			// Keep the time so only a new day is needed.
			p.CurrentQuestion = sessions.Ptr(questionDate)
			p.PartialSchedule = &sessions.PartialSchedule{
				Known:        sessions.KnownTime,
				Time:         t.candidate.clock.String(),
				OriginalText: t.text,
			}
		} else {
			p.CurrentQuestion = sessions.Ptr(questionCallTime)
			p.ClearPartial = true
		}
		return p, "schedule.conflict", vars

	case EffectAskTime:
		p.CurrentQuestion = sessions.Ptr(questionTime)
		p.PartialSchedule = t.partial
		return p, "schedule.ask_time", map[string]string{"date": t.partial.Date}

	case EffectAskDate:
		p.CurrentQuestion = sessions.Ptr(questionDate)
		p.PartialSchedule = t.partial
		return p, "schedule.ask_date", map[string]string{"time": t.partial.Time}

	case EffectReprompt:
		return p, "schedule.unresolved", nil

	case EffectReoffer:
		p.CurrentQuestion = sessions.Ptr(questionCallTime)
		p.ClearPending = true
		return p, "schedule.reoffer", nil

	case EffectReconfirm:
		if pending := t.sess.PendingSchedule; pending != nil {
			vars = map[string]string{"date": pending.Date, "time": pending.Time}
		}
		return p, "schedule.reconfirm", vars

	case EffectOptOut:
		p.CurrentQuestion = sessions.Ptr("")
		p.ClearPartial, p.ClearPending = true, true
		p.WaitingForFreeText = sessions.Ptr(false)
		return p, "session.optout", nil

	case EffectRestart:
		p.CurrentQuestion = sessions.Ptr(questionInitial)
		p.DeleteData = []string{dataClarifications}
		return p, "greeting.restart", nil
	}
	return p, "errors.generic", nil
}
