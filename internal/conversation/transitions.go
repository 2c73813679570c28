package conversation

import (
	"maps"
	"sort"

	"github.com/wolfman30/callback-scheduler/internal/sessions"
)

// Event is what a message amounted to in the current state.
type Event string

const (
	EventPositive          Event = "positive"
	EventNegative          Event = "negative"
	EventNeutral           Event = "neutral"
	EventReply             Event = "reply"
	EventScheduleComplete  Event = "schedule_complete"
	EventScheduleImmediate Event = "schedule_immediate"
	EventSchedulePast      Event = "schedule_past"
	EventScheduleConflict  Event = "schedule_conflict"
	EventScheduleDateOnly  Event = "schedule_date_only"
	EventScheduleTimeOnly  Event = "schedule_time_only"
	EventUnresolved        Event = "unresolved"
	EventConfirmed         Event = "confirmed"
	EventConfirmConflict   Event = "confirm_conflict"
	EventOptOut            Event = "opt_out"
	EventRestart           Event = "restart"
)

// Effect names the session patch and reply applied on a transition.
type Effect string

const (
	EffectAskCallTime     Effect = "ask_call_time"
	EffectAskReason       Effect = "ask_reason"
	EffectClarify         Effect = "clarify"
	EffectRecordReason    Effect = "record_reason"
	EffectConfirm         Effect = "confirm"
	EffectBookedImmediate Effect = "booked_immediate"
	EffectRejectPast      Effect = "reject_past"
	EffectRejectConflict  Effect = "reject_conflict"
	EffectAskTime         Effect = "ask_time"
	EffectAskDate         Effect = "ask_date"
	EffectReprompt        Effect = "reprompt"
	EffectBooked          Effect = "booked"
	EffectReoffer         Effect = "reoffer"
	EffectReconfirm       Effect = "reconfirm"
	EffectOptOut          Effect = "opt_out"
	EffectRestart         Effect = "restart"
)

// Transition is the target of a (state, event) pair.
type Transition struct {
	To     sessions.State
	Effect Effect
}

// Table maps each state and event to a transition. Pairs that are absent
// are ignored by the driver.
type Table map[sessions.State]map[Event]Transition

// Lookup finds the transition for s on e.
func (t Table) Lookup(s sessions.State, e Event) (Transition, bool) {
	row, ok := t[s]
	if !ok {
		return Transition{}, false
	}
	tr, ok := row[e]
	return tr, ok
}

// Events lists the events s reacts to, sorted.
func (t Table) Events(s sessions.State) []Event {
	out := make([]Event, 0, len(t[s]))
	for e := range t[s] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transitions returns the conversation state machine.
func Transitions() Table {
	opening := map[Event]Transition{
		EventPositive: {sessions.StateAskingCallTime, EffectAskCallTime},
		EventNegative: {sessions.StateAskingReason, EffectAskReason},
		EventNeutral:  {sessions.StateClarifying, EffectClarify},
	}
	t := Table{
		sessions.StateGreeting:       maps.Clone(opening),
		sessions.StateWaitingInitial: maps.Clone(opening),
		sessions.StateClarifying:     maps.Clone(opening),
		sessions.StateAskingReason: {
			EventReply: {sessions.StateCompleted, EffectRecordReason},
		},
		sessions.StateAskingCallTime: {
			EventScheduleComplete:  {sessions.StateConfirming, EffectConfirm},
			EventScheduleImmediate: {sessions.StateCompleted, EffectBookedImmediate},
			EventSchedulePast:      {sessions.StateAskingCallTime, EffectRejectPast},
			EventScheduleConflict:  {sessions.StateAskingCallTime, EffectRejectConflict},
			EventScheduleDateOnly:  {sessions.StateAskingTime, EffectAskTime},
			EventScheduleTimeOnly:  {sessions.StateAskingDate, EffectAskDate},
			EventUnresolved:        {sessions.StateAskingCallTime, EffectReprompt},
		},
		sessions.StateAskingDate: {
			EventScheduleComplete:  {sessions.StateConfirming, EffectConfirm},
			EventScheduleImmediate: {sessions.StateCompleted, EffectBookedImmediate},
			EventSchedulePast:      {sessions.StateAskingCallTime, EffectRejectPast},
			EventScheduleConflict:  {sessions.StateAskingCallTime, EffectRejectConflict},
			EventScheduleDateOnly:  {sessions.StateAskingTime, EffectAskTime},
			EventScheduleTimeOnly:  {sessions.StateAskingDate, EffectAskDate},
			EventUnresolved:        {sessions.StateAskingDate, EffectReprompt},
		},
		sessions.StateAskingTime: {
			EventScheduleComplete:  {sessions.StateConfirming, EffectConfirm},
			EventScheduleImmediate: {sessions.StateCompleted, EffectBookedImmediate},
			EventSchedulePast:      {sessions.StateAskingCallTime, EffectRejectPast},
			EventScheduleConflict:  {sessions.StateAskingDate, EffectRejectConflict},
			EventScheduleDateOnly:  {sessions.StateAskingTime, EffectAskTime},
			EventScheduleTimeOnly:  {sessions.StateAskingDate, EffectAskDate},
			EventUnresolved:        {sessions.StateAskingTime, EffectReprompt},
		},
		sessions.StateConfirming: {
			EventConfirmed:       {sessions.StateCompleted, EffectBooked},
			EventConfirmConflict: {sessions.StateAskingDate, EffectRejectConflict},
			EventNegative:        {sessions.StateAskingCallTime, EffectReoffer},
			EventNeutral:         {sessions.StateConfirming, EffectReconfirm},
		},
		sessions.StateIdle: {
			EventRestart: {sessions.StateWaitingInitial, EffectRestart},
		},
	}
	for state, row := range t {
		if !state.Terminal() {
			row[EventOptOut] = Transition{sessions.StateIdle, EffectOptOut}
		}
	}
	return t
}
