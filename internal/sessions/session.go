// Package sessions keeps per-identifier conversation state in memory and
// mirrors it to durable storage through a debounced batch writer.
package sessions

import (
	"errors"
	"maps"
	"time"
)

var (
	// ErrUnknownSession is returned when updating an identifier with no session.
	ErrUnknownSession = errors.New("sessions: unknown session")
	// ErrInvalidPatch is returned when a patch would break a session invariant.
	ErrInvalidPatch = errors.New("sessions: invalid patch")
)

// State is a conversation state.
type State string

const (
	StateIdle           State = "IDLE"
	StateGreeting       State = "GREETING"
	StateWaitingInitial State = "WAITING_INITIAL_RESPONSE"
	StateAskingReason   State = "ASKING_REASON"
	StateAskingCallTime State = "ASKING_CALL_TIME"
	StateAskingDate     State = "ASKING_DATE"
	StateAskingTime     State = "ASKING_TIME"
	StateConfirming     State = "CONFIRMING_SCHEDULE"
	StateCompleted      State = "COMPLETED"
	StateClarifying     State = "CLARIFYING_RESPONSE"
)

// Terminal reports whether no further scheduling happens in s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateIdle
}

// Known tells which half of a partial schedule is present.
type Known string

const (
	KnownDate Known = "date"
	KnownTime Known = "time"
)

// PartialSchedule holds a date or a time awaiting its complement.
type PartialSchedule struct {
	Known        Known  `json:"known"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
	OriginalText string `json:"originalText,omitempty"`
}

// Schedule is a fully resolved slot, either pending confirmation or final.
type Schedule struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	Formatted    string `json:"formatted,omitempty"`
	Immediate    bool   `json:"immediate,omitempty"`
	OriginalText string `json:"originalText,omitempty"`
}

// Metadata counts persistence and traffic for a session.
type Metadata struct {
	SaveCount    int `json:"saveCount"`
	MessageCount int `json:"messageCount"`
}

// Session is the conversation record for one identifier.
type Session struct {
	Identifier         string            `json:"identifier"`
	State              State             `json:"state"`
	CurrentQuestion    string            `json:"currentQuestion,omitempty"`
	Data               map[string]string `json:"data"`
	CreatedAt          time.Time         `json:"createdAt"`
	LastActivity       time.Time         `json:"lastActivity"`
	WaitingForFreeText bool              `json:"waitingForFreeText"`
	FreeTextContext    string            `json:"freeTextContext,omitempty"`
	PartialSchedule    *PartialSchedule  `json:"partialSchedule,omitempty"`
	PendingSchedule    *Schedule         `json:"pendingSchedule,omitempty"`
	FinalSchedule      *Schedule         `json:"finalSchedule,omitempty"`
	Metadata           Metadata          `json:"metadata"`
}

// Clone returns a deep copy so callers never alias the store's record.
func (s *Session) Clone() Session {
	out := *s
	out.Data = maps.Clone(s.Data)
	if out.Data == nil {
		out.Data = map[string]string{}
	}
	if s.PartialSchedule != nil {
		p := *s.PartialSchedule
		out.PartialSchedule = &p
	}
	if s.PendingSchedule != nil {
		p := *s.PendingSchedule
		out.PendingSchedule = &p
	}
	if s.FinalSchedule != nil {
		f := *s.FinalSchedule
		out.FinalSchedule = &f
	}
	return out
}

// Reason labels why a session became dirty.
type Reason string

const (
	ReasonStateChange    Reason = "state_change"
	ReasonCompletion     Reason = "completion"
	ReasonQuestionChange Reason = "question_change"
	ReasonDataUpdate     Reason = "data_update"
	ReasonFreeTextChange Reason = "free_text_change"
	ReasonActivity       Reason = "activity"
	ReasonExpiry         Reason = "expiry"
)

// synchronous reasons bypass the debounce delay.
func (r Reason) synchronous() bool {
	return r == ReasonStateChange || r == ReasonCompletion
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	State              *State
	CurrentQuestion    *string
	Data               map[string]string
	DeleteData         []string
	WaitingForFreeText *bool
	FreeTextContext    *string
	PartialSchedule    *PartialSchedule
	ClearPartial       bool
	PendingSchedule    *Schedule
	ClearPending       bool
	FinalSchedule      *Schedule
}

func (p Patch) validate(current *Session) error {
	if p.PartialSchedule != nil && p.PendingSchedule != nil {
		return errors.Join(ErrInvalidPatch, errors.New("partial and pending schedule are mutually exclusive"))
	}
	if p.FinalSchedule != nil {
		next := current.State
		if p.State != nil {
			next = *p.State
		}
		if next != StateCompleted {
			return errors.Join(ErrInvalidPatch, errors.New("final schedule requires COMPLETED state"))
		}
	}
	return nil
}

// apply merges p into s and returns the reason derived from what changed.
func (p Patch) apply(s *Session) Reason {
	reason := ReasonActivity
	lower := func(r Reason) {
		if reason == ReasonActivity {
			reason = r
		}
	}

	if p.State != nil && *p.State != s.State {
		s.State = *p.State
		if s.State == StateCompleted {
			reason = ReasonCompletion
		} else {
			reason = ReasonStateChange
		}
	}
	if p.CurrentQuestion != nil && *p.CurrentQuestion != s.CurrentQuestion {
		s.CurrentQuestion = *p.CurrentQuestion
		lower(ReasonQuestionChange)
	}
	if len(p.Data) > 0 || len(p.DeleteData) > 0 {
		if s.Data == nil {
			s.Data = map[string]string{}
		}
		maps.Copy(s.Data, p.Data)
		for _, k := range p.DeleteData {
			delete(s.Data, k)
		}
		lower(ReasonDataUpdate)
	}
	if p.WaitingForFreeText != nil && *p.WaitingForFreeText != s.WaitingForFreeText {
		s.WaitingForFreeText = *p.WaitingForFreeText
		lower(ReasonFreeTextChange)
	}
	if p.FreeTextContext != nil {
		s.FreeTextContext = *p.FreeTextContext
	}

	if p.ClearPartial {
		s.PartialSchedule = nil
	}
	if p.ClearPending {
		s.PendingSchedule = nil
	}
	if p.PartialSchedule != nil {
		ps := *p.PartialSchedule
		s.PartialSchedule, s.PendingSchedule = &ps, nil
	}
	if p.PendingSchedule != nil {
		ps := *p.PendingSchedule
		s.PendingSchedule, s.PartialSchedule = &ps, nil
	}
	if p.FinalSchedule != nil {
		fs := *p.FinalSchedule
		s.FinalSchedule = &fs
		s.PartialSchedule, s.PendingSchedule = nil, nil
	}
	return reason
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }
