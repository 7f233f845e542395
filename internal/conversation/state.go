package conversation

import (
	"sync"

	"github.com/pkg/errors"

	"mexc-volume-bot/internal/types"
)

// ErrInvalidTransition is returned when an event does not apply to the
// current dialogue state, e.g. a stale interval button.
var ErrInvalidTransition = errors.New("invalid dialogue transition")

type State int

const (
	Idle State = iota
	WaitSymbol
	WaitInterval
	WaitThreshold
	WaitThresholdCustom
	EditInterval
	EditThreshold
	EditThresholdCustom
	WaitMultipleSymbols
	WaitMultipleInterval
)

var stateNames = map[State]string{
	Idle:                 "idle",
	WaitSymbol:           "wait_symbol",
	WaitInterval:         "wait_interval",
	WaitThreshold:        "wait_threshold",
	WaitThresholdCustom:  "wait_threshold_custom",
	EditInterval:         "edit_interval",
	EditThreshold:        "edit_threshold",
	EditThresholdCustom:  "edit_threshold_custom",
	WaitMultipleSymbols:  "wait_multiple_symbols",
	WaitMultipleInterval: "wait_multiple_interval",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Editing reports whether the state belongs to the edit dialogue.
func (s State) Editing() bool {
	return s == EditInterval || s == EditThreshold || s == EditThresholdCustom
}

// AwaitsText reports whether the state expects free text from the operator.
func (s State) AwaitsText() bool {
	switch s {
	case WaitSymbol, WaitMultipleSymbols,
		WaitThreshold, WaitThresholdCustom,
		EditThreshold, EditThresholdCustom:
		return true
	}
	return false
}

type Event int

const (
	StartAdd Event = iota
	StartBulkAdd
	StartEdit
	Cancel
	SymbolEntered
	SymbolsEntered
	IntervalChosen
	ThresholdChosen
	CustomThreshold
	ThresholdEntered
)

var eventNames = map[Event]string{
	StartAdd:         "start_add",
	StartBulkAdd:     "start_bulk_add",
	StartEdit:        "start_edit",
	Cancel:           "cancel",
	SymbolEntered:    "symbol_entered",
	SymbolsEntered:   "symbols_entered",
	IntervalChosen:   "interval_chosen",
	ThresholdChosen:  "threshold_chosen",
	CustomThreshold:  "custom_threshold",
	ThresholdEntered: "threshold_entered",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown"
}

// global events apply from every state and start over with a fresh draft.
var global = map[Event]State{
	StartAdd:     WaitSymbol,
	StartBulkAdd: WaitMultipleSymbols,
	StartEdit:    EditInterval,
	Cancel:       Idle,
}

var transitions = map[State]map[Event]State{
	WaitSymbol: {
		SymbolEntered: WaitInterval,
	},
	WaitInterval: {
		IntervalChosen: WaitThreshold,
	},
	WaitThreshold: {
		ThresholdChosen:  Idle,
		ThresholdEntered: Idle,
		CustomThreshold:  WaitThresholdCustom,
	},
	WaitThresholdCustom: {
		ThresholdEntered: Idle,
	},
	EditInterval: {
		IntervalChosen: EditThreshold,
	},
	EditThreshold: {
		ThresholdChosen:  Idle,
		ThresholdEntered: Idle,
		CustomThreshold:  EditThresholdCustom,
	},
	EditThresholdCustom: {
		ThresholdEntered: Idle,
	},
	WaitMultipleSymbols: {
		SymbolsEntered: WaitMultipleInterval,
	},
	WaitMultipleInterval: {
		IntervalChosen: WaitThreshold,
	},
}

// Next returns the state reached from s on e.
func Next(s State, e Event) (State, error) {
	if next, ok := global[e]; ok {
		return next, nil
	}
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, errors.Wrapf(ErrInvalidTransition, "%s on %s", e, s)
}

// Draft accumulates the answers of a multi-step dialogue.
type Draft struct {
	Symbols  []string
	Interval types.Interval
	EditID   string
}

// Bulk reports whether the draft came from the multi-symbol dialogue.
func (d Draft) Bulk() bool {
	return len(d.Symbols) > 1
}

type Session struct {
	State State
	Draft Draft
}

// Sessions holds the dialogue state of every chat.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[int64]Session)}
}

// Get returns the current session of chatID; an unknown chat is Idle.
func (s *Sessions) Get(chatID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions[chatID]
}

// Apply moves chatID through e, letting mutate record the answer on the
// draft. On an invalid transition the session is left unchanged. The
// returned session carries the final draft even when the dialogue ended.
func (s *Sessions) Apply(chatID int64, e Event, mutate func(d *Draft)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sessions[chatID]
	next, err := Next(current.State, e)
	if err != nil {
		return current, err
	}

	draft := current.Draft
	if _, ok := global[e]; ok {
		draft = Draft{}
	}
	if mutate != nil {
		mutate(&draft)
	}

	result := Session{State: next, Draft: draft}
	if next == Idle {
		delete(s.sessions, chatID)
	} else {
		s.sessions[chatID] = result
	}
	return result, nil
}

// Reset returns chatID to Idle.
func (s *Sessions) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, chatID)
}
