// Package session holds the per-browser view state of the privacy score page.
//
// State changes only through Reduce. A Store serializes dispatches and stamps
// every fetch with a generation token so the most recent fetch wins.
package session

import (
	"github.com/brojonat/zviewer/service/privacy"
)

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking message shown above the results.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// State is the view state of one session.
type State struct {
	privacy.ScoreState
	Loading        bool                   `json:"loading"`
	Notice         *Notice                `json:"notice,omitempty"`
	Generation     uint64                 `json:"generation"`
	Source         privacy.Source         `json:"source"`
	FallbackReason privacy.FallbackReason `json:"fallback_reason,omitempty"`
}

// Initial returns the state of a new session: idle, showing the demo dataset.
func Initial() State {
	return Reduce(State{}, DemoLoaded{})
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.ScoreState = s.ScoreState.Clone()
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	return out
}

// Action is an event applied to a State by Reduce.
type Action interface {
	isAction()
}

// DemoLoaded replaces the data with the demo dataset and ends any loading.
// A Gen newer than the current generation supersedes fetches in flight, so
// their completions are discarded.
type DemoLoaded struct {
	Gen uint64
}

// FetchStarted marks a new live fetch with generation Gen.
type FetchStarted struct {
	Gen uint64
}

// FetchSucceeded carries the live result of fetch Gen.
type FetchSucceeded struct {
	Gen   uint64
	State privacy.ScoreState
}

// FetchFellBack reports that fetch Gen fell back to the demo dataset.
type FetchFellBack struct {
	Gen    uint64
	Reason privacy.FallbackReason
}

// ValidationFailed reports invalid input. Data is left untouched.
type ValidationFailed struct {
	Message string
}

// NoticeDismissed clears the current notice.
type NoticeDismissed struct{}

func (DemoLoaded) isAction()       {}
func (FetchStarted) isAction()     {}
func (FetchSucceeded) isAction()   {}
func (FetchFellBack) isAction()    {}
func (ValidationFailed) isAction() {}
func (NoticeDismissed) isAction()  {}

// Reduce returns the state that results from applying a to s.
// It never mutates s. Completions whose generation is not the current one
// return s unchanged.
func Reduce(s State, a Action) State {
	next := s.Clone()

	switch a := a.(type) {
	case DemoLoaded:
		next.ScoreState = privacy.DemoState()
		next.Loading = false
		next.Source = privacy.SourceDemo
		next.FallbackReason = privacy.ReasonNone
		if a.Gen > s.Generation {
			next.Generation = a.Gen
		}

	case FetchStarted:
		next.Generation = a.Gen
		next.Loading = true
		next.Transactions = []privacy.Transaction{}
		next.Score = 0
		next.Notice = nil

	case FetchSucceeded:
		if a.Gen != s.Generation {
			return s
		}
		next.ScoreState = a.State.Clone()
		next.Loading = false
		next.Source = privacy.SourceLive
		next.FallbackReason = privacy.ReasonNone

	case FetchFellBack:
		if a.Gen != s.Generation {
			return s
		}
		next.ScoreState = privacy.DemoState()
		next.Loading = false
		next.Source = privacy.SourceDemo
		next.FallbackReason = a.Reason
		next.Notice = &Notice{Level: NoticeWarning, Message: privacy.FallbackNotice}

	case ValidationFailed:
		next.Notice = &Notice{Level: NoticeError, Message: a.Message}

	case NoticeDismissed:
		next.Notice = nil
	}

	return next
}

// HasResults reports whether there is anything to chart or list.
func (s State) HasResults() bool {
	return len(s.Transactions) > 0
}
