package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on an engine after Close.
var ErrClosed = errors.New("conversation: engine closed")

// Deps are the engine's collaborators. All are required.
type Deps struct {
	History  HistorySource
	Answerer Answerer
	Clearer  HistoryClearer
	Recorder PairRecorder
	Tokens   TokenSource
}

// Options tune engine behavior. Zero values select production defaults.
type Options struct {
	// Clock supplies timestamps. Defaults to time.Now.
	Clock func() time.Time
	// NewID supplies message ids. Defaults to uuid.NewString.
	NewID func() string
	// SessionID tags messages created in this live session.
	SessionID string
	// GroupID scopes answering to a document group. Opaque to the engine.
	GroupID string
}

// Engine owns the ordered conversation log and the presentation state around
// it: the in-flight turn guard, the one-shot demo sweep, and the engagement
// survey flags. All methods are safe for concurrent use.
type Engine struct {
	deps Deps

	clock     func() time.Time
	newID     func() string
	sessionID string
	groupID   string

	mu              sync.Mutex
	messages        []Message
	inFlight        bool
	initialLoad     bool
	sweptDemo       bool
	surveyVisible   bool
	surveySubmitted bool
	closed          bool
}

// New creates an engine seeded with a single assistant greeting.
// The log stays in this state until Restore replaces it.
func New(deps Deps, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	e := &Engine{
		deps:        deps,
		clock:       opts.Clock,
		newID:       opts.NewID,
		sessionID:   opts.SessionID,
		groupID:     opts.GroupID,
		initialLoad: true,
	}
	e.messages = []Message{e.greeting()}
	return e
}

func (e *Engine) greeting() Message {
	now := e.clock()
	return Message{
		ID:          e.newID(),
		Role:        RoleAssistant,
		Text:        GreetingText,
		CreatedAt:   now,
		DisplayTime: now.Format(displayTimeLayout),
		SessionID:   e.sessionID,
	}
}

// Restore replaces the log wholesale from persisted history. Without a
// credential it resets to the single greeting. An empty or failed remote
// load degrades to the fixed demo transcript; it is never surfaced as an
// error. N restored pairs become 2N messages with empty session ids.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	if e.deps.Tokens.Token() == "" {
		e.commitLog([]Message{e.greeting()})
		return nil
	}

	logs, err := e.deps.History.ListLogs(ctx)
	if err != nil || len(logs) == 0 {
		if err != nil {
			slog.Debug("history load failed, using demo transcript", "error", err)
		}
		e.commitLog(demoTranscript(e.clock()))
		return nil
	}

	restored := make([]Message, 0, 2*len(logs))
	for _, l := range logs {
		ts := l.CreatedAt
		if ts.IsZero() {
			ts = e.clock()
		}
		display := ts.Format(displayTimeLayout)
		restored = append(restored,
			Message{
				ID:          l.ID + "-q",
				Role:        RoleUser,
				Text:        l.Question,
				CreatedAt:   ts,
				DisplayTime: display,
				SessionID:   "",
			},
			Message{
				ID:          l.ID + "-a",
				Role:        RoleAssistant,
				Text:        l.Answer,
				CreatedAt:   ts,
				DisplayTime: display,
				SessionID:   "",
			},
		)
	}
	e.commitLog(restored)
	return nil
}

// commitLog swaps in a replacement log and marks the initial load complete.
func (e *Engine) commitLog(msgs []Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.messages = msgs
	e.initialLoad = false
}

// Sweep collapses the log to a single fresh greeting if any message carries
// the demo sentinel session id. It fires at most once per engine lifetime
// and reports whether it collapsed anything.
func (e *Engine) Sweep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepLocked()
}

func (e *Engine) sweepLocked() bool {
	if e.closed || e.sweptDemo {
		return false
	}
	hasDemo := false
	for _, m := range e.messages {
		if m.SessionID == DemoSessionID {
			hasDemo = true
			break
		}
	}
	if !hasDemo {
		return false
	}
	e.messages = []Message{e.greeting()}
	e.sweptDemo = true
	return true
}

// SubmitTurn runs one question/answer exchange. Blank input and submissions
// while a turn is in flight are no-ops. The user message is appended before
// the network call; the assistant reply (or a fixed fallback/error text)
// lands after it. The completed pair is persisted best-effort.
func (e *Engine) SubmitTurn(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.inFlight {
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.surveyVisible = false

	now := e.clock()
	userMsg := Message{
		ID:          e.newID(),
		Role:        RoleUser,
		Text:        input,
		CreatedAt:   now,
		DisplayTime: now.Format(displayTimeLayout),
		SessionID:   e.sessionID,
	}
	e.messages = append(e.messages, userMsg)
	e.mu.Unlock()

	var answer string
	var turnErr error
	if e.deps.Tokens.Token() == "" {
		turnErr = fmt.Errorf("no credential present")
	} else {
		resp, err := e.deps.Answerer.Answer(ctx, AnswerRequest{
			Question: input,
			TopK:     DefaultTopK,
			GroupID:  e.groupID,
		})
		if err != nil {
			turnErr = err
		} else {
			answer = resp.Answer
			if answer == "" {
				answer = FallbackText
			}
		}
	}

	pair := QAPair{Question: input, SessionID: e.sessionID}
	text := answer
	if turnErr != nil {
		slog.Debug("turn failed", "error", turnErr)
		text = ErrorText
		pair.Answer = failedAnswerRecord
		pair.IsFailed = true
	} else {
		pair.Answer = answer
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	replyNow := e.clock()
	e.messages = append(e.messages, Message{
		ID:          e.newID(),
		Role:        RoleAssistant,
		Text:        text,
		CreatedAt:   replyNow,
		DisplayTime: replyNow.Format(displayTimeLayout),
		SessionID:   e.sessionID,
	})
	e.maybeTriggerSurveyLocked()
	e.inFlight = false
	e.mu.Unlock()

	if err := e.deps.Recorder.RecordPair(ctx, pair); err != nil {
		slog.Debug("recording turn failed", "error", err)
	}
	return nil
}

func (e *Engine) maybeTriggerSurveyLocked() {
	if len(e.messages) == 0 {
		return
	}
	last := e.messages[len(e.messages)-1]
	if ShouldTriggerSurvey(len(e.messages), last.Role, e.surveyVisible, e.surveySubmitted) {
		e.surveyVisible = true
	}
}

// ClearHistory deletes persisted pairs (errors swallowed) and resets the log
// to a single "cleared" notice with an empty session id. Both survey flags
// reset regardless of prior state.
func (e *Engine) ClearHistory(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	if err := e.deps.Clearer.ClearLogs(ctx); err != nil {
		slog.Debug("clearing remote history failed", "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	now := e.clock()
	e.messages = []Message{{
		ID:          e.newID(),
		Role:        RoleAssistant,
		Text:        ClearedText,
		CreatedAt:   now,
		DisplayTime: now.Format(displayTimeLayout),
		SessionID:   "",
	}}
	e.surveySubmitted = false
	e.surveyVisible = false
	return nil
}

// DismissSurvey hides the survey without marking it submitted; it may
// trigger again at a later interval.
func (e *Engine) DismissSurvey() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surveyVisible = false
}

// CompleteSurvey marks the survey submitted for the rest of the session and
// hides it.
func (e *Engine) CompleteSurvey() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surveySubmitted = true
	e.surveyVisible = false
}

// Close disposes the engine. Subsequent mutations are rejected.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Messages returns a copy of the current log in insertion order.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// InFlight reports whether a turn is currently awaiting its answer.
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// InitialLoad reports whether the first history restore is still pending.
func (e *Engine) InitialLoad() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialLoad
}

// SurveyVisible reports whether the engagement survey should be shown.
func (e *Engine) SurveyVisible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surveyVisible
}

// SurveySubmitted reports whether the survey was submitted this session.
func (e *Engine) SurveySubmitted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surveySubmitted
}
