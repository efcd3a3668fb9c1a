package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/document"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one transcript entry.
type Message struct {
	Role Role
	Text string
	At   time.Time
}

// QAError is returned when a question could not be answered. Notice is
// safe to show to the user as-is.
type QAError struct {
	Question string
	Notice   string
	Err      error
}

func (e *QAError) Error() string {
	return fmt.Sprintf("question %q: %v", e.Question, e.Err)
}

func (e *QAError) Unwrap() error { return e.Err }

func (e *QAError) Is(target error) bool { return target == common.ErrQA }

// TextSource yields the assembled document text, building it on first use.
type TextSource interface {
	Text(ctx context.Context, progress document.Progress) (string, error)
}

// Session is a question-and-answer transcript over the current document
// set. Each question is sent on its own; earlier turns are not replayed.
type Session struct {
	mu         sync.Mutex
	src        TextSource
	gen        llm.Generator
	transcript []Message
	logger     *slog.Logger
	now        func() time.Time
}

func NewSession(src TextSource, gen llm.Generator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{src: src, gen: gen, logger: logger, now: time.Now}
}

// Ask answers one question. On failure the question is retracted from the
// transcript, which is left exactly as it was before the call.
func (s *Session) Ask(ctx context.Context, question string) (Message, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Message{}, fmt.Errorf("empty question: %w", common.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mark := len(s.transcript)
	s.transcript = append(s.transcript, Message{Role: RoleUser, Text: q, At: s.now()})
	rollback := func(notice string, err error) (Message, error) {
		s.transcript = s.transcript[:mark]
		s.logger.Warn("qa.ask.failed", "error", err, "transcript_len", mark)
		return Message{}, &QAError{Question: q, Notice: notice, Err: err}
	}

	start := time.Now()
	text, err := s.src.Text(ctx, document.NoProgress)
	if err != nil {
		if errors.Is(err, common.ErrNoDocuments) {
			return rollback("Add at least one PDF before asking questions.", err)
		}
		return rollback("The documents could not be read: "+err.Error(), err)
	}

	resp, err := s.gen.Generate(ctx, llm.Request{
		Content:           llm.QAContent(text, q),
		SystemInstruction: llm.QAInstruction(),
	})
	if err != nil {
		return rollback("The model could not answer right now. Please try again.", fmt.Errorf("%w: %w", common.ErrBackend, err))
	}
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return rollback("The model returned an empty answer. Please rephrase and try again.", common.ErrEmptyResponse)
	}

	msg := Message{Role: RoleModel, Text: answer, At: s.now()}
	s.transcript = append(s.transcript, msg)
	s.logger.Info("qa.ask.ok",
		"question_len", len(q),
		"answer_len", len(answer),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return msg, nil
}

// Transcript returns a copy of all answered turns in order.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript...)
}

// Reset clears the transcript, e.g. after the document set changed.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
}
