// Package nlp turns free-form text into a task creation command using an
// external text generation service.
package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/model"
)

var (
	// ErrServiceUnavailable means the generation call failed or was rejected.
	ErrServiceUnavailable = errors.New("text generation service unavailable")
	// ErrEmptyReply means the service answered with no text.
	ErrEmptyReply = errors.New("empty reply from text generation service")
	// ErrMalformedReply means the reply was not a JSON object after fence stripping.
	ErrMalformedReply = errors.New("reply is not valid task JSON")
	// ErrInvalidCommand means the reply parsed but carried no usable title.
	ErrInvalidCommand = errors.New("reply has no task title")
)

const SystemPrompt = `You are a task processing assistant. Convert the user's text into a JSON object with these exact fields:
{
  "Title": "string - brief task title",
  "Notes": "string or null - additional details",
  "DueDate": "string or null - ISO 8601 format (YYYY-MM-DDTHH:mm:ssZ)"
}

Rules:
- Respond ONLY with valid JSON
- Use null for empty fields
- Extract meaningful title from the text
- If date mentioned, convert to ISO format
- If no date mentioned, use null for DueDate`

// reply keeps Notes and DueDate raw so a value of the wrong type reads as
// absent instead of failing the whole reply.
type reply struct {
	Title   string          `json:"Title"`
	Notes   json.RawMessage `json:"Notes"`
	DueDate json.RawMessage `json:"DueDate"`
}

// Normalizer converts free text into a CreateCommand with one call to a
// TextGenerator. It never retries.
type Normalizer struct {
	gen     TextGenerator
	now     func() time.Time
	loc     *time.Location
	timeout time.Duration
}

type Option func(*Normalizer)

// WithClock sets the reference "current date" sent to the model.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLocation sets the zone used for the reference date and for due dates
// returned without an offset.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithTimeout bounds the generation call.
func WithTimeout(d time.Duration) Option {
	return func(n *Normalizer) { n.timeout = d }
}

func NewNormalizer(gen TextGenerator, opts ...Option) *Normalizer {
	n := &Normalizer{gen: gen, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// UserPrompt renders the per-request prompt including the reference date.
func (n *Normalizer) UserPrompt(text string) string {
	return fmt.Sprintf("Today is %s. Convert this text to task JSON: %s", n.now().In(n.loc).Format("2006-01-02"), text)
}

// Normalize returns a command with a non-empty title, or one of the package
// errors. Every error means "no command produced" and is recoverable.
func (n *Normalizer) Normalize(ctx context.Context, text string) (*model.CreateCommand, error) {
	log := logger.FromContext(ctx).With("component", "nlp")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: input text is empty", ErrInvalidCommand)
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	log.Debug("Normalizing text", "text", text)
	raw, err := n.gen.Complete(ctx, SystemPrompt, n.UserPrompt(text))
	if err != nil {
		log.Error("Text generation call failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	cmd, err := n.parse(raw)
	if err != nil {
		log.Warn("Could not interpret model reply", "reply", raw, "error", err)
		return nil, err
	}
	log.Info("Interpreted text as task", "title", cmd.Title, "has_notes", cmd.Notes != nil, "due_date", cmd.DueDate)
	return cmd, nil
}

func (n *Normalizer) parse(raw string) (*model.CreateCommand, error) {
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		return nil, ErrEmptyReply
	}

	var r reply
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	cmd := &model.CreateCommand{Title: r.Title}
	if notes, ok := rawString(r.Notes); ok {
		cmd.Notes = &notes
	}
	if due, ok := rawString(r.DueDate); ok {
		cmd.DueDate = n.parseDueDate(due)
	}
	cmd.Normalize()
	if cmd.Title == "" {
		return nil, ErrInvalidCommand
	}
	return cmd, nil
}

func (n *Normalizer) parseDueDate(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := model.ParseDueDate(s, n.loc)
	if err != nil {
		return nil
	}
	return &t
}

// rawString reports the value of raw when it is a JSON string.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// StripCodeFence removes a surrounding ``` or ```json fence and whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
