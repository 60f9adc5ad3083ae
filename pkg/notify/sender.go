// Package notify delivers reminder notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harrisonrobin/clarity/pkg/logger"
)

// Sender delivers one reminder to one recipient.
type Sender interface {
	Send(ctx context.Context, email, taskTitle string, dueDate time.Time) error
}

// LogSender writes reminders to the log and optionally to Out. It stands in
// for a mail transport.
type LogSender struct {
	Out      io.Writer
	Location *time.Location
}

func NewLogSender(out io.Writer, loc *time.Location) *LogSender {
	if loc == nil {
		loc = time.UTC
	}
	return &LogSender{Out: out, Location: loc}
}

// Message renders the reminder text.
func Message(email, taskTitle string, dueDate time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("--- TASK REMINDER ---\n")
	fmt.Fprintf(&b, "To: %s\n", email)
	fmt.Fprintf(&b, "Subject: Reminder: %s\n\n", taskTitle)
	b.WriteString("Hi,\n\n")
	fmt.Fprintf(&b, "This is a reminder that your task '%s' is due at %s.\n\n",
		taskTitle, dueDate.In(loc).Format("2006-01-02 15:04 MST"))
	b.WriteString("Thank you,\nClarity\n")
	return b.String()
}

func (s *LogSender) Send(ctx context.Context, email, taskTitle string, dueDate time.Time) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("notify: recipient email is empty")
	}
	msg := Message(email, taskTitle, dueDate, s.Location)
	logger.FromContext(ctx).Info("Sending task reminder", "to", email, "title", taskTitle, "due_date", dueDate.UTC())
	if s.Out != nil {
		if _, err := io.WriteString(s.Out, msg); err != nil {
			return fmt.Errorf("notify: write reminder: %w", err)
		}
	}
	return nil
}
