// Package google mirrors tasks into a Google Calendar on a best-effort basis.
package google

import (
	"context"
	"errors"
	"time"

	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/model"
	"github.com/harrisonrobin/clarity/pkg/store"
)

// DefaultCalendarID is the owner's primary calendar.
const DefaultCalendarID = "primary"

type SkipReason string

const (
	OwnerNotFound SkipReason = "owner_not_found"
	NoCredential  SkipReason = "no_credential"
	ProviderError SkipReason = "provider_error"
)

// SyncOutcome is the result of one sync attempt. Err keeps the provider cause
// for logging.
type SyncOutcome struct {
	Synced  bool
	EventID string
	Reason  SkipReason
	Err     error
}

func (o SyncOutcome) String() string {
	if o.Synced {
		return "synced"
	}
	return "skipped"
}

type OwnerFinder interface {
	FindOwnerByID(ctx context.Context, id string) (*model.Owner, error)
}

// Connector creates calendar events for owners that granted calendar access.
type Connector struct {
	owners     OwnerFinder
	provider   Provider
	calendarID string
	timeout    time.Duration
}

func NewConnector(owners OwnerFinder, provider Provider, calendarID string, timeout time.Duration) *Connector {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	return &Connector{owners: owners, provider: provider, calendarID: calendarID, timeout: timeout}
}

type syncOptions struct {
	taskID int64
}

type SyncOption func(*syncOptions)

// WithTaskID tags the event with the task it mirrors.
func WithTaskID(id int64) SyncOption {
	return func(o *syncOptions) { o.taskID = id }
}

// SyncEvent never returns an error; every failure is a skipped outcome.
func (c *Connector) SyncEvent(ctx context.Context, ownerID, title string, notes *string, start, end time.Time, opts ...SyncOption) SyncOutcome {
	log := logger.FromContext(ctx).With("component", "calendar", "owner_id", ownerID)
	var so syncOptions
	for _, opt := range opts {
		opt(&so)
	}

	owner, err := c.owners.FindOwnerByID(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("Owner lookup failed", "error", err)
			return SyncOutcome{Reason: OwnerNotFound, Err: err}
		}
		log.Warn("Owner not found, skipping calendar event")
		return SyncOutcome{Reason: OwnerNotFound}
	}
	if !owner.HasCalendarCredential() {
		log.Info("Owner has no calendar credential, skipping calendar event", "email", owner.Email)
		return SyncOutcome{Reason: NoCredential}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tok, err := c.provider.Exchange(ctx, owner.GoogleRefreshToken)
	if err != nil {
		log.Error("Calendar credential exchange failed", "error", err)
		return SyncOutcome{Reason: ProviderError, Err: err}
	}
	created, err := c.provider.InsertEvent(ctx, tok, c.calendarID, NewEvent(so.taskID, title, notes, start, end))
	if err != nil {
		log.Error("Calendar event creation failed", "title", title, "error", err)
		return SyncOutcome{Reason: ProviderError, Err: err}
	}
	log.Info("Created calendar event", "title", title, "event_id", created.Id)
	return SyncOutcome{Synced: true, EventID: created.Id}
}
