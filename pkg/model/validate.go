package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks a command rejected before it reaches the store.
var ErrValidation = errors.New("validation failed")

// MaxDueDateHorizon bounds how far in the future a due date may lie.
const MaxDueDateHorizon = 100 * 365 * 24 * time.Hour

var earliestDueDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Normalize trims the free-form fields of the command in place, drops blank
// notes and converts the due date to UTC.
func (c *CreateCommand) Normalize() {
	c.Title = strings.TrimSpace(c.Title)
	c.Notes = trimNotes(c.Notes)
	c.DueDate = toUTC(c.DueDate)
}

// Validate checks field constraints and the plausible due date range
// relative to now.
func (c *CreateCommand) Validate(now time.Time) error {
	c.Normalize()
	if err := getValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	return checkDueDate(c.DueDate, now)
}

func (c *UpdateCommand) Validate(now time.Time) error {
	c.Title = strings.TrimSpace(c.Title)
	c.Notes = trimNotes(c.Notes)
	c.DueDate = toUTC(c.DueDate)
	if err := getValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	return checkDueDate(c.DueDate, now)
}

func checkDueDate(due *time.Time, now time.Time) error {
	if due == nil {
		return nil
	}
	if due.Before(earliestDueDate) || due.After(now.Add(MaxDueDateHorizon)) {
		return fmt.Errorf("%w: dueDate %s is out of range", ErrValidation, due.Format(time.RFC3339))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	s := strings.TrimSpace(*notes)
	if s == "" {
		return nil
	}
	return &s
}

func toUTC(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
