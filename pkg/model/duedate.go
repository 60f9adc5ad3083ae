package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DueDateLayouts are the accepted due date spellings, tried in order.
// Layouts without an offset are read in the caller's location.
var DueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDueDate reads s with the first matching layout and returns it in UTC.
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range DueDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized due date %q", s)
}

// decodeDueDate accepts null, an empty string or a string in one of the
// DueDateLayouts. Dates without an offset are taken as UTC.
func decodeDueDate(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("dueDate must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseDueDate(s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *CreateCommand) UnmarshalJSON(data []byte) error {
	type plain CreateCommand
	aux := struct {
		*plain
		DueDate json.RawMessage `json:"dueDate"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	due, err := decodeDueDate(aux.DueDate)
	if err != nil {
		return err
	}
	c.DueDate = due
	return nil
}

func (c *UpdateCommand) UnmarshalJSON(data []byte) error {
	type plain UpdateCommand
	aux := struct {
		*plain
		DueDate json.RawMessage `json:"dueDate"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	due, err := decodeDueDate(aux.DueDate)
	if err != nil {
		return err
	}
	c.DueDate = due
	return nil
}
