package model

import "time"

// Task is a persisted action item owned by a single principal.
type Task struct {
	ID          int64      `json:"id"`
	OwnerID     string     `json:"-"`
	Title       string     `json:"title"`
	Notes       *string    `json:"notes,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	IsCompleted bool       `json:"isCompleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// HasDueDate reports whether the task carries a due date.
func (t *Task) HasDueDate() bool {
	return t.DueDate != nil && !t.DueDate.IsZero()
}

// CreateCommand is the structured form of a task creation request, either
// submitted directly or produced from free text.
type CreateCommand struct {
	Title   string     `json:"title" validate:"required,max=200"`
	Notes   *string    `json:"notes,omitempty" validate:"omitempty,max=4000"`
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// UpdateCommand replaces the mutable fields of a task.
type UpdateCommand struct {
	ID          int64      `json:"id,omitempty"`
	Title       string     `json:"title" validate:"required,max=200"`
	Notes       *string    `json:"notes,omitempty" validate:"omitempty,max=4000"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	IsCompleted bool       `json:"isCompleted"`
}

// Owner is the identity record a task belongs to.
type Owner struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	GoogleRefreshToken string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
}

// HasCalendarCredential reports whether the owner connected a calendar.
func (o *Owner) HasCalendarCredential() bool {
	return o.GoogleRefreshToken != ""
}
