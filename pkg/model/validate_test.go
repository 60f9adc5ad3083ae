package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCommandValidate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should_accept_title_only", func(t *testing.T) {
		cmd := CreateCommand{Title: "  Buy milk  "}
		require.NoError(t, cmd.Validate(now))
		assert.Equal(t, "Buy milk", cmd.Title)
		assert.Nil(t, cmd.Notes)
		assert.Nil(t, cmd.DueDate)
	})

	t.Run("Should_reject_blank_title", func(t *testing.T) {
		cmd := CreateCommand{Title: "   "}
		err := cmd.Validate(now)
		require.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "title")
	})

	t.Run("Should_reject_overlong_title", func(t *testing.T) {
		cmd := CreateCommand{Title: strings.Repeat("x", 201)}
		require.ErrorIs(t, cmd.Validate(now), ErrValidation)
	})

	t.Run("Should_drop_blank_notes", func(t *testing.T) {
		blank := "  "
		cmd := CreateCommand{Title: "t", Notes: &blank}
		require.NoError(t, cmd.Validate(now))
		assert.Nil(t, cmd.Notes)
	})

	t.Run("Should_allow_past_due_date", func(t *testing.T) {
		past := now.Add(-48 * time.Hour)
		cmd := CreateCommand{Title: "t", DueDate: &past}
		require.NoError(t, cmd.Validate(now))
	})

	t.Run("Should_convert_due_date_to_utc", func(t *testing.T) {
		loc := time.FixedZone("UTC+3", 3*60*60)
		due := time.Date(2024, 1, 2, 20, 0, 0, 0, loc)
		cmd := CreateCommand{Title: "t", DueDate: &due}
		require.NoError(t, cmd.Validate(now))
		assert.Equal(t, time.UTC, cmd.DueDate.Location())
		assert.Equal(t, 17, cmd.DueDate.Hour())
	})

	t.Run("Should_reject_implausible_due_dates", func(t *testing.T) {
		early := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
		cmd := CreateCommand{Title: "t", DueDate: &early}
		require.ErrorIs(t, cmd.Validate(now), ErrValidation)

		late := now.Add(MaxDueDateHorizon + time.Hour)
		cmd = CreateCommand{Title: "t", DueDate: &late}
		require.ErrorIs(t, cmd.Validate(now), ErrValidation)
	})
}

func TestUpdateCommandValidate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Should_require_title", func(t *testing.T) {
		cmd := UpdateCommand{IsCompleted: true}
		require.ErrorIs(t, cmd.Validate(now), ErrValidation)
	})

	t.Run("Should_accept_full_update", func(t *testing.T) {
		due := now.Add(time.Hour)
		notes := "details"
		cmd := UpdateCommand{Title: "x", Notes: &notes, DueDate: &due, IsCompleted: true}
		require.NoError(t, cmd.Validate(now))
	})
}
