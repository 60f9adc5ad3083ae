package google

import (
	"strconv"
	"time"

	"google.golang.org/api/calendar/v3"
)

// TaskIDProperty is the private extended property linking an event to a task.
const TaskIDProperty = "clarity_task_id"

// NewEvent builds the calendar event mirroring a task. taskID is omitted from
// the event when zero.
func NewEvent(taskID int64, title string, notes *string, start, end time.Time) *calendar.Event {
	event := &calendar.Event{
		Summary: title,
		Start: &calendar.EventDateTime{
			DateTime: start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: end.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}
	if notes != nil {
		event.Description = *notes
	}
	if taskID != 0 {
		event.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{
				TaskIDProperty: strconv.FormatInt(taskID, 10),
			},
		}
	}
	return event
}
