package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"task-planner/internal/recurrence"
)

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusPlanned    TaskStatus = "planned"
	StatusWaiting    TaskStatus = "waiting"
	StatusDone       TaskStatus = "done"
	StatusArchived   TaskStatus = "archived"
	StatusCancelled  TaskStatus = "cancelled"
	StatusCompleted  TaskStatus = "completed"
)

// TerminalStatuses never come back to the active list.
var TerminalStatuses = []TaskStatus{StatusDone, StatusArchived, StatusCancelled, StatusCompleted}

// ParseStatus validates a status name.
func ParseStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPlanned, StatusWaiting,
		StatusDone, StatusArchived, StatusCancelled, StatusCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusArchived, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsPending reports whether work on the task has not begun yet.
func (s TaskStatus) IsPending() bool {
	return s == StatusNotStarted || s == StatusPlanned
}

// Task is both a recurring template and a generated instance.
// Templates carry a recurrence descriptor and no RecurringParentID;
// instances point at their template and have RecurrenceType none.
type Task struct {
	ID                uint   `gorm:"primaryKey"`
	UID               string `gorm:"uniqueIndex;size:36"`
	UserID            uint   `gorm:"index"`
	ProjectID         *uint  `gorm:"index"`
	AreaID            *uint
	ParentTaskID      *uint `gorm:"index"`
	RecurringParentID *uint `gorm:"index;uniqueIndex:idx_recurring_parent_due,priority:1"`

	Title       string
	Description string
	Priority    int
	Tags        datatypes.JSONSlice[string]
	Status      TaskStatus `gorm:"index;default:not_started"`
	DueDate     *time.Time `gorm:"index;uniqueIndex:idx_recurring_parent_due,priority:2"`
	DeferUntil  *time.Time
	CompletedAt *time.Time

	RecurrenceType     recurrence.Type `gorm:"index;default:none"`
	RecurrenceInterval int             `gorm:"default:1"`
	RecurrenceMonthDay *int
	RecurrenceWeekDay  *int
	RecurrenceMonth    *int
	RecurrenceEndDate  *time.Time
	RecurrencePaused   bool `gorm:"default:false"`
	Timezone           string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate assigns the external identifier.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.UID == "" {
		t.UID = uuid.NewString()
	}
	if t.RecurrenceType == "" {
		t.RecurrenceType = recurrence.TypeNone
	}
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	return nil
}

// IsTemplate is the single definition of "this task generates instances".
func (t *Task) IsTemplate() bool {
	return t.RecurrenceType != recurrence.TypeNone && t.RecurrenceType != "" && t.RecurringParentID == nil
}

// IsInstance reports whether the task was generated from a template.
func (t *Task) IsInstance() bool {
	return t.RecurringParentID != nil
}

// IsFuturePending reports whether the task is due strictly after now and
// nobody has started it. Only such instances may be rewritten or removed
// when their template changes.
func (t *Task) IsFuturePending(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.After(now) && t.Status.IsPending()
}

// IsDeferred hides a task until DeferUntil passes.
func (t *Task) IsDeferred(now time.Time) bool {
	return t.DeferUntil != nil && t.DeferUntil.After(now)
}

// Rule builds the recurrence descriptor. The anchor is the template's own
// due date, falling back to its creation time.
func (t *Task) Rule() recurrence.Rule {
	rule := recurrence.Rule{
		Type:     t.RecurrenceType,
		Interval: t.RecurrenceInterval,
		MonthDay: t.RecurrenceMonthDay,
		WeekDay:  t.RecurrenceWeekDay,
		Month:    t.RecurrenceMonth,
		EndDate:  t.RecurrenceEndDate,
	}
	switch {
	case t.DueDate != nil:
		rule.Anchor = *t.DueDate
	case !t.CreatedAt.IsZero():
		rule.Anchor = t.CreatedAt
	}
	return rule
}
