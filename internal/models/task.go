package models

import "time"

// ScheduledTask is one row of the dispatch table read by the scheduler.
// A task runs when it is active, today matches Date or a weekday flag,
// and the clock matches Time (or the frequency window past Time).
type ScheduledTask struct {
	Model
	Name        string     `json:"name" gorm:"uniqueIndex;not null"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	Date        *time.Time `json:"date"`
	Monday      bool       `json:"monday"`
	Tuesday     bool       `json:"tuesday"`
	Wednesday   bool       `json:"wednesday"`
	Thursday    bool       `json:"thursday"`
	Friday      bool       `json:"friday"`
	Saturday    bool       `json:"saturday"`
	Sunday      bool       `json:"sunday"`
	Time        string     `json:"time" gorm:"not null"` // HH:MM
	// Frequency in hours. When set the task repeats every Frequency hours
	// from Time onward.
	Frequency *int `json:"frequency"`
}

// WeekdayEnabled reports whether the task's flag for the given weekday is set.
func (t *ScheduledTask) WeekdayEnabled(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return t.Monday
	case time.Tuesday:
		return t.Tuesday
	case time.Wednesday:
		return t.Wednesday
	case time.Thursday:
		return t.Thursday
	case time.Friday:
		return t.Friday
	case time.Saturday:
		return t.Saturday
	default:
		return t.Sunday
	}
}

// TaskRunLog records one execution of a scheduled task.
type TaskRunLog struct {
	Model
	TaskName string        `json:"task_name" gorm:"not null;index"`
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Runtime  time.Duration `json:"runtime"`
	RanAt    time.Time     `json:"ran_at" gorm:"not null"`
}
