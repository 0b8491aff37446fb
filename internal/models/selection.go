package models

import "time"

// Configuration keys holding the selection window in the directory store.
const (
	SettingSelectionBegin = "selection_begin"
	SettingSelectionEnd   = "selection_end"
)

// SelectionWindow is the global interval in which students may change enrollments.
type SelectionWindow struct {
	Begin time.Time `json:"begin"`
	End   time.Time `json:"end"`
}

// Configured reports whether both bounds are set.
func (w SelectionWindow) Configured() bool {
	return !w.Begin.IsZero() && !w.End.IsZero()
}

// Contains reports whether t falls in [Begin, End).
func (w SelectionWindow) Contains(t time.Time) bool {
	if !w.Configured() {
		return false
	}
	return !t.Before(w.Begin) && t.Before(w.End)
}

// Setting is a key/value row of the directory configurations table.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedBy *int64    `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
