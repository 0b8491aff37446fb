package dto

import "time"

// SelectionWindowRequest sets the global course selection window.
type SelectionWindowRequest struct {
	Begin time.Time `json:"begin" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Begin"`
}

// SelectionWindowResponse reports the window and whether it is open now.
type SelectionWindowResponse struct {
	Begin *time.Time `json:"begin,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Open  bool       `json:"open"`
}
