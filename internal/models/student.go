package models

// Student is a directory profile row.
type Student struct {
	ID            int64  `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	Sex           string `db:"sex" json:"sex"`
	Age           int    `db:"age" json:"age"`
	CurrentCampus string `db:"current_campus" json:"current_campus"`
}
