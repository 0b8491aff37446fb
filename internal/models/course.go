package models

// Course is a shard row. NumSelected always equals the number of enrollment
// rows referencing the course and never exceeds Capacity.
type Course struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Capacity    int    `db:"capacity" json:"capacity"`
	NumSelected int    `db:"num_selected" json:"num_selected"`
	Campus      string `db:"campus" json:"campus"`
}

// CourseRow is one row of a course listing: a course with its teacher names
// joined into a single string.
type CourseRow struct {
	ID          int64  `db:"id" json:"course_id"`
	Teachers    string `db:"teachers" json:"teachers"`
	Name        string `db:"name" json:"name"`
	Capacity    int    `db:"capacity" json:"capacity"`
	NumSelected int    `db:"num_selected" json:"num_selected"`
	Campus      string `db:"campus" json:"campus"`
	IsSelected  *bool  `db:"is_selected" json:"is_selected,omitempty"`
}

// CourseFilter captures the optional predicates of a course listing.
// At most one of CourseID/CourseName and one of TeacherID/TeacherName is set.
type CourseFilter struct {
	CourseID     *int64
	CourseName   string
	TeacherID    *int64
	TeacherName  string
	OnlyNotFull  bool
	OnlySelected bool
	// StudentID selects the student variant: rows carry IsSelected and
	// OnlySelected filters on this student's enrollments.
	StudentID *int64
}

// Unconstrained reports whether no predicate narrows the listing.
func (f CourseFilter) Unconstrained() bool {
	return f.CourseID == nil && f.CourseName == "" && f.TeacherID == nil && f.TeacherName == "" &&
		!f.OnlyNotFull && !f.OnlySelected
}

// CourseLock is the locked projection read before any capacity-affecting write.
type CourseLock struct {
	Capacity    int `db:"capacity"`
	NumSelected int `db:"num_selected"`
}
