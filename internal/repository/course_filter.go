package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/noah-isme/campus-course-api/internal/models"
)

// courseFilter composes the shard-side predicates of a course listing as data:
// join and where fragments plus their bind values. Placeholders are numbered
// when a fragment is added, so fragments can be appended in any order.
type courseFilter struct {
	joins []string
	conds []string
	args  []interface{}
}

// bind registers a value and returns its positional placeholder.
func (f *courseFilter) bind(v interface{}) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

// join appends a join fragment; each %s in format receives the placeholder of
// the matching value.
func (f *courseFilter) join(format string, values ...interface{}) {
	f.joins = append(f.joins, fmt.Sprintf(format, f.placeholders(values)...))
}

// where appends a predicate; each %s in format receives the placeholder of
// the matching value.
func (f *courseFilter) where(format string, values ...interface{}) {
	f.conds = append(f.conds, fmt.Sprintf(format, f.placeholders(values)...))
}

func (f *courseFilter) placeholders(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = f.bind(v)
	}
	return out
}

// newCourseFilter lowers a listing filter into shard predicates. teacherIDs
// holds the directory-resolved ids for a textual teacher filter.
func newCourseFilter(filter models.CourseFilter, teacherIDs []int64) *courseFilter {
	f := &courseFilter{}
	switch {
	case filter.CourseID != nil:
		f.where("c.id = %s", *filter.CourseID)
	case filter.CourseName != "":
		f.where("c.name ILIKE '%%' || %s || '%%'", escapeLike(filter.CourseName))
	}
	switch {
	case filter.TeacherID != nil:
		f.join("JOIN teach ft ON ft.cid = c.id AND ft.tid = %s", *filter.TeacherID)
	case filter.TeacherName != "":
		f.join("JOIN teach ft ON ft.cid = c.id AND ft.tid = ANY(%s)", pq.Array(teacherIDs))
	}
	if filter.OnlyNotFull {
		f.where("c.capacity > c.num_selected")
	}
	if filter.OnlySelected && filter.StudentID != nil {
		f.join("JOIN learn fl ON fl.cid = c.id AND fl.sid = %s", *filter.StudentID)
	}
	return f
}

// stagingInsert renders the statement filling tmp_cid_tid with every
// (course, teacher) pair of the courses matching the filter.
func (f *courseFilter) stagingInsert() (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO tmp_cid_tid (cid, tid) SELECT DISTINCT c.id, t.tid FROM courses c")
	for _, j := range f.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(" JOIN teach t ON t.cid = c.id")
	if len(f.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(f.conds, " AND "))
	}
	return b.String(), f.args
}

// escapeLike neutralises LIKE wildcards in user supplied substrings.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
