package dto

import "github.com/noah-isme/campus-course-api/internal/models"

// CourseQueryResult is the answer of a course listing, local or federated.
type CourseQueryResult struct {
	Total   int                `json:"total"`
	Results []models.CourseRow `json:"results"`
}

// CourseStudentsResult lists the students enrolled in a course.
type CourseStudentsResult struct {
	Total   int              `json:"total"`
	Results []models.Student `json:"results"`
}

// CreateCourseRequest creates a course on the campus named by Campus.
type CreateCourseRequest struct {
	Name       string  `json:"name" validate:"required,min=2,max=255"`
	Capacity   int     `json:"capacity" validate:"required,gt=0"`
	TeacherIDs []int64 `json:"teacher_ids" validate:"required,min=1,dive,gt=0"`
	Campus     string  `json:"campus" validate:"required,oneof=A B C"`
}

// UpdateCourseRequest replaces the mutable attributes of a course.
type UpdateCourseRequest struct {
	Name       string  `json:"name" validate:"required,min=2,max=255"`
	Capacity   int     `json:"capacity" validate:"required,gt=0"`
	TeacherIDs []int64 `json:"teacher_ids" validate:"required,min=1,dive,gt=0"`
}

// CreateCourseResponse carries the allocated course id.
type CreateCourseResponse struct {
	CourseID int64 `json:"course_id"`
}

// EnrollmentResponse echoes the pair affected by a select or deselect.
type EnrollmentResponse struct {
	CourseID  int64 `json:"course_id"`
	StudentID int64 `json:"student_id"`
}

// CourseListQuery binds the query string of GET /courses.
type CourseListQuery struct {
	Campus       string `form:"campus"`
	Course       string `form:"course"`
	Teacher      string `form:"teacher"`
	OnlyNotFull  bool   `form:"only_not_full"`
	OnlySelected bool   `form:"only_selected"`
}

// PrivateCourseListQuery binds the query string of the private listing
// endpoints, where course and teacher are already split by kind.
type PrivateCourseListQuery struct {
	CourseID     *int64 `form:"course_id"`
	CourseName   string `form:"course_name"`
	TeacherID    *int64 `form:"teacher_id"`
	TeacherName  string `form:"teacher_name"`
	OnlyNotFull  bool   `form:"only_not_full"`
	OnlySelected bool   `form:"only_selected"`
	StudentID    *int64 `form:"stu_id"`
}
