package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/service"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// PrivateHandler serves the inter-campus API. Every operation acts on this
// campus's shard only; callers are peers that already resolved ownership.
type PrivateHandler struct {
	queries     *service.CourseQueryService
	courses     *service.CourseService
	enrollments *service.EnrollmentService
}

// NewPrivateHandler constructs a PrivateHandler.
func NewPrivateHandler(queries *service.CourseQueryService, courses *service.CourseService, enrollments *service.EnrollmentService) *PrivateHandler {
	return &PrivateHandler{queries: queries, courses: courses, enrollments: enrollments}
}

// DeleteUser clears a user's rows from the local shard.
func (h *PrivateHandler) DeleteUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	role, err := h.enrollments.DeleteUser(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PurgeUserResponse{UserID: id, Role: string(role), PeersQueued: []string{}})
}

// Select enrolls a student in a local course.
func (h *PrivateHandler) Select(c *gin.Context) {
	h.enrollment(c, h.enrollments.SelectLocal)
}

// Deselect withdraws a student from a local course.
func (h *PrivateHandler) Deselect(c *gin.Context) {
	h.enrollment(c, h.enrollments.DeselectLocal)
}

func (h *PrivateHandler) enrollment(c *gin.Context, action func(context.Context, int64, int64) error) {
	studentID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	courseID, err := requiredQueryID(c, "course_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if !campus.ValidUserID(studentID) || campus.RoleOf(studentID) != models.RoleStudent || !campus.ValidCourseID(courseID) {
		response.Error(c, appErrors.ErrInvalidID)
		return
	}
	if err := action(c.Request.Context(), courseID, studentID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.EnrollmentResponse{CourseID: courseID, StudentID: studentID})
}

// ListCourses answers the plain listing from the local shard.
func (h *PrivateHandler) ListCourses(c *gin.Context) {
	var q dto.PrivateCourseListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid listing parameters"))
		return
	}
	q.StudentID = nil
	q.OnlySelected = false
	h.list(c, q)
}

// ListStudentCourses answers the student listing from the local shard.
func (h *PrivateHandler) ListStudentCourses(c *gin.Context) {
	var q dto.PrivateCourseListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid listing parameters"))
		return
	}
	if q.StudentID == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "stu_id is required"))
		return
	}
	h.list(c, q)
}

func (h *PrivateHandler) list(c *gin.Context, q dto.PrivateCourseListQuery) {
	result, err := h.queries.QueryLocal(c.Request.Context(), service.FilterFromPrivateQuery(q))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// CreateCourse creates a course in the local shard.
func (h *PrivateHandler) CreateCourse(c *gin.Context) {
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	created, err := h.courses.CreateLocal(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// UpdateCourse changes a local course.
func (h *PrivateHandler) UpdateCourse(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	if err := h.courses.UpdateLocal(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteCourse removes a local course.
func (h *PrivateHandler) DeleteCourse(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.courses.DeleteLocal(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CourseStudents lists the students of a local course.
func (h *PrivateHandler) CourseStudents(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.courses.StudentsLocal(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
