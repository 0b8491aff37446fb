package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/service"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// EnrollmentHandler serves course selection for students and admins.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs an EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Select godoc
// @Summary Select a course
// @Tags Enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Param stu_id query int false "Student ID (admins only)"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/select [post]
func (h *EnrollmentHandler) Select(c *gin.Context) {
	h.change(c, h.enrollments.Select)
}

// Deselect godoc
// @Summary Deselect a course
// @Tags Enrollments
// @Produce json
// @Param id path int true "Course ID"
// @Param stu_id query int false "Student ID (admins only)"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/deselect [post]
func (h *EnrollmentHandler) Deselect(c *gin.Context) {
	h.change(c, h.enrollments.Deselect)
}

type enrollmentAction func(ctx context.Context, actor *models.CurrentUser, courseID int64, studentID *int64) (*dto.EnrollmentResponse, error)

func (h *EnrollmentHandler) change(c *gin.Context, action enrollmentAction) {
	courseID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	studentID, err := optionalQueryID(c, "stu_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := action(c.Request.Context(), currentUser(c), courseID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
