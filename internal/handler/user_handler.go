package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/service"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// UserHandler exposes the admin user purge.
type UserHandler struct {
	purge *service.UserPurgeService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(purge *service.UserPurgeService) *UserHandler {
	return &UserHandler{purge: purge}
}

// Delete godoc
// @Summary Purge a user's course data on every campus
// @Description Clears the user's enrollments or teaching rows locally and schedules the same cleanup on each peer campus.
// @Tags Users
// @Produce json
// @Param id path int true "User ID"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.purge.Purge(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result)
}
