package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/service"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
	"github.com/noah-isme/campus-course-api/pkg/response"
)

// SelectionHandler exposes the course selection window.
type SelectionHandler struct {
	selection *service.SelectionService
}

// NewSelectionHandler constructs a SelectionHandler.
func NewSelectionHandler(selection *service.SelectionService) *SelectionHandler {
	return &SelectionHandler{selection: selection}
}

// Get godoc
// @Summary Get the selection window
// @Tags Selection
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /selection-window [get]
func (h *SelectionHandler) Get(c *gin.Context) {
	window, err := h.selection.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window)
}

// Update godoc
// @Summary Set the selection window
// @Tags Selection
// @Accept json
// @Produce json
// @Param payload body dto.SelectionWindowRequest true "Window bounds (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /selection-window [put]
func (h *SelectionHandler) Update(c *gin.Context) {
	var req dto.SelectionWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection window payload"))
		return
	}
	window, err := h.selection.Update(c.Request.Context(), currentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window)
}
