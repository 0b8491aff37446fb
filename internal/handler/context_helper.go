package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/middleware"
	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

func currentUser(c *gin.Context) *models.CurrentUser {
	return middleware.CurrentUser(c)
}

// pathID parses a numeric path parameter. Non-numeric values are INVALID_ID.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrInvalidID, "invalid "+name)
	}
	return id, nil
}

// optionalQueryID parses an optional numeric query parameter.
func optionalQueryID(c *gin.Context, key string) (*int64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidID, "invalid "+key)
	}
	return &id, nil
}

// requiredQueryID parses a mandatory numeric query parameter.
func requiredQueryID(c *gin.Context, key string) (int64, error) {
	id, err := optionalQueryID(c, key)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" is required")
	}
	return *id, nil
}
