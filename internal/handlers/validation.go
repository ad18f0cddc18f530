package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
	"github.com/lazynerd-007/lpv1-sub000/pkg/response"
	"github.com/lazynerd-007/lpv1-sub000/pkg/validator"
)

// bindAndValidate decodes the JSON body into T and runs struct validation.
// On failure it writes the error response and returns false; handlers just
// return on a false result.
func bindAndValidate[T any](c *gin.Context, target *T) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid request body"))
		return false
	}

	if err := validator.ValidateStruct(target); err != nil {
		response.Error(c, apperrors.NewBadRequest(formatValidationError(err)))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return "validation failed"
	}

	parts := make([]string, 0, len(failures))
	for _, failure := range failures {
		switch failure.Tag {
		case "required":
			parts = append(parts, failure.Field+" is required")
		case "oneof":
			parts = append(parts, failure.Field+" must be one of: "+failure.Param)
		case "max":
			parts = append(parts, failure.Field+" exceeds maximum length "+failure.Param)
		case "min":
			parts = append(parts, failure.Field+" is below minimum "+failure.Param)
		default:
			parts = append(parts, failure.Field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

// parseIntQuery reads an integer query parameter, falling back to def when
// absent or unparsable.
func parseIntQuery(c *gin.Context, name string, def int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

// parseBoolQuery reads a boolean query parameter, defaulting to false.
func parseBoolQuery(c *gin.Context, name string) bool {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}
