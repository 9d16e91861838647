package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/dealcache/pkg/errors"
	"github.com/charlesng35/dealcache/pkg/response"
	"github.com/charlesng35/dealcache/pkg/validator"
)

// bind decodes the JSON body into dest and validates it. On failure the 400 has already been
// written and bind returns false.
func bind[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	err := validator.Validate(dest)
	if err == nil {
		return true
	}
	var violations validator.Violations
	if errors.As(err, &violations) {
		response.Error(c, appErrors.NewBadRequest(violations.Error()).WithDetails(violations))
	} else {
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
	}
	return false
}

func param(c *gin.Context, key string) string {
	return strings.TrimSpace(c.Param(key))
}

// queryInt reads an integer query parameter, falling back when absent or malformed.
func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return n
}
