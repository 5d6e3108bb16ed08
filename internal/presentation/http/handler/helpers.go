package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"github.com/sangkips/pharmadesk/internal/presentation/http/middleware"
	"github.com/sangkips/pharmadesk/pkg/pagination"
)

// GetUserID extracts the user ID set by AuthMiddleware
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// requireUser answers 401 when the request carries no user
func requireUser(c *gin.Context) (string, bool) {
	userID := GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "User not authenticated")
		return "", false
	}
	return userID, true
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds the body, answering 400 or 422 on failure
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, middleware.BindingError(err))
		return false
	}
	return true
}

// bindQuery binds query parameters, answering 422 on failure
func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		response.Error(c, middleware.BindingError(err))
		return false
	}
	return true
}

func pageParams(page, perPage int) *pagination.PaginationParams {
	params := &pagination.PaginationParams{Page: page, PerPage: perPage}
	params.Validate()
	return params
}
