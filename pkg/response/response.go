// Package response defines the JSON envelope every HTTP endpoint
// returns: {"success": bool, "data": ..., "error": {"code", "message"}}.
// Exactly one of data and error is set.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the response body shape shared by all endpoints.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code alongside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// Success writes a 200 envelope around data.
func Success(c *gin.Context, data interface{}) {
	ok(c, http.StatusOK, data)
}

// Created writes a 201 envelope around data.
func Created(c *gin.Context, data interface{}) {
	ok(c, http.StatusCreated, data)
}

// Error writes a failure envelope with the given status and error code.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, Envelope{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}

// BadRequest writes a 400 failure envelope.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized writes a 401 failure envelope.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden writes a 403 failure envelope.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound writes a 404 failure envelope.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}

// Conflict writes a 409 failure envelope.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, "CONFLICT", message)
}

// InternalError writes a 500 failure envelope.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
