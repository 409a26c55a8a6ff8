package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
)

// Page is the list payload shape used by the student union API.
type Page struct {
	Results interface{} `json:"results"`
	Count   int         `json:"count"`
}

// ErrorBody is the error payload shape. Clients read Detail first, then Errors.
type ErrorBody struct {
	Detail string            `json:"detail,omitempty"`
	Code   string            `json:"code,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// JSON sends a success response.
func JSON(c *gin.Context, status int, data interface{}) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, data)
}

// List sends one page of results with the unpaginated total.
func List(c *gin.Context, results interface{}, count int) {
	JSON(c, http.StatusOK, Page{Results: results, Count: count})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, ErrorBody{Detail: appErr.Message, Code: appErr.Code, Errors: appErr.Fields})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
