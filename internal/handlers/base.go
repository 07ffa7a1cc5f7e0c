package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// RequireQueryParam returns the named query parameter or a 400
func RequireQueryParam(c echo.Context, param string) (string, error) {
	value := c.QueryParam(param)
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}
	return value, nil
}

// ParseBoolParam parses an optional boolean query parameter, defaulting to
// false when absent
func ParseBoolParam(c echo.Context, param string) (bool, error) {
	value := c.QueryParam(param)
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be true or false", param)
	}
	return parsed, nil
}

// PaginationQuery is bound from the page/page_size query parameters
type PaginationQuery struct {
	Page     int `query:"page" validate:"omitempty,min=1"`
	PageSize int `query:"page_size" validate:"omitempty,min=1,max=500"`
}

// ParsePagination binds and validates page/page_size, applying defaults
// when absent
func ParsePagination(c echo.Context) (page, pageSize int, err error) {
	var q PaginationQuery
	if err := c.Bind(&q); err != nil {
		return 0, 0, httperror.NewHTTPError(http.StatusBadRequest, "page and page_size must be positive integers")
	}
	if err := c.Validate(&q); err != nil {
		return 0, 0, err
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 50
	}
	return q.Page, q.PageSize, nil
}

// Operator extracts the requesting operator from context, "" when absent
func Operator(c echo.Context) string {
	return appctx.GetOperatorID(c.Request().Context())
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}
