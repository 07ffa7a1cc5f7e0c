package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// Logger emits one structured line per request. Request identity comes from
// the context middleware, so it must be registered after Context(). Admin
// resolutions are destructive, which is why the operator id is part of the
// line when the header was sent.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			ctx := req.Context()
			fields := map[string]any{
				"request_id":    appctx.GetRequestID(ctx),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         c.Path(),
				"remote_ip":     c.RealIP(),
				"response_time": time.Since(start),
				"response_size": strconv.FormatInt(res.Size, 10),
			}
			if operator := appctx.GetOperatorID(ctx); operator != "" {
				fields["operator_id"] = operator
			}

			logger.WithContext(ctx).WithFields(fields).Info("Request")

			return nil
		}
	}
}
