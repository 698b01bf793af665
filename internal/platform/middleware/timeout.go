package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a context deadline on each request. When the
// deadline passes before the handler finishes, the client gets a 504
// carrying a FHIR OperationOutcome. Handlers observe the cancellation
// through the request context, which the pipeline propagates to its
// consent and audit calls.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return timeoutOutcome(c)
				}
				return ctx.Err()
			}
		}
	}
}

func timeoutOutcome(c echo.Context) error {
	outcome := map[string]any{
		"resourceType": "OperationOutcome",
		"issue": []map[string]any{
			{
				"severity":    "error",
				"code":        "timeout",
				"diagnostics": "request processing exceeded the allowed time limit",
			},
		},
	}
	if !c.Response().Committed {
		return c.JSON(http.StatusGatewayTimeout, outcome)
	}
	return nil
}
