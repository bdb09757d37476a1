package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// streamTodos sends the full todo list as a server-sent event on connect,
// whenever the notifier signals a change and on every tick.
func streamTodos(svc Service, notifier Notifier, interval time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		var changes chan struct{}
		if notifier != nil {
			changes = notifier.Subscribe()
			defer notifier.Unsubscribe(changes)
		}

		ctx := c.Request().Context()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			data, err := sonic.Marshal(svc.GetAllTodos(ctx))
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			case <-changes:
			}
		}
	}
}
