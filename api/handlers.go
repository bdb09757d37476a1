package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"todo-api/domain"
	"todo-api/events"
)

const defaultStreamInterval = 5 * time.Second

// Options carries the optional collaborators of the HTTP surface.
type Options struct {
	Publisher      Publisher
	Notifier       Notifier
	StreamInterval time.Duration
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Service, logger *log.Logger, opts Options) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = defaultStreamInterval
	}

	e.GET("/", listTodos(svc.GetAllTodos, logger, "/"))
	e.GET("/pending", listTodos(svc.GetPendingTodos, logger, "/pending"))
	e.GET("/completed", listTodos(svc.GetCompletedTodos, logger, "/completed"))
	e.GET("/id/:id", getTodo(svc, logger))
	e.POST("/", createTodo(svc, opts.Publisher, logger))
	e.PUT("/id/:id", updateTodo(svc, opts.Publisher, logger))
	e.DELETE("/", deleteAllTodos(svc, opts.Publisher, logger))
	e.DELETE("/completed", deleteCompletedTodos(svc, opts.Publisher, logger))
	e.DELETE("/id/:id", deleteTodo(svc, opts.Publisher, logger))
	e.GET("/stream", streamTodos(svc, opts.Notifier, opts.StreamInterval))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}

func listTodos(list func(context.Context) []domain.Todo, logger *log.Logger, route string) echo.HandlerFunc {
	return instrument(logger, route, func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()

		start := time.Now()
		todos := list(ctx)
		metrics.ObserveService(time.Since(start))
		metrics.SetTodosReturned(len(todos))

		encodeStart := time.Now()
		err := c.JSON(http.StatusOK, todos)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	})
}

func getTodo(svc Service, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/id/:id", func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()

		start := time.Now()
		todo, ok := svc.GetTodoByID(ctx, c.Param("id"))
		metrics.ObserveService(time.Since(start))
		if !ok {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorResponse{Error: "todo not found"})
		}
		metrics.SetTodosReturned(1)
		return c.JSON(http.StatusOK, todo)
	})
}

func createTodo(svc Service, pub Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/", func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()

		params, err := bindTodoParams(c)
		if err != nil {
			metrics.SetErrorStage("decode_request")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		done := false
		if params.IsDone != nil {
			done = domain.ParseDone(*params.IsDone)
		}
		todo := domain.NewTodo(params.Title, params.Description, done)

		start := time.Now()
		added := svc.AddTodo(ctx, &todo)
		metrics.ObserveService(time.Since(start))
		if !added {
			metrics.SetErrorStage("rejected")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "unable to create todo"})
		}
		metrics.SetTodosAffected(1)

		publish(ctx, pub, events.NewChange(ctx, domain.TodoCreated, todo.ID, &todo))
		return c.JSON(http.StatusCreated, createTodoResponse{ID: todo.ID})
	})
}

func updateTodo(svc Service, pub Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/id/:id", func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		params, err := bindTodoParams(c)
		if err != nil {
			metrics.SetErrorStage("decode_request")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		start := time.Now()
		updated := svc.UpdateTodo(ctx, id, params.Title, params.Description, params.IsDone)
		metrics.ObserveService(time.Since(start))
		if !updated {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorResponse{Error: "todo not found"})
		}
		metrics.SetTodosAffected(1)

		// Read back after the update: a concurrent write may already show
		// through, and a concurrent delete leaves the snapshot nil.
		var snapshot *domain.Todo
		if todo, ok := svc.GetTodoByID(ctx, id); ok {
			snapshot = &todo
		}
		publish(ctx, pub, events.NewChange(ctx, domain.TodoUpdated, id, snapshot))
		return c.NoContent(http.StatusAccepted)
	})
}

func deleteAllTodos(svc Service, pub Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/", func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()

		start := time.Now()
		svc.DeleteAllTodos(ctx)
		metrics.ObserveService(time.Since(start))

		publish(ctx, pub, events.NewChange(ctx, domain.TodosCleared, "", nil))
		return c.NoContent(http.StatusAccepted)
	})
}

func deleteCompletedTodos(svc Service, pub Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/completed", func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()

		start := time.Now()
		removed := svc.DeleteCompletedTodos(ctx)
		metrics.ObserveService(time.Since(start))
		metrics.SetTodosAffected(len(removed))

		if len(removed) > 0 {
			publish(ctx, pub, events.NewChange(ctx, domain.CompletedTodosCleared, "", nil))
		}
		return c.NoContent(http.StatusAccepted)
	})
}

func deleteTodo(svc Service, pub Publisher, logger *log.Logger) echo.HandlerFunc {
	return instrument(logger, "/id/:id", func(c echo.Context, metrics *requestMetrics) error {
		ctx := c.Request().Context()
		id := c.Param("id")

		start := time.Now()
		deleted := svc.DeleteTodoByID(ctx, id)
		metrics.ObserveService(time.Since(start))
		if !deleted {
			metrics.SetErrorStage("not_found")
			return c.JSON(http.StatusNotFound, errorResponse{Error: "todo not found"})
		}
		metrics.SetTodosAffected(1)

		publish(ctx, pub, events.NewChange(ctx, domain.TodoDeleted, id, nil))
		return c.NoContent(http.StatusAccepted)
	})
}

func publish(ctx context.Context, pub Publisher, ch domain.Change) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, ch)
}
