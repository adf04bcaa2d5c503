package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/http/middleware"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
)

// NewTaskServer wires the task service HTTP surface. Reads go cache-aside;
// every write invalidates the user's cache entry.
func NewTaskServer(cfg config.Config, tasks repository.TasksRepository, tc *cache.TaskCache, logger *zap.Logger) *Server {
	e := newEcho("task-service")

	authMW := middleware.JWTMiddleware(cfg.JWT.Secret)
	g := e.Group("/tasks", authMW)
	g.POST("", createTaskHandler(tasks, tc, logger))
	g.GET("", listTasksHandler(tasks, tc, logger))
	g.PUT("/:id", updateTaskHandler(tasks, tc, logger))
	g.DELETE("/:id", deleteTaskHandler(tasks, tc, logger))

	return &Server{e: e}
}

type taskReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func createTaskHandler(tasks repository.TasksRepository, tc *cache.TaskCache, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		var req taskReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
		}

		t, err := tasks.Create(c.Request().Context(), userID, req.Title, req.Description)
		if err != nil {
			log.Errorf("create task failed: %v", err)
			return dependencyError(c, logger, err)
		}

		tc.Invalidate(c.Request().Context(), userID)

		return c.JSON(http.StatusCreated, t)
	}
}

// listTasksHandler is the cache-aside read: cache hit short-circuits, a miss
// reads the store and populates the cache. Concurrent misses may each fill;
// last writer wins within the TTL.
func listTasksHandler(tasks repository.TasksRepository, tc *cache.TaskCache, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)
		ctx := c.Request().Context()

		if cached, ok := tc.Get(ctx, userID); ok {
			return c.JSON(http.StatusOK, cached)
		}

		list, err := tasks.ListByUser(ctx, userID)
		if err != nil {
			log.Errorf("list tasks failed: %v", err)
			return dependencyError(c, logger, err)
		}

		tc.Set(ctx, userID, list)

		return c.JSON(http.StatusOK, list)
	}
}

func updateTaskHandler(tasks repository.TasksRepository, tc *cache.TaskCache, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || taskID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		}

		var req taskReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		var title, description *string
		if req.Title != "" {
			title = &req.Title
		}
		if req.Description != "" {
			description = &req.Description
		}
		var status *model.TaskStatus
		if req.Status != "" {
			st, ok := model.ParseTaskStatus(req.Status)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid status"})
			}
			status = &st
		}

		t, err := tasks.Update(c.Request().Context(), taskID, userID, title, description, status)
		if err != nil {
			log.Errorf("update task failed: %v", err)
			return dependencyError(c, logger, err)
		}
		if t == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found or not authorized"})
		}

		tc.Invalidate(c.Request().Context(), userID)

		return c.JSON(http.StatusOK, t)
	}
}

func deleteTaskHandler(tasks repository.TasksRepository, tc *cache.TaskCache, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, _ := middleware.UserIDFromCtx(c)

		taskID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || taskID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		}

		deleted, err := tasks.Delete(c.Request().Context(), taskID, userID)
		if err != nil {
			log.Errorf("delete task failed: %v", err)
			return dependencyError(c, logger, err)
		}
		if !deleted {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found or not authorized"})
		}

		tc.Invalidate(c.Request().Context(), userID)

		return c.JSON(http.StatusOK, map[string]string{"message": "task deleted successfully"})
	}
}
