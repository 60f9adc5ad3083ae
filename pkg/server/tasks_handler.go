package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/model"
	"github.com/harrisonrobin/clarity/pkg/store"
	"github.com/harrisonrobin/clarity/pkg/tasks"
)

type errorBody struct {
	Error string `json:"error"`
}

type parseErrorBody struct {
	Error      string `json:"error"`
	Text       string `json:"text"`
	Suggestion string `json:"suggestion"`
}

type createdBody struct {
	ID int64 `json:"id"`
}

type parseRequest struct {
	Text string `json:"text"`
}

type taskHandler struct {
	orch  TaskCreator
	tasks TaskRepository
	now   func() time.Time
}

func (h *taskHandler) Create(c echo.Context) error {
	var cmd model.CreateCommand
	if err := c.Bind(&cmd); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "request body is not a valid task"})
	}
	res, err := h.orch.Create(c.Request().Context(), ownerID(c), cmd)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		}
		return internalError(c, err)
	}
	return created(c, res.TaskID)
}

func (h *taskHandler) Parse(c echo.Context) error {
	var req parseRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Request text cannot be empty."})
	}
	res, err := h.orch.CreateFromText(c.Request().Context(), ownerID(c), req.Text)
	if err != nil {
		if errors.Is(err, tasks.ErrUninterpretable) || errors.Is(err, model.ErrValidation) {
			logger.FromContext(c.Request().Context()).Warn("Text could not be turned into a task", "text", req.Text, "error", err)
			return c.JSON(http.StatusBadRequest, parseErrorBody{
				Error:      "The provided text could not be processed into a task.",
				Text:       req.Text,
				Suggestion: "Please provide a clearer task description.",
			})
		}
		return internalError(c, err)
	}
	return created(c, res.TaskID)
}

func (h *taskHandler) List(c echo.Context) error {
	list, err := h.tasks.List(c.Request().Context(), ownerID(c))
	if err != nil {
		return internalError(c, err)
	}
	if list == nil {
		list = []model.Task{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *taskHandler) Get(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "task not found"})
	}
	task, err := h.tasks.Find(c.Request().Context(), id, ownerID(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *taskHandler) Update(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid task id"})
	}
	var cmd model.UpdateCommand
	if err := c.Bind(&cmd); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "request body is not a valid task"})
	}
	if cmd.ID == 0 {
		cmd.ID = id
	}
	if cmd.ID != id {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "task id in body does not match path"})
	}
	if err := cmd.Validate(h.now()); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	if err := h.tasks.Update(c.Request().Context(), id, ownerID(c), cmd); err != nil {
		return storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *taskHandler) Delete(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "task not found"})
	}
	if err := h.tasks.Delete(c.Request().Context(), id, ownerID(c)); err != nil {
		return storeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleComplete flips the completion flag and returns the task.
func (h *taskHandler) ToggleComplete(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: "task not found"})
	}
	task, err := h.tasks.ToggleCompleted(c.Request().Context(), id, ownerID(c))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", c.Param("id"))
	}
	return id, nil
}

func created(c echo.Context, id int64) error {
	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/api/tasks/%d", id))
	return c.JSON(http.StatusCreated, createdBody{ID: id})
}

func storeError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody{Error: "task not found"})
	}
	return internalError(c, err)
}

func internalError(c echo.Context, err error) error {
	logger.FromContext(c.Request().Context()).Error("Request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody{
		Error: "An internal error occurred while processing the request.",
	})
}
