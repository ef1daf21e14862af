// Package web provides HTTP handlers and REST API endpoints for tasks.
package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/formflow/pkg/protocol"
	"github.com/dukex/formflow/pkg/render"
	"github.com/dukex/formflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// RecipeCatalog lists the recipes tasks can be created with.
type RecipeCatalog interface {
	Factories() []protocol.RecipeFactory
}

type APIHandlers struct {
	taskService *services.Task
	catalog     RecipeCatalog
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	taskService *services.Task,
	catalog RecipeCatalog,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		taskService: taskService,
		catalog:     catalog,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// Register mounts the task routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/recipes", h.GetRecipes)

	t := router.Group("/tasks")
	t.Post("/", h.CreateTask)
	t.Get("/:id", h.GetTask)
	t.Post("/:id/resume", h.ResumeTask)
	t.Get("/:id/artifact", h.GetArtifact)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, storeOk := h.taskService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Formflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if storeOk {
		status = "healthy"
		message = "Formflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetRecipes(c fiber.Ctx) error {
	factories := h.catalog.Factories()

	recipes := make([]RecipeResponse, 0, len(factories))
	for _, factory := range factories {
		recipes = append(recipes, RecipeResponse{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
		})
	}

	return c.JSON(fiber.Map{"recipes": recipes})
}

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req CreateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.taskService.Create(c.Context(), req.toService())
	if err != nil && !h.accepted(c, record != nil, err) {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(newTaskResponse(services.NewTaskStatus(record)))
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	status, err := h.taskService.Status(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(newTaskResponse(status))
}

func (h *APIHandlers) ResumeTask(c fiber.Ctx) error {
	var req ResumeTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	status, err := h.taskService.Resume(c.Context(), services.ResumeRequest{
		TaskID:       c.Params("id"),
		Answers:      req.Answers,
		SkipOptional: req.SkipOptional,
		Version:      req.Version,
	})
	if err != nil && !h.accepted(c, status != nil, err) {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(newTaskResponse(status))
}

func (h *APIHandlers) GetArtifact(c fiber.Ctx) error {
	id := c.Params("id")

	payload, contentType, err := h.taskService.Artifact(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	filename := id
	if contentType == render.ContentTypePDF {
		filename += ".pdf"
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)

	return c.Send(payload)
}

// accepted reports whether a request whose task was stored must still be answered with 202:
// a failed dispatch is retried by the recovery sweeper.
func (h *APIHandlers) accepted(c fiber.Ctx, stored bool, err error) bool {
	if !stored || !errors.Is(err, services.ErrDispatchFailed) {
		return false
	}

	h.logger.WarnContext(c.Context(), "Task stored but not dispatched", "path", c.Path(), "error", err)

	return true
}
