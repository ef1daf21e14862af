// Package web provides HTTP request and response types for the task API.
package web

import (
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/services"
)

// InputDocumentRequest references one document submitted with a task.
type InputDocumentRequest struct {
	Name        string            `json:"name"                   validate:"required,max=256"`
	Kind        string            `json:"kind,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	URI         string            `json:"uri,omitempty"          validate:"omitempty,uri"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	Recipe string                 `json:"recipe"           validate:"required"`
	Inputs []InputDocumentRequest `json:"inputs"           validate:"omitempty,dive"`
	Record map[string]string      `json:"record,omitempty"`
}

// ResumeTaskRequest carries the answer to a pending question. Version, when set, must be
// the version returned by the last status read.
type ResumeTaskRequest struct {
	Answers      map[string]string `json:"answers"`
	SkipOptional bool              `json:"skip_optional"`
	Version      *int64            `json:"version,omitempty" validate:"omitempty,min=1"`
}

// TaskResponse is the status view of a task.
type TaskResponse struct {
	TaskID          string            `json:"task_id"`
	Recipe          string            `json:"recipe"`
	Status          models.TaskStatus `json:"status"`
	Version         int64             `json:"version"`
	Question        *string           `json:"question"`
	MissingCritical []string          `json:"missing_critical"`
	MissingOptional []string          `json:"missing_optional"`
	ArtifactURL     string            `json:"artifact_url,omitempty"`
	Error           *string           `json:"error"`
	FailedStep      string            `json:"failed_step,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// RecipeResponse describes a recipe tasks can be created with.
type RecipeResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r CreateTaskRequest) toService() services.CreateRequest {
	inputs := make([]models.InputDocument, 0, len(r.Inputs))
	for _, input := range r.Inputs {
		inputs = append(inputs, models.InputDocument{
			Name:        input.Name,
			Kind:        input.Kind,
			ContentType: input.ContentType,
			URI:         input.URI,
			Fields:      input.Fields,
		})
	}

	return services.CreateRequest{
		Recipe: r.Recipe,
		Inputs: inputs,
		Record: r.Record,
	}
}

func newTaskResponse(status *services.TaskStatus) TaskResponse {
	response := TaskResponse{
		TaskID:          status.TaskID,
		Recipe:          status.Recipe,
		Status:          status.Status,
		Version:         status.Version,
		Question:        status.Question,
		MissingCritical: status.MissingCritical,
		MissingOptional: status.MissingOptional,
		Error:           status.Error,
		FailedStep:      status.FailedStep,
		CreatedAt:       status.CreatedAt,
		UpdatedAt:       status.UpdatedAt,
	}

	if response.MissingCritical == nil {
		response.MissingCritical = []string{}
	}

	if response.MissingOptional == nil {
		response.MissingOptional = []string{}
	}

	if status.HasArtifact {
		response.ArtifactURL = "/tasks/" + status.TaskID + "/artifact"
	}

	return response
}
