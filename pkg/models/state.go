// Package models defines the task and workflow state records shared by the API and the worker.
package models

import (
	"maps"
	"slices"
	"strings"
)

// CurrentSchemaVersion is written into every new WorkflowState. Readers accept older versions;
// fields added later must be optional so that older records keep decoding.
const CurrentSchemaVersion = 1

// InputDocument references one raw document submitted with a task.
type InputDocument struct {
	Name        string            `json:"name"                   validate:"required,min=1"`
	Kind        string            `json:"kind,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	URI         string            `json:"uri,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// WorkflowState is the cumulative knowledge accumulated by a workflow for one task.
//
// The JSON names of the control fields are part of the persisted record contract and must not change.
type WorkflowState struct {
	SchemaVersion int `json:"schema_version"`

	Inputs          []InputDocument              `json:"inputs,omitempty"`
	Extractions     map[string]map[string]string `json:"extractions,omitempty"`
	Classifications map[string]string            `json:"classifications,omitempty"`

	// Record is the consolidated record built from extractions and human answers.
	Record          map[string]string `json:"status_derived_fields"`
	MissingCritical []string          `json:"missing_critical"`
	MissingOptional []string          `json:"missing_optional"`

	Question      *string           `json:"question_to_user"`
	HumanResponse map[string]string `json:"human_response"`
	SkipOptional  bool              `json:"skip_optional,omitempty"`

	Artifact            []byte `json:"generated_artifact"`
	ArtifactContentType string `json:"artifact_content_type,omitempty"`

	Error      *string `json:"error"`
	FailedStep string  `json:"failed_step,omitempty"`

	History []string `json:"history,omitempty"`
}

// NewWorkflowState returns a fresh state seeded with the task inputs and any values the client already knows.
func NewWorkflowState(inputs []InputDocument, record map[string]string) *WorkflowState {
	state := &WorkflowState{
		SchemaVersion:   CurrentSchemaVersion,
		Inputs:          make([]InputDocument, 0, len(inputs)),
		Record:          make(map[string]string, len(record)),
		MissingCritical: []string{},
		MissingOptional: []string{},
	}

	for _, input := range inputs {
		state.Inputs = append(state.Inputs, input.clone())
	}

	for k, v := range record {
		if strings.TrimSpace(v) != "" {
			state.Record[k] = v
		}
	}

	return state
}

// Clone returns a deep copy of the state. Steps always receive a clone so a failing step
// cannot leave a half-mutated snapshot behind.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}

	clone := *s

	if s.Inputs != nil {
		clone.Inputs = make([]InputDocument, len(s.Inputs))
		for i, input := range s.Inputs {
			clone.Inputs[i] = input.clone()
		}
	}

	if s.Extractions != nil {
		clone.Extractions = make(map[string]map[string]string, len(s.Extractions))
		for doc, fields := range s.Extractions {
			clone.Extractions[doc] = maps.Clone(fields)
		}
	}

	clone.Classifications = maps.Clone(s.Classifications)
	clone.Record = maps.Clone(s.Record)
	clone.MissingCritical = slices.Clone(s.MissingCritical)
	clone.MissingOptional = slices.Clone(s.MissingOptional)
	clone.HumanResponse = maps.Clone(s.HumanResponse)
	clone.Artifact = slices.Clone(s.Artifact)
	clone.History = slices.Clone(s.History)

	if s.Question != nil {
		q := *s.Question
		clone.Question = &q
	}

	if s.Error != nil {
		e := *s.Error
		clone.Error = &e
	}

	return &clone
}

// Value returns the trimmed consolidated value for a field and whether it is non-empty.
func (s *WorkflowState) Value(field string) (string, bool) {
	v := strings.TrimSpace(s.Record[field])

	return v, v != ""
}

func (s *WorkflowState) HasQuestion() bool {
	return s.Question != nil
}

func (s *WorkflowState) HasArtifact() bool {
	return s.Artifact != nil
}

func (s *WorkflowState) HasError() bool {
	return s.Error != nil
}

// SetQuestion records the pending question that pauses the task.
func (s *WorkflowState) SetQuestion(question string) {
	s.Question = &question
}

// ClearQuestion removes the pending question. Only the resume protocol calls it.
func (s *WorkflowState) ClearQuestion() {
	s.Question = nil
}

// SetArtifact stores the rendered artifact.
func (s *WorkflowState) SetArtifact(payload []byte, contentType string) {
	if payload == nil {
		payload = []byte{}
	}

	s.Artifact = payload
	s.ArtifactContentType = contentType
}

// SetError marks the state as failed at the given step.
func (s *WorkflowState) SetError(message, step string) {
	s.Error = &message
	s.FailedStep = step
}

func (d InputDocument) clone() InputDocument {
	d.Fields = maps.Clone(d.Fields)

	return d
}
