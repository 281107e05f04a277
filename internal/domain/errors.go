package domain

import "errors"

var (
	// ErrEmptyPrompt is returned when both system and user prompts are empty.
	ErrEmptyPrompt = errors.New("prompt must define a system or user prompt")

	// ErrMissingContentToken is returned when neither prompt contains the
	// document content placeholder.
	ErrMissingContentToken = errors.New("prompt must contain the {document_content} placeholder")
)
