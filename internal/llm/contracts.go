package llm

import "context"

// Request is one stateless generation call. Content carries the document
// text (and, for questions, the question); SystemInstruction the rules.
// ResponseSchema is optional; when set the backend is asked for JSON
// matching it.
type Request struct {
	Content           string
	SystemInstruction string
	ResponseSchema    map[string]any
	SchemaName        string
}

// Response is the backend's raw text. Text may be empty; deciding whether
// that is acceptable is up to the caller.
type Response struct {
	Text         string
	Model        string
	FinishReason string
}

// Generator is the generation backend boundary.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
