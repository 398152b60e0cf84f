package gateway

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Request body schemas. Presence of fields is checked by the handlers so the
// user-facing messages stay specific; the schemas reject bodies whose fields
// have the wrong type.
const (
	chatRequestSchema = `{
		"type": "object",
		"properties": {
			"message": {"type": "string"}
		}
	}`

	conversationRequestSchema = `{
		"type": "object",
		"properties": {
			"conversation_id": {"type": "string"}
		}
	}`

	newConversationSchema = `{
		"type": "object",
		"properties": {
			"name": {"type": "string"}
		}
	}`
)

// requestValidator holds the compiled schemas for the POST endpoints.
type requestValidator struct {
	chat         *gojsonschema.Schema
	conversation *gojsonschema.Schema
	create       *gojsonschema.Schema
}

func newRequestValidator() (*requestValidator, error) {
	compile := func(src string) (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	}

	chat, err := compile(chatRequestSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat schema: %w", err)
	}
	conv, err := compile(conversationRequestSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile conversation schema: %w", err)
	}
	create, err := compile(newConversationSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile create schema: %w", err)
	}

	return &requestValidator{chat: chat, conversation: conv, create: create}, nil
}

// validate checks a request body against a schema. An empty body is accepted
// the same way the frontend's empty JSON object is.
func (v *requestValidator) validate(schema *gojsonschema.Schema, body []byte) bool {
	if len(body) == 0 {
		return true
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false
	}
	return result.Valid()
}
