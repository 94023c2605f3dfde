// Package reference implements pkg/governance.Provider for local
// development, the CLI, and executor tests: JSON Schema for ingress/egress
// payload shape, a CEL boolean expression for action authorization, and a
// static degradation-ladder table for capsule status. Production
// deployments are expected to supply their own Provider talking to the
// real CIF/CDI policy layer — this one only needs to be good enough to
// exercise the pipeline end to end.
package reference

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaSet holds compiled per-intent JSON schemas for payload and
// response validation, grounded on the teacher's PolicyFirewall use of
// jsonschema/v5 to validate tool call parameters against an allowlist.
type SchemaSet struct {
	payload  map[string]*jsonschema.Schema
	response map[string]*jsonschema.Schema
}

func NewSchemaSet() *SchemaSet {
	return &SchemaSet{
		payload:  make(map[string]*jsonschema.Schema),
		response: make(map[string]*jsonschema.Schema),
	}
}

// RegisterPayloadSchema compiles and registers a JSON Schema document
// (draft 2020-12) validating the ingress payload for intent.
func (s *SchemaSet) RegisterPayloadSchema(intent, schemaDoc string) error {
	compiled, err := compileSchema(intent, "payload", schemaDoc)
	if err != nil {
		return err
	}
	s.payload[intent] = compiled
	return nil
}

// RegisterResponseSchema compiles and registers a JSON Schema document
// validating the egress response for intent.
func (s *SchemaSet) RegisterResponseSchema(intent, schemaDoc string) error {
	compiled, err := compileSchema(intent, "response", schemaDoc)
	if err != nil {
		return err
	}
	s.response[intent] = compiled
	return nil
}

func compileSchema(intent, kind, schemaDoc string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://mathison.schemas.local/%s/%s.schema.json", kind, intent)
	if err := c.AddResource(url, strings.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("reference: %s schema load failed for %q: %w", kind, intent, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("reference: %s schema compile failed for %q: %w", kind, intent, err)
	}
	return compiled, nil
}

// validatePayload validates v against intent's registered payload schema.
// Intents with no registered schema pass unconditionally — schemas are
// opt-in per intent, not a universal gate.
func (s *SchemaSet) validatePayload(intent string, v map[string]any) []string {
	schema, ok := s.payload[intent]
	if !ok {
		return nil
	}
	if err := schema.Validate(v); err != nil {
		return []string{err.Error()}
	}
	return nil
}

func (s *SchemaSet) validateResponse(intent string, v map[string]any) []string {
	schema, ok := s.response[intent]
	if !ok {
		return nil
	}
	if err := schema.Validate(v); err != nil {
		return []string{err.Error()}
	}
	return nil
}
