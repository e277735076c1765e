package events

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// eventSchema is the ingest contract for a single raw event record.
// Validation failures are permanent: a malformed record is rejected, never
// retried.
const eventSchema = `{
	"type": "object",
	"required": ["entity_id", "timestamp", "amount"],
	"properties": {
		"entity_id": {"type": "string", "minLength": 1},
		"timestamp": {"type": "string", "format": "date-time"},
		"amount": {"type": "number", "minimum": 0},
		"category": {"type": "string"},
		"quantity": {"type": "integer", "minimum": 0}
	},
	"additionalProperties": true
}`

// Validator checks raw ingest records against the event schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the event schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateRecord validates one raw JSON record. The returned error lists
// every violation, not just the first.
func (v *Validator) ValidateRecord(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate record: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msg := "invalid event record:"
	for _, desc := range result.Errors() {
		msg += " " + desc.String() + ";"
	}
	return fmt.Errorf("%s", msg)
}
