package http

import (
	_ "embed"
	"encoding/json"
	"fmt"

	js "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed flow.schema.json
var flowSchemaSource string

var flowSchema = js.MustCompileString("flow.schema.json", flowSchemaSource)

// checkFlowDocument validates the raw document shape before it is decoded
// into a domain.Flow.
func checkFlowDocument(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := flowSchema.Validate(doc); err != nil {
		return err
	}
	return nil
}
