package qllm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// TemplateDefinitionSchema returns the JSON Schema describing template
// documents. Useful for editor integration and for validating documents
// outside this package.
func TemplateDefinitionSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return reflector.Reflect(&TemplateDefinition{})
}

// TemplateDefinitionSchemaJSON returns the template document schema as
// indented JSON.
func TemplateDefinitionSchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(TemplateDefinitionSchema(), "", "  ")
	if err != nil {
		return nil, NewDefinitionError(ErrMsgDefinitionParseFailed, err)
	}
	return data, nil
}
