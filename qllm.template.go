package qllm

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// NewTemplateDefinition validates a definition and infers input variables
// for every {{name}} referenced in the content but not yet declared.
// The input is not mutated; the returned definition is a validated copy.
func NewTemplateDefinition(def *TemplateDefinition) (*TemplateDefinition, error) {
	return newTemplateDefinition(def, DefaultExtractOptions())
}

// NewTemplateDefinitionWithOptions is NewTemplateDefinition with custom
// variable extraction options.
func NewTemplateDefinitionWithOptions(def *TemplateDefinition, opts ExtractOptions) (*TemplateDefinition, error) {
	return newTemplateDefinition(def, opts)
}

func newTemplateDefinition(def *TemplateDefinition, opts ExtractOptions) (*TemplateDefinition, error) {
	if def == nil {
		return nil, NewDefinitionError(ErrMsgDefinitionContentEmpty, nil)
	}
	if def.Name == "" {
		return nil, NewDefinitionError(ErrMsgDefinitionNameEmpty, nil)
	}
	if def.Content == "" {
		return nil, NewDefinitionError(ErrMsgDefinitionContentEmpty, nil)
	}

	for name, spec := range def.InputVariables {
		if spec.Type == "" {
			continue // defaulted to string below
		}
		if !isValidVariableType(spec.Type) {
			return nil, NewInvalidVariableTypeError(name, string(spec.Type))
		}
	}
	for name, spec := range def.OutputVariables {
		if spec.Type != "" && !isValidOutputType(spec.Type) {
			return nil, NewInvalidOutputTypeError(name, string(spec.Type))
		}
	}

	built := def.Clone()

	// Default untyped declared specs to string.
	for name, spec := range built.InputVariables {
		if spec.Type == "" {
			spec.Type = TypeString
			built.InputVariables[name] = spec
		}
	}
	for name, spec := range built.OutputVariables {
		if spec.Type == "" {
			spec.Type = OutputString
			built.OutputVariables[name] = spec
		}
	}

	built.InputVariables = ExtractVariables(built.Content, built.InputVariables, opts)

	return built, nil
}

// ParseTemplateDefinition parses a YAML or JSON template document and builds
// a validated definition. JSON is a subset of YAML, so both formats go
// through the same decoder.
func ParseTemplateDefinition(data []byte) (*TemplateDefinition, error) {
	if len(data) == 0 {
		return nil, NewDefinitionError(ErrMsgDefinitionParseFailed, nil)
	}

	var def TemplateDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, NewDefinitionError(ErrMsgDefinitionParseFailed, err)
	}

	return NewTemplateDefinition(&def)
}

// ParseTemplateDefinitionFile reads a file and parses it as a template document.
func ParseTemplateDefinitionFile(path string) (*TemplateDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDefinitionError(ErrMsgDefinitionParseFailed, err)
	}
	return ParseTemplateDefinition(data)
}

// MustParseTemplateDefinition parses a template document and panics on error.
func MustParseTemplateDefinition(data []byte) *TemplateDefinition {
	def, err := ParseTemplateDefinition(data)
	if err != nil {
		panic(err)
	}
	return def
}

// Serialize marshals the definition back to YAML.
func (t *TemplateDefinition) Serialize() ([]byte, error) {
	return yaml.Marshal(t)
}

// InputVariableNames returns declared input variable names in sorted order.
func (t *TemplateDefinition) InputVariableNames() []string {
	names := make([]string, 0, len(t.InputVariables))
	for name := range t.InputVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputVariableNames returns declared output variable names in sorted order.
func (t *TemplateDefinition) OutputVariableNames() []string {
	names := make([]string, 0, len(t.OutputVariables))
	for name := range t.OutputVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
