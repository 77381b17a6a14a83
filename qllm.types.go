package qllm

// VariableSpec describes a declared template input variable.
type VariableSpec struct {
	// Type is one of string, number, boolean, array, file_path, files_path.
	Type VariableType `yaml:"type" json:"type"`

	// Description documents the variable for template consumers.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Default is applied when no value is supplied at execution time.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`

	// Inferred marks specs synthesized by variable extraction rather than
	// declared by the template author.
	Inferred bool `yaml:"inferred,omitempty" json:"inferred,omitempty"`

	// CustomValidator is invoked with the resolved value during input
	// validation. Not serializable; set programmatically only.
	CustomValidator func(value any) error `yaml:"-" json:"-"`
}

// OutputVariableSpec describes a declared template output variable.
type OutputVariableSpec struct {
	// Type is one of string, integer, float, boolean, array, object.
	Type OutputType `yaml:"type" json:"type"`

	// Description documents the output for template consumers.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Default is used when the response contains no matching output tag.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`
}

// TemplateDefinition is an immutable-once-built template record.
// Build instances through NewTemplateDefinition or ParseTemplateDefinition,
// which validate the record and infer undeclared referenced variables.
type TemplateDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`

	// Content is the raw template text.
	Content string `yaml:"content" json:"content"`

	// ResolvedContent optionally holds content with inclusions already
	// expanded. When set, rendering prefers it over Content.
	ResolvedContent string `yaml:"resolved_content,omitempty" json:"resolved_content,omitempty"`

	// InputVariables maps variable names to their specs. After construction
	// every {{name}} referenced in Content has an entry here.
	InputVariables map[string]VariableSpec `yaml:"input_variables,omitempty" json:"input_variables,omitempty"`

	// OutputVariables maps declared output names to their specs.
	OutputVariables map[string]OutputVariableSpec `yaml:"output_variables,omitempty" json:"output_variables,omitempty"`

	// Parameters holds model-tuning knobs passed through to the provider
	// untouched (temperature, max_tokens, ...). Opaque to the engine.
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Clone returns a deep copy of the definition.
func (t *TemplateDefinition) Clone() *TemplateDefinition {
	if t == nil {
		return nil
	}

	clone := &TemplateDefinition{
		Name:            t.Name,
		Version:         t.Version,
		Description:     t.Description,
		Author:          t.Author,
		Content:         t.Content,
		ResolvedContent: t.ResolvedContent,
	}

	if t.InputVariables != nil {
		clone.InputVariables = make(map[string]VariableSpec, len(t.InputVariables))
		for k, v := range t.InputVariables {
			clone.InputVariables[k] = v
		}
	}
	if t.OutputVariables != nil {
		clone.OutputVariables = make(map[string]OutputVariableSpec, len(t.OutputVariables))
		for k, v := range t.OutputVariables {
			clone.OutputVariables[k] = v
		}
	}
	if t.Parameters != nil {
		clone.Parameters = make(map[string]any, len(t.Parameters))
		for k, v := range t.Parameters {
			clone.Parameters[k] = v
		}
	}

	return clone
}

// HasOutputs reports whether any output variables are declared.
func (t *TemplateDefinition) HasOutputs() bool {
	return t != nil && len(t.OutputVariables) > 0
}

// EffectiveContent returns ResolvedContent when present, Content otherwise.
func (t *TemplateDefinition) EffectiveContent() string {
	if t.ResolvedContent != "" {
		return t.ResolvedContent
	}
	return t.Content
}

// isValidVariableType reports whether typ is a known input variable type.
func isValidVariableType(typ VariableType) bool {
	switch typ {
	case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeFilePath, TypeFilesPath:
		return true
	default:
		return false
	}
}

// isValidOutputType reports whether typ is a known output variable type.
func isValidOutputType(typ OutputType) bool {
	switch typ {
	case OutputString, OutputInteger, OutputFloat, OutputBoolean, OutputArray, OutputObject:
		return true
	default:
		return false
	}
}
