// Package qllm implements a prompt templating and execution engine for LLM
// applications. A template combines literal text, {{name}} variable
// placeholders, {{include:path}} content inclusions, and declared typed
// input/output variables.
//
// # Basic Usage
//
// Parse a template document and execute it against a provider:
//
//	tmpl, err := qllm.ParseTemplateDefinition(doc)
//	engine := qllm.MustNew(qllm.WithLogger(logger))
//	result, err := engine.Execute(ctx, &qllm.ExecutionContext{
//	    Template:  tmpl,
//	    Variables: map[string]any{"name": "Ada"},
//	    Provider:  provider,
//	})
//	// result.Response holds the raw model text,
//	// result.OutputVariables the coerced <tag>...</tag> extractions.
//
// # Template Documents
//
// Templates are YAML or JSON documents:
//
//	name: greeter
//	version: "1.0"
//	content: "Hello {{name}}! {{include:./footer.txt}}"
//	input_variables:
//	  name:
//	    type: string
//	output_variables:
//	  greeting:
//	    type: string
//
// Variables referenced in content but not declared are inferred as strings
// at construction time. Declared specs are never overwritten by inference.
//
// # Inclusions
//
// {{include:path}} directives are expanded recursively across files and
// URLs. Cycle detection is scoped to the ancestor chain, so diamond-shaped
// inclusion graphs resolve while self-references degrade to an unexpanded
// directive with a logged warning. A failed inclusion never aborts the rest
// of the document.
//
// # Output Variables
//
// The calling prompt instructs the model to wrap each declared output in
// <name>...</name> tags. After dispatch the engine extracts and type-coerces
// these spans; the untouched response is always available under the
// reserved qllm_response key.
//
// # Error Handling
//
// Errors are structured go-cuserr values carrying an error kind and the
// offending variable or path in metadata. Use IsInputValidationError,
// IsOutputValidationError and friends to dispatch on kind.
package qllm
