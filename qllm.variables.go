package qllm

import (
	"github.com/itsatony/go-qllm/internal"
)

// ExtractOptions controls which variable expression extensions the
// extractor recognizes beyond the root identifier.
type ExtractOptions struct {
	// AllowDotNotation enables `{{user.name}}` style references.
	AllowDotNotation bool

	// AllowBracketNotation enables `{{items[0]}}` style references.
	AllowBracketNotation bool

	// AllowFunctionCalls enables `{{upper(name)}}` style references.
	AllowFunctionCalls bool
}

// DefaultExtractOptions enables all extension forms.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		AllowDotNotation:     true,
		AllowBracketNotation: true,
		AllowFunctionCalls:   true,
	}
}

// ExtractVariables scans content for {{name}} variable references and
// returns a spec map containing every referenced root name. Names already
// present in existing keep their spec untouched; names only found in the
// content are synthesized as inferred string specs. The existing map is
// not mutated.
//
// Only the root identifier of each reference is retained; dot, bracket and
// function-call extension chains are discarded. Behavior on nested
// double-brace sequences ({{ outer {{ inner }} }}) is undefined.
func ExtractVariables(content string, existing map[string]VariableSpec, opts ExtractOptions) map[string]VariableSpec {
	result := make(map[string]VariableSpec, len(existing))
	for name, spec := range existing {
		result[name] = spec
	}

	if content == "" {
		return result
	}

	names := internal.ScanVariables(content, internal.ScanOptions{
		AllowDotNotation:     opts.AllowDotNotation,
		AllowBracketNotation: opts.AllowBracketNotation,
		AllowFunctionCalls:   opts.AllowFunctionCalls,
	})

	for _, name := range names {
		if _, declared := result[name]; declared {
			continue
		}
		result[name] = VariableSpec{
			Type:        TypeString,
			Description: DescriptionPrefixInferred + name,
			Inferred:    true,
		}
	}

	return result
}

// ReferencedVariables returns the unique root names referenced in content,
// in first-appearance order.
func ReferencedVariables(content string, opts ExtractOptions) []string {
	return internal.ScanVariables(content, internal.ScanOptions{
		AllowDotNotation:     opts.AllowDotNotation,
		AllowBracketNotation: opts.AllowBracketNotation,
		AllowFunctionCalls:   opts.AllowFunctionCalls,
	})
}
