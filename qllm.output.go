package qllm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// outputTagPattern builds the non-greedy, multiline-capable pattern for a
// single output tag. (?s) lets the captured span contain newlines.
func outputTagPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(name) + `>(.*?)</` + regexp.QuoteMeta(name) + `>`)
}

// ExtractOutputs extracts and coerces the declared output variables from a
// raw model response.
//
// For each declared output K the first <K>...</K> span is captured and
// trimmed. A missing span falls back to the declared default; with no default
// the extraction fails with an OutputValidationError naming K. The result
// always carries the untouched response under the reserved qllm_response
// key, so callers can access both the structured extraction and the raw
// text.
func ExtractOutputs(tmpl *TemplateDefinition, response string) (map[string]any, error) {
	result := make(map[string]any, len(tmpl.OutputVariables)+1)
	result[ResponseKey] = response

	for _, name := range tmpl.OutputVariableNames() {
		spec := tmpl.OutputVariables[name]

		match := outputTagPattern(name).FindStringSubmatch(response)
		if match == nil {
			if spec.Default != nil {
				result[name] = spec.Default
				continue
			}
			return nil, NewMissingOutputError(name)
		}

		value, err := coerceOutput(name, strings.TrimSpace(match[1]), spec.Type)
		if err != nil {
			return nil, err
		}
		result[name] = value
	}

	return result, nil
}

// coerceOutput converts a trimmed tag span to the declared output type.
func coerceOutput(name string, raw string, typ OutputType) (any, error) {
	switch typ {
	case OutputString, "":
		return raw, nil

	case OutputInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, NewOutputValidationError(name, ErrMsgOutputCoerceFailed, err)
		}
		return n, nil

	case OutputFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, NewOutputValidationError(name, ErrMsgOutputCoerceFailed, err)
		}
		return f, nil

	case OutputBoolean:
		switch strings.ToLower(raw) {
		case BoolLiteralTrue:
			return true, nil
		case BoolLiteralFalse:
			return false, nil
		default:
			return nil, NewOutputValidationError(name, ErrMsgOutputCoerceFailed, nil)
		}

	case OutputArray:
		var arr []any
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return nil, NewOutputValidationError(name, ErrMsgOutputCoerceFailed, err)
		}
		return arr, nil

	case OutputObject:
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, NewOutputValidationError(name, ErrMsgOutputCoerceFailed, err)
		}
		return obj, nil

	default:
		return nil, NewInvalidOutputTypeError(name, string(typ))
	}
}
