package qllm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionContext carries everything one Execute call needs. It is created
// fresh per invocation, holds no state beyond the call, and is discarded on
// completion.
type ExecutionContext struct {
	// Template is the definition to execute.
	Template *TemplateDefinition

	// Variables is the caller-supplied value bag.
	Variables map[string]any

	// Provider handles the model call.
	Provider Provider

	// Stream selects streaming dispatch. Chunks are concatenated into the
	// final response and surfaced as stream-chunk events along the way.
	Stream bool

	// OnMissingVariables, when set, is invoked with the names of required
	// variables that have no value and no default, plus the partial bag.
	// Returned values are merged before validation. Without a callback,
	// missing variables surface as an input validation failure.
	OnMissingVariables func(missing []string, supplied map[string]any) map[string]any
}

// ExecutionResult is the outcome of a successful execution.
type ExecutionResult struct {
	// Response is the raw model response text.
	Response string

	// OutputVariables holds the coerced declared outputs plus the raw
	// response under the reserved qllm_response key.
	OutputVariables map[string]any
}

// Executor runs the template execution pipeline: resolve variables,
// validate input, render content, resolve remaining inclusions, dispatch to
// the provider, extract outputs. Validation failures abort with no partial
// result; a complete result or an error is always returned, never a
// silently truncated response.
//
// Each Execute call is a single logical unit of work with no internal
// parallel fan-out. Concurrent calls against one Executor are safe.
type Executor struct {
	loader   ContentLoader
	includes *IncludeResolver
	events   *eventDispatcher
	logger   *zap.Logger
}

// NewExecutor creates an Executor. Nil collaborators fall back to defaults.
func NewExecutor(loader ContentLoader, includes *IncludeResolver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = NewResourceLoader(DefaultResourceLoaderConfig(), logger)
	}
	if includes == nil {
		includes = NewIncludeResolver(loader, logger, DefaultMaxIncludeDepth)
	}

	return &Executor{
		loader:   loader,
		includes: includes,
		events:   newEventDispatcher(),
		logger:   logger,
	}
}

// Subscribe registers a listener for lifecycle events of all subsequent
// executions on this Executor.
func (e *Executor) Subscribe(listener EventListener) {
	e.events.subscribe(listener)
}

// Execute runs the full pipeline for one invocation.
func (e *Executor) Execute(ctx context.Context, ec *ExecutionContext) (*ExecutionResult, error) {
	if ec == nil || ec.Template == nil {
		return nil, NewTemplateExecutionError("", ErrMsgTemplateNil, nil)
	}
	if ec.Provider == nil {
		return nil, NewTemplateExecutionError(ec.Template.Name, ErrMsgProviderNil, nil)
	}

	tmpl := ec.Template
	executionID := uuid.NewString()

	e.logger.Debug(LogMsgExecutionStart,
		zap.String(LogFieldTemplate, tmpl.Name),
		zap.String(LogFieldExecution, executionID))
	e.emit(EventExecutionStart, executionID, tmpl.Name)

	// RESOLVE_VARIABLES
	specs, values, err := e.resolveVariables(ctx, ec)
	if err != nil {
		return nil, e.fail(executionID, tmpl.Name, err)
	}

	// VALIDATE_INPUT
	validated, err := validateInputs(specs, values)
	if err != nil {
		return nil, e.fail(executionID, tmpl.Name, err)
	}
	e.emit(EventVariablesResolved, executionID, tmpl.Name)

	// RENDER_CONTENT
	rendered := renderContent(tmpl.EffectiveContent(), validated)
	e.emit(EventContentPrepared, executionID, tmpl.Name)

	// RESOLVE_INCLUDES
	// The resolver also strips escape markers, so escaped-only content
	// still needs a pass.
	if strings.Contains(rendered, IncludePrefix) {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			wd = "."
		}
		rendered, err = e.includes.Resolve(ctx, rendered, filepath.Join(wd, tmpl.Name))
		if err != nil {
			return nil, e.fail(executionID, tmpl.Name, NewTemplateExecutionError(tmpl.Name, ErrMsgExecutionFailed, err))
		}
	}

	// DISPATCH
	e.emit(EventRequestSent, executionID, tmpl.Name)
	response, err := e.dispatch(ctx, ec, executionID, rendered)
	if err != nil {
		return nil, e.fail(executionID, tmpl.Name, err)
	}

	// EXTRACT_OUTPUT
	outputs, err := ExtractOutputs(tmpl, response)
	if err != nil {
		return nil, e.fail(executionID, tmpl.Name, err)
	}
	e.emit(EventOutputsProcessed, executionID, tmpl.Name)

	e.emit(EventExecutionComplete, executionID, tmpl.Name)
	e.logger.Debug(LogMsgExecutionComplete,
		zap.String(LogFieldTemplate, tmpl.Name),
		zap.String(LogFieldExecution, executionID))

	return &ExecutionResult{
		Response:        response,
		OutputVariables: outputs,
	}, nil
}

// fail emits the terminal error event and passes the error through.
func (e *Executor) fail(executionID string, template string, err error) error {
	e.events.emit(ExecutionEvent{
		Type:         EventExecutionError,
		ExecutionID:  executionID,
		TemplateName: template,
		Err:          err,
	})
	return err
}

func (e *Executor) emit(typ EventType, executionID string, template string) {
	e.events.emit(ExecutionEvent{
		Type:         typ,
		ExecutionID:  executionID,
		TemplateName: template,
	})
}

// resolveVariables implements the RESOLVE_VARIABLES state: load
// file_path/files_path values through the content loader and downgrade
// those specs to string, give the missing-variables callback a chance to
// fill gaps, then apply declared defaults.
func (e *Executor) resolveVariables(ctx context.Context, ec *ExecutionContext) (map[string]VariableSpec, map[string]any, error) {
	tmpl := ec.Template

	specs := make(map[string]VariableSpec, len(tmpl.InputVariables))
	for name, spec := range tmpl.InputVariables {
		specs[name] = spec
	}

	values := make(map[string]any, len(ec.Variables))
	for name, value := range ec.Variables {
		values[name] = value
	}

	// (a) file-backed variables become their loaded content.
	for name, spec := range specs {
		value, supplied := values[name]
		if !supplied {
			continue
		}

		switch spec.Type {
		case TypeFilePath:
			path, ok := value.(string)
			if !ok {
				return nil, nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
			}
			loaded, err := e.loader.Load(ctx, path)
			if err != nil {
				return nil, nil, NewInputValidationError(name, err.Error())
			}
			values[name] = loaded.Text()
			spec.Type = TypeString
			specs[name] = spec

		case TypeFilesPath:
			paths, err := pathList(name, value)
			if err != nil {
				return nil, nil, err
			}
			parts := make([]string, 0, len(paths))
			for _, path := range paths {
				loaded, err := e.loader.Load(ctx, path)
				if err != nil {
					return nil, nil, NewInputValidationError(name, err.Error())
				}
				parts = append(parts, loaded.Text())
			}
			values[name] = strings.Join(parts, "\n")
			spec.Type = TypeString
			specs[name] = spec
		}
	}

	// (b) give the callback a chance to supply missing required values.
	if ec.OnMissingVariables != nil {
		var missing []string
		for _, name := range sortedSpecNames(specs) {
			if _, supplied := values[name]; !supplied && specs[name].Default == nil {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			for name, value := range ec.OnMissingVariables(missing, values) {
				values[name] = value
			}
		}
	}

	// (c) declared defaults for anything still absent.
	for name, spec := range specs {
		if _, supplied := values[name]; !supplied && spec.Default != nil {
			values[name] = spec.Default
		}
	}

	return specs, values, nil
}

// pathList normalizes a files_path value into a list of path strings.
func pathList(name string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
			}
			paths = append(paths, s)
		}
		return paths, nil
	case string:
		var paths []string
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				paths = append(paths, trimmed)
			}
		}
		return paths, nil
	default:
		return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
	}
}

// validateInputs implements the VALIDATE_INPUT state: every declared
// variable must have a value, and values are loosely coerced to their
// declared type. The first failing variable aborts with an
// InputValidationError naming it.
func validateInputs(specs map[string]VariableSpec, values map[string]any) (map[string]any, error) {
	validated := make(map[string]any, len(values))
	for name, value := range values {
		validated[name] = value
	}

	for _, name := range sortedSpecNames(specs) {
		spec := specs[name]

		value, supplied := values[name]
		if !supplied {
			return nil, NewMissingVariableError(name)
		}

		coerced, err := coerceInput(name, value, spec.Type)
		if err != nil {
			return nil, err
		}

		if spec.CustomValidator != nil {
			if err := spec.CustomValidator(coerced); err != nil {
				return nil, NewInputValidationError(name, ErrMsgCustomValidatorFailed+": "+err.Error())
			}
		}

		validated[name] = coerced
	}

	return validated, nil
}

// coerceInput applies loose input coercion: numeric strings for numbers,
// true/false strings for booleans, native lists or JSON/comma-separated
// strings for arrays.
func coerceInput(name string, value any, typ VariableType) (any, error) {
	switch typ {
	case TypeString, TypeFilePath, TypeFilesPath, "":
		switch v := value.(type) {
		case string:
			return v, nil
		case bool, int, int64, float32, float64:
			return fmt.Sprint(v), nil
		default:
			return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
		}

	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
			}
			return f, nil
		default:
			return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
		}

	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case BoolLiteralTrue:
				return true, nil
			case BoolLiteralFalse:
				return false, nil
			}
			return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
		default:
			return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
		}

	case TypeArray:
		switch v := value.(type) {
		case []any:
			return v, nil
		case []string:
			arr := make([]any, len(v))
			for i, s := range v {
				arr[i] = s
			}
			return arr, nil
		case string:
			trimmed := strings.TrimSpace(v)
			if strings.HasPrefix(trimmed, "[") {
				var arr []any
				if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
					return arr, nil
				}
			}
			var arr []any
			for _, part := range strings.Split(v, ",") {
				arr = append(arr, strings.TrimSpace(part))
			}
			return arr, nil
		default:
			return nil, NewInputValidationError(name, ErrMsgVariableTypeMismatch)
		}

	default:
		return nil, NewInvalidVariableTypeError(name, string(typ))
	}
}

// renderContent implements the RENDER_CONTENT state: every {{ key }}
// occurrence is replaced by the stringified value in a single pass over
// the content, so references inside substituted values are never expanded
// again. Array values are joined with newlines.
func renderContent(content string, values map[string]any) string {
	if len(values) == 0 {
		return content
	}

	quoted := make([]string, 0, len(values))
	for name := range values {
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	sort.Strings(quoted)

	pattern := regexp.MustCompile(`\{\{\s*(` + strings.Join(quoted, "|") + `)\s*\}\}`)
	return pattern.ReplaceAllStringFunc(content, func(match string) string {
		name := strings.Trim(match, "{} \t\r\n")
		return stringifyValue(values[name])
	})
}

// stringifyValue converts a resolved variable value to its rendered form.
func stringifyValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = stringifyValue(item)
		}
		return strings.Join(parts, "\n")
	case []string:
		return strings.Join(v, "\n")
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprint(v)
	}
}

// dispatch implements the DISPATCH state: one user-role message, streaming
// or blocking per the execution context.
func (e *Executor) dispatch(ctx context.Context, ec *ExecutionContext, executionID string, rendered string) (string, error) {
	tmpl := ec.Template
	messages := []Message{NewUserMessage(rendered)}
	opts := GenerateOptions{Parameters: tmpl.Parameters}

	if !ec.Stream {
		result, err := ec.Provider.Generate(ctx, messages, opts)
		if err != nil {
			return "", NewTemplateExecutionError(tmpl.Name, ErrMsgProviderFailed, err)
		}
		e.emit(EventResponseReceived, executionID, tmpl.Name)
		return result.Text, nil
	}

	chunks, err := ec.Provider.Stream(ctx, messages, opts)
	if err != nil {
		return "", NewTemplateExecutionError(tmpl.Name, ErrMsgStreamFailed, err)
	}
	e.emit(EventStreamStart, executionID, tmpl.Name)

	var sb strings.Builder
	count := 0
	for chunk := range chunks {
		if chunk.Err != nil {
			e.events.emit(ExecutionEvent{
				Type:         EventStreamError,
				ExecutionID:  executionID,
				TemplateName: tmpl.Name,
				Err:          chunk.Err,
			})
			return "", NewTemplateExecutionError(tmpl.Name, ErrMsgStreamFailed, chunk.Err)
		}
		if chunk.TextDelta != "" {
			sb.WriteString(chunk.TextDelta)
			count++
			e.events.emit(ExecutionEvent{
				Type:         EventStreamChunk,
				ExecutionID:  executionID,
				TemplateName: tmpl.Name,
				Chunk:        chunk.TextDelta,
			})
		}
	}

	e.logger.Debug(LogMsgStreamChunk,
		zap.String(LogFieldExecution, executionID),
		zap.Int(LogFieldChunks, count))
	e.emit(EventStreamComplete, executionID, tmpl.Name)
	return sb.String(), nil
}

// sortedSpecNames returns spec names in deterministic order so the first
// failing variable is stable across runs.
func sortedSpecNames(specs map[string]VariableSpec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
