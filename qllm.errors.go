package qllm

import (
	"errors"

	"github.com/itsatony/go-cuserr"
)

// Error message constants - all error messages must be constants.
const (
	// Definition errors
	ErrMsgDefinitionNameEmpty    = "template name cannot be empty"
	ErrMsgDefinitionContentEmpty = "template content cannot be empty"
	ErrMsgDefinitionParseFailed  = "template document parsing failed"
	ErrMsgInvalidVariableType    = "invalid input variable type"
	ErrMsgInvalidOutputType      = "invalid output variable type"

	// Input validation errors
	ErrMsgMissingVariable       = "required variable missing"
	ErrMsgVariableTypeMismatch  = "variable value does not match declared type"
	ErrMsgCustomValidatorFailed = "custom validator rejected value"

	// Output validation errors
	ErrMsgMissingOutput      = "declared output tag not found in response"
	ErrMsgOutputCoerceFailed = "output value coercion failed"

	// Execution errors
	ErrMsgProviderNil     = "execution context has no provider"
	ErrMsgTemplateNil     = "execution context has no template"
	ErrMsgProviderFailed  = "provider call failed"
	ErrMsgStreamFailed    = "provider stream failed"
	ErrMsgExecutionFailed = "template execution failed"

	// Inclusion errors
	ErrMsgCircularInclude = "circular include detected"
	ErrMsgIncludeDepth    = "include depth limit exceeded"
	ErrMsgIncludeLoad     = "include resource load failed"

	// Loader errors
	ErrMsgLoadFailed       = "content load failed"
	ErrMsgUnsupportedURL   = "unsupported identifier scheme"
	ErrMsgResponseTooLarge = "response body exceeds size limit"

	// Storage errors
	ErrMsgInvalidTemplateName = "template name is not a valid file name"
	ErrMsgTemplateNotFound    = "template not found"
	ErrMsgStoreClosed         = "template store is closed"
	ErrMsgStoreDriverUnknown  = "template store driver not registered"

	// PostgreSQL storage errors
	ErrMsgPostgresEmptyConnString  = "postgres connection string cannot be empty"
	ErrMsgPostgresConnectionFailed = "postgres connection failed"
	ErrMsgPostgresQueryFailed      = "postgres query failed"
	ErrMsgPostgresScanFailed       = "postgres row scan failed"
	ErrMsgPostgresMigrationFailed  = "postgres migration failed"
	ErrMsgPostgresDocumentInvalid  = "stored template document is invalid"
)

// Error code constants for categorization.
const (
	ErrCodeDefinition = "QLLM_DEFINITION"
	ErrCodeInput      = "QLLM_INPUT_VALIDATION"
	ErrCodeOutput     = "QLLM_OUTPUT_VALIDATION"
	ErrCodeExecution  = "QLLM_EXECUTION"
	ErrCodeInclude    = "QLLM_INCLUDE"
	ErrCodeLoader     = "QLLM_LOADER"
	ErrCodeStorage    = "QLLM_STORAGE"
)

// Error kind constants carried in metadata for pattern-match dispatch.
const (
	ErrKindInputValidation  = "input_validation"
	ErrKindOutputValidation = "output_validation"
	ErrKindExecution        = "execution"
	ErrKindInclude          = "include"
	ErrKindLoader           = "loader"
	ErrKindDefinition       = "definition"
	ErrKindStorage          = "storage"
	ErrKindStorageNotFound  = "storage_not_found"
)

// NewDefinitionError creates an error for invalid template definitions.
func NewDefinitionError(msg string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeDefinition, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeDefinition, msg)
	}
	return err.WithMetadata(MetaKeyErrorKind, ErrKindDefinition)
}

// NewInvalidVariableTypeError creates an error for an unknown input variable type.
func NewInvalidVariableTypeError(name string, typ string) error {
	return cuserr.NewValidationError(ErrCodeDefinition, ErrMsgInvalidVariableType).
		WithMetadata(MetaKeyErrorKind, ErrKindDefinition).
		WithMetadata(MetaKeyVariable, name).
		WithMetadata(MetaKeyType, typ)
}

// NewInvalidOutputTypeError creates an error for an unknown output variable type.
func NewInvalidOutputTypeError(name string, typ string) error {
	return cuserr.NewValidationError(ErrCodeDefinition, ErrMsgInvalidOutputType).
		WithMetadata(MetaKeyErrorKind, ErrKindDefinition).
		WithMetadata(MetaKeyVariable, name).
		WithMetadata(MetaKeyType, typ)
}

// NewInputValidationError creates a fatal input validation error naming the variable.
func NewInputValidationError(variable string, msg string) error {
	return cuserr.NewValidationError(ErrCodeInput, msg).
		WithMetadata(MetaKeyErrorKind, ErrKindInputValidation).
		WithMetadata(MetaKeyVariable, variable)
}

// NewMissingVariableError creates an error for a required variable with no value and no default.
func NewMissingVariableError(variable string) error {
	return NewInputValidationError(variable, ErrMsgMissingVariable)
}

// NewOutputValidationError creates a fatal output validation error naming the variable.
func NewOutputValidationError(variable string, msg string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeOutput, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeOutput, msg)
	}
	return err.
		WithMetadata(MetaKeyErrorKind, ErrKindOutputValidation).
		WithMetadata(MetaKeyVariable, variable)
}

// NewMissingOutputError creates an error for a declared output without a tag match or default.
func NewMissingOutputError(variable string) error {
	return NewOutputValidationError(variable, ErrMsgMissingOutput, nil)
}

// NewTemplateExecutionError wraps a pipeline failure, including provider failures.
func NewTemplateExecutionError(template string, msg string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeExecution, msg)
	} else {
		err = cuserr.NewInternalError(ErrCodeExecution, nil)
	}
	return err.
		WithMetadata(MetaKeyErrorKind, ErrKindExecution).
		WithMetadata(MetaKeyTemplate, template)
}

// NewCircularIncludeError creates a cycle error for a single include directive.
func NewCircularIncludeError(path string) error {
	return cuserr.NewValidationError(ErrCodeInclude, ErrMsgCircularInclude).
		WithMetadata(MetaKeyErrorKind, ErrKindInclude).
		WithMetadata(MetaKeyPath, path)
}

// NewIncludeDepthError creates an error for exceeding the include depth limit.
func NewIncludeDepthError(path string) error {
	return cuserr.NewValidationError(ErrCodeInclude, ErrMsgIncludeDepth).
		WithMetadata(MetaKeyErrorKind, ErrKindInclude).
		WithMetadata(MetaKeyPath, path)
}

// NewIncludeLoadError wraps a resource load failure for a single directive.
func NewIncludeLoadError(path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeInclude, ErrMsgIncludeLoad).
		WithMetadata(MetaKeyErrorKind, ErrKindInclude).
		WithMetadata(MetaKeyPath, path)
}

// NewLoadError wraps a content loader failure.
func NewLoadError(identifier string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeLoader, ErrMsgLoadFailed)
	} else {
		err = cuserr.NewValidationError(ErrCodeLoader, ErrMsgLoadFailed)
	}
	return err.
		WithMetadata(MetaKeyErrorKind, ErrKindLoader).
		WithMetadata(MetaKeyPath, identifier)
}

// NewUnsupportedSchemeError creates an error for identifiers the loader cannot handle.
func NewUnsupportedSchemeError(identifier string) error {
	return cuserr.NewValidationError(ErrCodeLoader, ErrMsgUnsupportedURL).
		WithMetadata(MetaKeyErrorKind, ErrKindLoader).
		WithMetadata(MetaKeyPath, identifier)
}

// NewTemplateNotFoundError creates an error for a missing stored template.
func NewTemplateNotFoundError(name string) error {
	return cuserr.NewNotFoundError(MetaKeyTemplate, ErrMsgTemplateNotFound).
		WithMetadata(MetaKeyErrorKind, ErrKindStorageNotFound).
		WithMetadata(MetaKeyTemplate, name)
}

// NewStoreClosedError creates an error for operations on a closed store.
func NewStoreClosedError() error {
	return cuserr.NewValidationError(ErrCodeStorage, ErrMsgStoreClosed).
		WithMetadata(MetaKeyErrorKind, ErrKindStorage)
}

// NewStoreDriverNotFoundError creates an error for an unregistered store driver.
func NewStoreDriverNotFoundError(driver string) error {
	return cuserr.NewNotFoundError(MetaKeyDriver, ErrMsgStoreDriverUnknown).
		WithMetadata(MetaKeyErrorKind, ErrKindStorage).
		WithMetadata(MetaKeyDriver, driver)
}

// NewStorageError wraps a backend failure.
func NewStorageError(msg string, name string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeStorage, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeStorage, msg)
	}
	return err.
		WithMetadata(MetaKeyErrorKind, ErrKindStorage).
		WithMetadata(MetaKeyTemplate, name)
}

// errorKind extracts the error kind metadata from any error in the chain.
func errorKind(err error) (string, bool) {
	var customErr *cuserr.CustomError
	if !errors.As(err, &customErr) {
		return "", false
	}
	return customErr.GetMetadata(MetaKeyErrorKind)
}

// IsInputValidationError reports whether err is an input validation failure.
func IsInputValidationError(err error) bool {
	kind, ok := errorKind(err)
	return ok && kind == ErrKindInputValidation
}

// IsOutputValidationError reports whether err is an output validation failure.
func IsOutputValidationError(err error) bool {
	kind, ok := errorKind(err)
	return ok && kind == ErrKindOutputValidation
}

// IsExecutionError reports whether err is a wrapped pipeline failure.
func IsExecutionError(err error) bool {
	kind, ok := errorKind(err)
	return ok && kind == ErrKindExecution
}

// IsIncludeError reports whether err is an inclusion failure.
func IsIncludeError(err error) bool {
	kind, ok := errorKind(err)
	return ok && kind == ErrKindInclude
}

// IsTemplateNotFoundError reports whether err is a storage miss.
func IsTemplateNotFoundError(err error) bool {
	kind, ok := errorKind(err)
	return ok && kind == ErrKindStorageNotFound
}

// ErrorVariable extracts the variable name from a validation error, if present.
func ErrorVariable(err error) (string, bool) {
	var customErr *cuserr.CustomError
	if !errors.As(err, &customErr) {
		return "", false
	}
	return customErr.GetMetadata(MetaKeyVariable)
}
