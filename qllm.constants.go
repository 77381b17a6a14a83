package qllm

import "time"

// Delimiter constants for variable references and inclusion directives.
const (
	DefaultOpenDelim  = "{{"
	DefaultCloseDelim = "}}"
	IncludePrefix     = "{{include:"
	IncludeSuffix     = "}}"
	EscapeMarker      = "\\"
)

// ResponseKey is the reserved output key that always carries the raw,
// untouched model response alongside the extracted output variables.
const ResponseKey = "qllm_response"

// VariableType enumerates the declared input variable types.
type VariableType string

const (
	TypeString    VariableType = "string"
	TypeNumber    VariableType = "number"
	TypeBoolean   VariableType = "boolean"
	TypeArray     VariableType = "array"
	TypeFilePath  VariableType = "file_path"
	TypeFilesPath VariableType = "files_path"
)

// OutputType enumerates the declared output variable types.
type OutputType string

const (
	OutputString  OutputType = "string"
	OutputInteger OutputType = "integer"
	OutputFloat   OutputType = "float"
	OutputBoolean OutputType = "boolean"
	OutputArray   OutputType = "array"
	OutputObject  OutputType = "object"
)

// Boolean literals accepted during input and output coercion.
const (
	BoolLiteralTrue  = "true"
	BoolLiteralFalse = "false"
)

// DescriptionPrefixInferred prefixes descriptions of auto-extracted variable specs.
const DescriptionPrefixInferred = "auto-extracted: "

// Message role constants for provider dispatch.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Default configuration values.
const (
	DefaultMaxIncludeDepth  = 10
	DefaultLoadTimeout      = 30 * time.Second
	DefaultLoadMaxRetries   = 3
	DefaultLoadRetryInitial = 250 * time.Millisecond
	DefaultHTTPMaxBodySize  = 10 * 1024 * 1024 // 10MB
)

// PostgreSQL storage defaults.
const (
	PostgresTablePrefix            = "qllm_"
	PostgresDefaultMaxOpenConns    = 25
	PostgresDefaultMaxIdleConns    = 5
	PostgresDefaultConnMaxLifetime = 5 * time.Minute
	PostgresDefaultConnMaxIdleTime = 5 * time.Minute
	PostgresDefaultQueryTimeout    = 30 * time.Second
)

// Storage driver name constants.
const (
	StoreDriverNameMemory     = "memory"
	StoreDriverNameFilesystem = "filesystem"
	StoreDriverNamePostgres   = "postgres"
)

// Template file extensions recognized by the filesystem store.
const (
	TemplateExtYAML = ".yaml"
	TemplateExtYML  = ".yml"
	TemplateExtJSON = ".json"
)

// Metadata key constants for structured errors.
const (
	MetaKeyErrorKind = "error_kind"
	MetaKeyVariable  = "variable"
	MetaKeyTemplate  = "template"
	MetaKeyPath      = "path"
	MetaKeyReason    = "reason"
	MetaKeyValue     = "value"
	MetaKeyType      = "type"
	MetaKeyDriver    = "driver"
)

// Log message constants.
const (
	LogMsgIncludeFailed      = "include directive left unexpanded"
	LogMsgIncludeCycle       = "circular include detected"
	LogMsgIncludeDepth       = "include depth limit reached"
	LogMsgLoadRetry          = "content load retrying"
	LogMsgTemplateReloaded   = "template file reloaded"
	LogMsgTemplateWatchError = "template watch error"
	LogMsgStreamChunk        = "stream chunk received"
	LogMsgExecutionStart     = "template execution started"
	LogMsgExecutionComplete  = "template execution complete"
)

// Log field name constants.
const (
	LogFieldTemplate  = "template"
	LogFieldPath      = "path"
	LogFieldDirective = "directive"
	LogFieldAttempt   = "attempt"
	LogFieldExecution = "execution_id"
	LogFieldChunks    = "chunks"
)
