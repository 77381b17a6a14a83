package qllm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider is a scriptable Provider for executor tests.
type mockProvider struct {
	mu       sync.Mutex
	response string
	chunks   []StreamChunk
	err      error

	lastMessages []Message
	lastOpts     GenerateOptions
	calls        int
}

func (p *mockProvider) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastMessages = messages
	p.lastOpts = opts
	p.calls++

	if p.err != nil {
		return nil, p.err
	}
	return &GenerateResult{Text: p.response, FinishReason: "stop"}, nil
}

func (p *mockProvider) Stream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastMessages = messages
	p.lastOpts = opts
	p.calls++

	if p.err != nil {
		return nil, p.err
	}

	out := make(chan StreamChunk, len(p.chunks))
	for _, chunk := range p.chunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

func (p *mockProvider) sentContent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lastMessages) == 0 {
		return ""
	}
	return p.lastMessages[0].Content
}

func mustTemplate(t *testing.T, def *TemplateDefinition) *TemplateDefinition {
	t.Helper()
	tmpl, err := NewTemplateDefinition(def)
	require.NoError(t, err)
	return tmpl
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("renders variables and returns response", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "greeting",
			Content: "Hello {{name}}, tell me about {{topic}}.",
		})
		provider := &mockProvider{response: "Sure thing."}

		executor := NewExecutor(nil, nil, nil)
		result, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"name": "Ada", "topic": "engines"},
			Provider:  provider,
		})
		require.NoError(t, err)

		assert.Equal(t, "Sure thing.", result.Response)
		assert.Equal(t, "Hello Ada, tell me about engines.", provider.sentContent())
		assert.Equal(t, RoleUser, provider.lastMessages[0].Role)
		assert.Equal(t, "Sure thing.", result.OutputVariables[ResponseKey])
	})

	t.Run("rejects missing execution context pieces", func(t *testing.T) {
		executor := NewExecutor(nil, nil, nil)

		_, err := executor.Execute(ctx, nil)
		require.Error(t, err)

		_, err = executor.Execute(ctx, &ExecutionContext{Template: nil, Provider: &mockProvider{}})
		require.Error(t, err)

		tmpl := mustTemplate(t, &TemplateDefinition{Name: "t", Content: "x"})
		_, err = executor.Execute(ctx, &ExecutionContext{Template: tmpl})
		require.Error(t, err)
		assert.True(t, IsExecutionError(err))
	})

	t.Run("applies declared defaults", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "defaults",
			Content: "Summarize in {{max_words}} words: {{text}}",
			InputVariables: map[string]VariableSpec{
				"max_words": {Type: TypeNumber, Default: 100},
			},
		})
		provider := &mockProvider{response: "ok"}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"text": "some text"},
			Provider:  provider,
		})
		require.NoError(t, err)
		assert.Equal(t, "Summarize in 100 words: some text", provider.sentContent())
	})

	t.Run("missing required variable fails naming it", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "missing",
			Content: "Hello {{name}}",
		})

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: &mockProvider{response: "never"},
		})
		require.Error(t, err)
		assert.True(t, IsInputValidationError(err))

		name, ok := ErrorVariable(err)
		require.True(t, ok)
		assert.Equal(t, "name", name)
	})

	t.Run("missing variables callback fills gaps", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "callback",
			Content: "{{a}} {{b}}",
		})
		provider := &mockProvider{response: "ok"}

		var reported []string
		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"a": "first"},
			Provider:  provider,
			OnMissingVariables: func(missing []string, supplied map[string]any) map[string]any {
				reported = missing
				return map[string]any{"b": "second"}
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, reported)
		assert.Equal(t, "first second", provider.sentContent())
	})

	t.Run("loose input coercion", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "coerce",
			Content: "n={{n}} b={{b}} list={{items}}",
			InputVariables: map[string]VariableSpec{
				"n":     {Type: TypeNumber},
				"b":     {Type: TypeBoolean},
				"items": {Type: TypeArray},
			},
		})
		provider := &mockProvider{response: "ok"}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Variables: map[string]any{
				"n":     "42",
				"b":     "true",
				"items": "a, b, c",
			},
			Provider: provider,
		})
		require.NoError(t, err)
		assert.Equal(t, "n=42 b=true list=a\nb\nc", provider.sentContent())
	})

	t.Run("type mismatch fails validation", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "mismatch",
			Content: "{{n}}",
			InputVariables: map[string]VariableSpec{
				"n": {Type: TypeNumber},
			},
		})

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"n": "not numeric"},
			Provider:  &mockProvider{response: "never"},
		})
		require.Error(t, err)
		assert.True(t, IsInputValidationError(err))
	})

	t.Run("custom validator rejects value", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "validator",
			Content: "{{word}}",
		})
		tmpl.InputVariables["word"] = VariableSpec{
			Type: TypeString,
			CustomValidator: func(value any) error {
				if value == "forbidden" {
					return errors.New("not allowed")
				}
				return nil
			},
		}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"word": "forbidden"},
			Provider:  &mockProvider{response: "never"},
		})
		require.Error(t, err)
		assert.True(t, IsInputValidationError(err))
	})

	t.Run("file_path variable loads content", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "context.txt")
		require.NoError(t, os.WriteFile(path, []byte("file body"), 0o644))

		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "filevar",
			Content: "Context: {{doc}}",
			InputVariables: map[string]VariableSpec{
				"doc": {Type: TypeFilePath},
			},
		})
		provider := &mockProvider{response: "ok"}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"doc": path},
			Provider:  provider,
		})
		require.NoError(t, err)
		assert.Equal(t, "Context: file body", provider.sentContent())
	})

	t.Run("files_path variable joins loaded contents", func(t *testing.T) {
		dir := t.TempDir()
		p1 := filepath.Join(dir, "one.txt")
		p2 := filepath.Join(dir, "two.txt")
		require.NoError(t, os.WriteFile(p1, []byte("one"), 0o644))
		require.NoError(t, os.WriteFile(p2, []byte("two"), 0o644))

		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "filesvar",
			Content: "Docs:\n{{docs}}",
			InputVariables: map[string]VariableSpec{
				"docs": {Type: TypeFilesPath},
			},
		})
		provider := &mockProvider{response: "ok"}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"docs": []string{p1, p2}},
			Provider:  provider,
		})
		require.NoError(t, err)
		assert.Equal(t, "Docs:\none\ntwo", provider.sentContent())
	})

	t.Run("provider failure surfaces as execution error", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "fails",
			Content: "static",
		})

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: &mockProvider{err: errors.New("upstream down")},
		})
		require.Error(t, err)
		assert.True(t, IsExecutionError(err))
	})

	t.Run("output extraction runs against response", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "outputs",
			Content: "static",
			OutputVariables: map[string]OutputVariableSpec{
				"x": {Type: OutputInteger},
			},
		})
		provider := &mockProvider{response: "the value is <x>42</x>"}

		executor := NewExecutor(nil, nil, nil)
		result, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: provider,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(42), result.OutputVariables["x"])
		assert.Equal(t, "the value is <x>42</x>", result.OutputVariables[ResponseKey])
	})

	t.Run("parameters pass through to provider untouched", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "params",
			Content: "static",
			Parameters: map[string]any{
				"temperature": 0.2,
				"max_tokens":  512,
			},
		})
		provider := &mockProvider{response: "ok"}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: provider,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.2, provider.lastOpts.Parameters["temperature"])
		assert.Equal(t, 512, provider.lastOpts.Parameters["max_tokens"])
	})
}

func TestExecutor_Streaming(t *testing.T) {
	ctx := context.Background()

	t.Run("concatenates chunks into response", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "stream",
			Content: "static",
		})
		provider := &mockProvider{chunks: []StreamChunk{
			{TextDelta: "Hel"},
			{TextDelta: "lo "},
			{TextDelta: "world"},
			{FinishReason: "stop"},
		}}

		executor := NewExecutor(nil, nil, nil)
		result, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: provider,
			Stream:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello world", result.Response)
	})

	t.Run("chunk error aborts the execution", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "streamfail",
			Content: "static",
		})
		provider := &mockProvider{chunks: []StreamChunk{
			{TextDelta: "partial"},
			{Err: errors.New("connection reset")},
		}}

		executor := NewExecutor(nil, nil, nil)
		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: provider,
			Stream:   true,
		})
		require.Error(t, err)
		assert.True(t, IsExecutionError(err))
	})

	t.Run("stream events carry text deltas", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "streamevents",
			Content: "static",
		})
		provider := &mockProvider{chunks: []StreamChunk{
			{TextDelta: "a"},
			{TextDelta: "b"},
		}}

		executor := NewExecutor(nil, nil, nil)
		var deltas []string
		executor.Subscribe(func(event ExecutionEvent) {
			if event.Type == EventStreamChunk {
				deltas = append(deltas, event.Chunk)
			}
		})

		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: provider,
			Stream:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, deltas)
	})
}

func TestExecutor_Events(t *testing.T) {
	ctx := context.Background()

	t.Run("successful run emits lifecycle in order", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "events",
			Content: "Hello {{name}}",
		})
		provider := &mockProvider{response: "hi"}

		executor := NewExecutor(nil, nil, nil)
		var types []EventType
		var ids []string
		executor.Subscribe(func(event ExecutionEvent) {
			types = append(types, event.Type)
			ids = append(ids, event.ExecutionID)
			assert.Equal(t, "events", event.TemplateName)
			assert.False(t, event.Timestamp.IsZero())
		})

		_, err := executor.Execute(ctx, &ExecutionContext{
			Template:  tmpl,
			Variables: map[string]any{"name": "Ada"},
			Provider:  provider,
		})
		require.NoError(t, err)

		assert.Equal(t, []EventType{
			EventExecutionStart,
			EventVariablesResolved,
			EventContentPrepared,
			EventRequestSent,
			EventResponseReceived,
			EventOutputsProcessed,
			EventExecutionComplete,
		}, types)

		// One execution ID ties the whole run together.
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
			assert.NotEmpty(t, id)
		}
	})

	t.Run("failed run terminates with execution-error", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "eventsfail",
			Content: "{{missing}}",
		})

		executor := NewExecutor(nil, nil, nil)
		var last ExecutionEvent
		executor.Subscribe(func(event ExecutionEvent) {
			last = event
		})

		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: &mockProvider{response: "never"},
		})
		require.Error(t, err)
		assert.Equal(t, EventExecutionError, last.Type)
		assert.Error(t, last.Err)
	})

	t.Run("listeners run in registration order", func(t *testing.T) {
		tmpl := mustTemplate(t, &TemplateDefinition{
			Name:    "order",
			Content: "static",
		})

		executor := NewExecutor(nil, nil, nil)
		var order []int
		executor.Subscribe(func(event ExecutionEvent) {
			if event.Type == EventExecutionStart {
				order = append(order, 1)
			}
		})
		executor.Subscribe(func(event ExecutionEvent) {
			if event.Type == EventExecutionStart {
				order = append(order, 2)
			}
		})

		_, err := executor.Execute(ctx, &ExecutionContext{
			Template: tmpl,
			Provider: &mockProvider{response: "ok"},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, order)
	})
}

func TestExecutor_ResolvesIncludesInRenderedContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "footer.txt"), []byte("Bye."), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	tmpl := mustTemplate(t, &TemplateDefinition{
		Name:    "withinclude",
		Content: "Hello {{name}}! {{include:./footer.txt}}",
	})
	provider := &mockProvider{response: "ok"}

	executor := NewExecutor(nil, nil, nil)
	_, err = executor.Execute(context.Background(), &ExecutionContext{
		Template:  tmpl,
		Variables: map[string]any{"name": "Ada"},
		Provider:  provider,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada! Bye.", provider.sentContent())
}

func TestExecutor_StripsEscapedIncludeDirectives(t *testing.T) {
	tmpl := mustTemplate(t, &TemplateDefinition{
		Name:    "escapedonly",
		Content: `Literal: \{{include:./x.txt}} end`,
	})
	provider := &mockProvider{response: "ok"}

	executor := NewExecutor(nil, nil, nil)
	_, err := executor.Execute(context.Background(), &ExecutionContext{
		Template: tmpl,
		Provider: provider,
	})
	require.NoError(t, err)

	// The escape marker is consumed, the directive stays literal.
	assert.Equal(t, "Literal: {{include:./x.txt}} end", provider.sentContent())
}

func TestExecutor_DoesNotReExpandSubstitutedValues(t *testing.T) {
	tmpl := mustTemplate(t, &TemplateDefinition{
		Name:    "literalbraces",
		Content: "{{a}} {{b}}",
	})
	provider := &mockProvider{response: "ok"}

	executor := NewExecutor(nil, nil, nil)
	_, err := executor.Execute(context.Background(), &ExecutionContext{
		Template:  tmpl,
		Variables: map[string]any{"a": "{{b}}", "b": "X"},
		Provider:  provider,
	})
	require.NoError(t, err)

	// A value that looks like a reference is substituted verbatim,
	// regardless of variable order.
	assert.Equal(t, "{{b}} X", provider.sentContent())
}
