package qllm

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// IncludeResolver recursively expands {{include:path}} directives across
// files and URLs.
//
// Cycle detection is stack-scoped: a resource is only treated as circular
// when it appears in its own ancestor chain, so diamond-shaped inclusion
// graphs (A includes B and C, both include D) resolve fully.
//
// Failure is per-directive and non-fatal: a missing resource, load error or
// detected cycle logs a warning and leaves that directive text unexpanded
// while the rest of the document still resolves.
type IncludeResolver struct {
	loader   ContentLoader
	logger   *zap.Logger
	maxDepth int
}

// NewIncludeResolver creates an IncludeResolver. A nil loader falls back to
// the default ResourceLoader; maxDepth <= 0 uses DefaultMaxIncludeDepth.
func NewIncludeResolver(loader ContentLoader, logger *zap.Logger, maxDepth int) *IncludeResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = NewResourceLoader(DefaultResourceLoaderConfig(), logger)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxIncludeDepth
	}

	return &IncludeResolver{
		loader:   loader,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// Resolve expands all include directives in content, resolving relative
// paths against basePath. Content without directives is returned unchanged.
// The only returned error is context cancellation; directive failures
// degrade to unexpanded text.
func (r *IncludeResolver) Resolve(ctx context.Context, content string, basePath string) (string, error) {
	visited := make(map[string]struct{})
	return r.resolve(ctx, content, basePath, visited, 0)
}

// resolve is the recursive worker sharing one visited set per call tree.
func (r *IncludeResolver) resolve(ctx context.Context, content string, basePath string, visited map[string]struct{}, depth int) (string, error) {
	if !strings.Contains(content, IncludePrefix) {
		return content, nil
	}

	var sb strings.Builder
	i := 0

	for i < len(content) {
		rel := strings.Index(content[i:], IncludePrefix)
		if rel < 0 {
			sb.WriteString(content[i:])
			break
		}
		start := i + rel

		end := strings.Index(content[start:], IncludeSuffix)
		if end < 0 {
			// Unterminated directive, emit the rest verbatim.
			sb.WriteString(content[i:])
			break
		}
		directiveEnd := start + end + len(IncludeSuffix)
		directive := content[start:directiveEnd]
		path := content[start+len(IncludePrefix) : start+end]

		// Escaped directive: strip the marker, never expand.
		if start > i && content[start-1] == EscapeMarker[0] {
			sb.WriteString(content[i : start-1])
			sb.WriteString(directive)
			i = directiveEnd
			continue
		}

		sb.WriteString(content[i:start])
		i = directiveEnd

		if !isValidIncludePath(path) {
			sb.WriteString(directive)
			continue
		}

		expanded, err := r.expand(ctx, path, basePath, visited, depth)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.logger.Warn(LogMsgIncludeFailed,
				zap.String(LogFieldDirective, directive),
				zap.String(LogFieldPath, path),
				zap.Error(err))
			sb.WriteString(directive)
			continue
		}
		sb.WriteString(expanded)
	}

	return sb.String(), nil
}

// expand loads one included resource and recursively resolves its content.
// The resource is tracked in visited only for the lifetime of its own
// subtree, which keeps detection scoped to the ancestor chain.
func (r *IncludeResolver) expand(ctx context.Context, path string, basePath string, visited map[string]struct{}, depth int) (string, error) {
	resolved := ResolveIncludePath(path, basePath)

	if _, seen := visited[resolved]; seen {
		return "", NewCircularIncludeError(resolved)
	}
	if depth >= r.maxDepth {
		return "", NewIncludeDepthError(resolved)
	}

	visited[resolved] = struct{}{}
	defer delete(visited, resolved)

	loaded, err := r.loader.Load(ctx, resolved)
	if err != nil {
		return "", NewIncludeLoadError(resolved, err)
	}

	return r.resolve(ctx, loaded.Text(), resolved, visited, depth+1)
}

// isValidIncludePath rejects paths containing whitespace or braces.
func isValidIncludePath(path string) bool {
	if path == "" {
		return false
	}
	return !strings.ContainsAny(path, " \t\r\n{}")
}

// ResolveIncludePath computes the canonical full identifier for an include
// path relative to its parent resource.
//
// Absolute URLs pass through; when the parent is a URL, relative paths are
// resolved with standard URL reference resolution. file:// URIs are
// percent-decoded to filesystem paths. Everything else resolves against
// dirname(basePath) unless already absolute.
func ResolveIncludePath(path string, basePath string) string {
	if IsHTTPURL(path) {
		return path
	}

	if strings.HasPrefix(path, "file://") {
		if p, err := FileURIToPath(path); err == nil {
			path = p
		}
	}

	if IsHTTPURL(basePath) {
		base, err := url.Parse(basePath)
		if err != nil {
			return path
		}
		ref, err := url.Parse(path)
		if err != nil {
			return path
		}
		return base.ResolveReference(ref).String()
	}

	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(filepath.Dir(basePath), path)
}

// HasIncludeDirectives reports whether content contains at least one
// unescaped include directive.
func HasIncludeDirectives(content string) bool {
	i := 0
	for {
		rel := strings.Index(content[i:], IncludePrefix)
		if rel < 0 {
			return false
		}
		idx := i + rel
		if idx == 0 || content[idx-1] != EscapeMarker[0] {
			return true
		}
		i = idx + len(IncludePrefix)
	}
}
