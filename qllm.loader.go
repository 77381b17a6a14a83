package qllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// LoadedContent is the result of loading a single resource.
type LoadedContent struct {
	// Content is the raw resource bytes.
	Content []byte

	// MimeType is the detected or reported MIME type (may be empty).
	MimeType string
}

// Text returns the content as a string.
func (c *LoadedContent) Text() string {
	return string(c.Content)
}

// ContentLoader loads resource content by identifier (filesystem path,
// file:// URI, or http(s) URL). Implementations own their retry policy and
// honor context cancellation to abort in-flight fetches.
type ContentLoader interface {
	Load(ctx context.Context, identifier string) (*LoadedContent, error)
}

// ResourceLoaderConfig configures the default ContentLoader.
type ResourceLoaderConfig struct {
	// Timeout bounds a single load attempt. Default: 30s.
	Timeout time.Duration

	// MaxRetries is the number of retries after a failed attempt.
	// Default: 3. Set negative to disable retries.
	MaxRetries int

	// RetryInitialInterval seeds the exponential backoff. Default: 250ms.
	RetryInitialInterval time.Duration

	// MaxBodySize caps HTTP response bodies. Default: 10MB.
	MaxBodySize int64

	// CacheDir enables a hash-keyed on-disk cache when non-empty. The cache
	// is append-only: entries are written once and never invalidated, so it
	// is safe for concurrent readers and idempotent concurrent writers.
	CacheDir string
}

// DefaultResourceLoaderConfig returns the default loader configuration.
func DefaultResourceLoaderConfig() ResourceLoaderConfig {
	return ResourceLoaderConfig{
		Timeout:              DefaultLoadTimeout,
		MaxRetries:           DefaultLoadMaxRetries,
		RetryInitialInterval: DefaultLoadRetryInitial,
		MaxBodySize:          DefaultHTTPMaxBodySize,
	}
}

// ResourceLoader is the default ContentLoader. It reads filesystem paths
// and file:// URIs directly and fetches http(s) URLs with retry and
// exponential backoff.
type ResourceLoader struct {
	config ResourceLoaderConfig
	client *http.Client
	logger *zap.Logger
}

// NewResourceLoader creates a ResourceLoader with the given configuration.
func NewResourceLoader(config ResourceLoaderConfig, logger *zap.Logger) *ResourceLoader {
	if config.Timeout == 0 {
		config.Timeout = DefaultLoadTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultLoadMaxRetries
	}
	if config.RetryInitialInterval == 0 {
		config.RetryInitialInterval = DefaultLoadRetryInitial
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultHTTPMaxBodySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResourceLoader{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Load loads the resource behind identifier. HTTP fetches are retried with
// exponential backoff; filesystem reads are not (a missing file stays
// missing). Results are served from and written to the on-disk cache when
// one is configured.
func (l *ResourceLoader) Load(ctx context.Context, identifier string) (*LoadedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cached, ok := l.cacheGet(identifier); ok {
		return cached, nil
	}

	var content *LoadedContent
	var err error

	switch {
	case IsHTTPURL(identifier):
		content, err = l.loadHTTP(ctx, identifier)
	case strings.HasPrefix(identifier, "file://"):
		path, perr := FileURIToPath(identifier)
		if perr != nil {
			return nil, NewLoadError(identifier, perr)
		}
		content, err = l.loadFile(path)
	default:
		content, err = l.loadFile(identifier)
	}

	if err != nil {
		return nil, err
	}

	l.cachePut(identifier, content)
	return content, nil
}

// loadFile reads a filesystem path.
func (l *ResourceLoader) loadFile(path string) (*LoadedContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	return &LoadedContent{
		Content:  data,
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

// loadHTTP fetches a URL with retry and exponential backoff. Context
// cancellation aborts both in-flight requests and backoff waits.
func (l *ResourceLoader) loadHTTP(ctx context.Context, rawURL string) (*LoadedContent, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.config.RetryInitialInterval

	var retries backoff.BackOff = backoff.WithContext(policy, ctx)
	if l.config.MaxRetries >= 0 {
		retries = backoff.WithMaxRetries(retries, uint64(l.config.MaxRetries))
	}

	attempt := 0
	var content *LoadedContent

	operation := func() error {
		attempt++
		if attempt > 1 {
			l.logger.Debug(LogMsgLoadRetry,
				zap.String(LogFieldPath, rawURL),
				zap.Int(LogFieldAttempt, attempt))
		}

		loaded, err := l.fetchOnce(ctx, rawURL)
		if err != nil {
			return err
		}
		content = loaded
		return nil
	}

	if err := backoff.Retry(operation, retries); err != nil {
		return nil, NewLoadError(rawURL, err)
	}

	return content, nil
}

// fetchOnce performs a single HTTP GET.
func (l *ResourceLoader) fetchOnce(ctx context.Context, rawURL string) (*LoadedContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Client errors will not improve with retries.
		return nil, backoff.Permanent(NewLoadError(rawURL, &url.Error{
			Op:  http.MethodGet,
			URL: rawURL,
			Err: &httpStatusError{status: resp.Status},
		}))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > l.config.MaxBodySize {
		return nil, backoff.Permanent(NewLoadError(rawURL, &httpStatusError{status: ErrMsgResponseTooLarge}))
	}

	return &LoadedContent{
		Content:  body,
		MimeType: resp.Header.Get("Content-Type"),
	}, nil
}

// httpStatusError carries a non-OK HTTP status through the retry loop.
type httpStatusError struct {
	status string
}

func (e *httpStatusError) Error() string {
	return "unexpected http status: " + e.status
}

// cacheMimeSuffix marks the sidecar file carrying an entry's MIME type.
const cacheMimeSuffix = ".mime"

// cacheGet reads an entry from the on-disk cache, including the MIME type
// sidecar when one was written.
func (l *ResourceLoader) cacheGet(identifier string) (*LoadedContent, bool) {
	if l.config.CacheDir == "" {
		return nil, false
	}

	target := l.cachePath(identifier)
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, false
	}

	content := &LoadedContent{Content: data}
	if mimeData, err := os.ReadFile(target + cacheMimeSuffix); err == nil {
		content.MimeType = string(mimeData)
	}
	return content, true
}

// cachePut writes an entry to the on-disk cache. Writes go through a
// temp file + rename so concurrent writers of the same key are idempotent
// and readers never observe partial content.
func (l *ResourceLoader) cachePut(identifier string, content *LoadedContent) {
	if l.config.CacheDir == "" {
		return
	}

	if err := os.MkdirAll(l.config.CacheDir, 0o755); err != nil {
		return
	}

	target := l.cachePath(identifier)
	if !l.cacheWrite(target, content.Content) {
		return
	}
	if content.MimeType != "" {
		l.cacheWrite(target+cacheMimeSuffix, []byte(content.MimeType))
	}
}

// cacheWrite writes one cache file atomically via temp file + rename.
func (l *ResourceLoader) cacheWrite(target string, data []byte) bool {
	tmp, err := os.CreateTemp(l.config.CacheDir, "load-*")
	if err != nil {
		return false
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false
	}
	tmp.Close()

	return os.Rename(tmp.Name(), target) == nil
}

// cachePath returns the hash-keyed cache file path for an identifier.
func (l *ResourceLoader) cachePath(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return filepath.Join(l.config.CacheDir, hex.EncodeToString(sum[:]))
}

// IsHTTPURL reports whether identifier is an absolute http(s) URL.
func IsHTTPURL(identifier string) bool {
	return strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://")
}

// FileURIToPath converts a file:// URI to a filesystem path,
// percent-decoding as needed.
func FileURIToPath(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	// url.Parse already percent-decodes Path.
	return parsed.Path, nil
}
