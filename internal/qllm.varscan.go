// Package internal holds the variable reference scanner backing the public
// extraction API. The scanner is a single left-to-right pass with an
// explicit cursor; no regex, no backtracking beyond the current expression.
package internal

// Scan delimiter constants.
const (
	StrOpenDelim  = "{{"
	StrCloseDelim = "}}"
)

// ScanOptions controls which variable expression extensions are recognized.
type ScanOptions struct {
	// AllowDotNotation enables `.ident` chains after the root identifier.
	AllowDotNotation bool

	// AllowBracketNotation enables `[...]` with balanced bracket content.
	AllowBracketNotation bool

	// AllowFunctionCalls enables `(...)` with balanced paren content.
	AllowFunctionCalls bool
}

// scanner walks template content looking for {{...}} variable expressions.
type scanner struct {
	source string
	pos    int
	opts   ScanOptions
}

// ScanVariables extracts the root identifiers of all valid variable
// expressions in content, in first-appearance order, without duplicates.
// Invalid expressions are abandoned and scanning resumes one character
// after the opening delimiter match; no input is consumed destructively.
func ScanVariables(content string, opts ScanOptions) []string {
	s := &scanner{source: content, opts: opts}

	var names []string
	seen := make(map[string]struct{})

	for s.pos < len(s.source) {
		if !s.matchStr(StrOpenDelim) {
			s.pos++
			continue
		}

		start := s.pos
		name, ok := s.scanExpression()
		if !ok {
			// Abandon the expression, resume scanning just past the first
			// opening brace so overlapping candidates are still considered.
			s.pos = start + 1
			continue
		}

		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}

	return names
}

// scanExpression consumes `{{ root<extensions> }}` from the current position.
// On success the cursor sits past the closing delimiter and the root
// identifier is returned. On failure the cursor position is unspecified;
// the caller restores it.
func (s *scanner) scanExpression() (string, bool) {
	s.pos += len(StrOpenDelim)
	s.skipWhitespace()

	root, ok := s.scanIdentifier()
	if !ok {
		return "", false
	}

	s.scanExtensions()

	s.skipWhitespace()
	if !s.matchStr(StrCloseDelim) {
		return "", false
	}
	s.pos += len(StrCloseDelim)

	return root, true
}

// scanExtensions consumes any combination of enabled extension forms.
// The extension chain is discarded; only the root identifier matters.
func (s *scanner) scanExtensions() {
	for {
		switch {
		case s.opts.AllowDotNotation && s.tryDot():
		case s.opts.AllowBracketNotation && s.tryBalanced('[', ']'):
		case s.opts.AllowFunctionCalls && s.tryBalanced('(', ')'):
		default:
			return
		}
	}
}

// tryDot consumes `.ident` if present at the cursor.
func (s *scanner) tryDot() bool {
	if s.pos >= len(s.source) || s.source[s.pos] != '.' {
		return false
	}
	if s.pos+1 >= len(s.source) || !isIdentStart(s.source[s.pos+1]) {
		return false
	}
	s.pos++
	_, _ = s.scanIdentifier()
	return true
}

// tryBalanced consumes a balanced `open...close` group if present at the
// cursor. Nested groups of the same kind are tracked by depth. Returns
// false when the group is absent or unterminated.
func (s *scanner) tryBalanced(open, close byte) bool {
	if s.pos >= len(s.source) || s.source[s.pos] != open {
		return false
	}

	depth := 0
	for i := s.pos; i < len(s.source); i++ {
		switch s.source[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				s.pos = i + 1
				return true
			}
		}
	}

	return false
}

// scanIdentifier consumes `[A-Za-z_$][A-Za-z0-9_$]*` at the cursor.
func (s *scanner) scanIdentifier() (string, bool) {
	if s.pos >= len(s.source) || !isIdentStart(s.source[s.pos]) {
		return "", false
	}

	start := s.pos
	s.pos++
	for s.pos < len(s.source) && isIdentPart(s.source[s.pos]) {
		s.pos++
	}

	return s.source[start:s.pos], true
}

// skipWhitespace advances the cursor past spaces, tabs and line breaks.
func (s *scanner) skipWhitespace() {
	for s.pos < len(s.source) {
		switch s.source[s.pos] {
		case ' ', '\t', '\r', '\n':
			s.pos++
		default:
			return
		}
	}
}

// matchStr reports whether the source at the cursor starts with str.
func (s *scanner) matchStr(str string) bool {
	if s.pos+len(str) > len(s.source) {
		return false
	}
	return s.source[s.pos:s.pos+len(str)] == str
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
