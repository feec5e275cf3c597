package migration

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Extension of generated migration artifacts.
const Extension = ".go"

var stemRegexp = regexp.MustCompile(`^(\d+)_(.+)$`)
var invalidCharsRegexp = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Sanitize reduces a human-chosen migration name to [A-Za-z0-9_].
func Sanitize(name string) string {
	s := invalidCharsRegexp.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.Trim(strings.ToLower(s), "_")
}

// Filename derives the artifact filename for name at the given
// moment: <epoch-millis>_<sanitized-name>.go. Two migrations created
// within the same millisecond collide; Create refuses to overwrite.
func Filename(name string, now time.Time) string {
	millis := now.UnixNano() / int64(time.Millisecond)

	var b strings.Builder
	b.WriteString(strconv.FormatInt(millis, 10))
	b.WriteString("_")
	b.WriteString(Sanitize(name))
	b.WriteString(Extension)

	return b.String()
}

// ParseFilename is the inverse of Filename. Anything that does not
// carry the artifact extension and a <digits>_<name> stem reports
// ok=false and is skipped by discovery, never treated as an error.
func ParseFilename(file string) (Ref, bool) {
	base := filepath.Base(file)
	if !strings.HasSuffix(base, Extension) {
		return Ref{}, false
	}

	stem := strings.TrimSuffix(base, Extension)
	matches := stemRegexp.FindStringSubmatch(stem)
	if len(matches) != 3 {
		return Ref{}, false
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return Ref{}, false
	}

	return Ref{Version: version, Name: matches[2], File: base}, true
}

// ClassName renders a readable PascalCase identifier for generated
// boilerplate. It carries no runtime semantics.
func ClassName(name string) string {
	segments := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var b strings.Builder
	for _, s := range segments {
		r := []rune(s)
		b.WriteRune(unicode.ToUpper(r[0]))
		b.WriteString(string(r[1:]))
	}

	return b.String()
}
