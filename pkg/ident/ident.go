package ident

import (
	"net/url"
	"strings"

	"github.com/matzehuels/metagate/pkg/errors"
)

// Identifier addresses any item globally.
//
// Source empty means the identifier is a raw backend id; Directory and
// RelativePath are then only valid in URL form.
type Identifier struct {
	IsURL        bool   // URL form (source://...) instead of colon form
	Source       string // Source slug (empty for raw backend ids)
	Directory    string // Optional namespace inside the source
	ID           string // Item id, never empty
	RelativePath string // Trailing path (URL form only), e.g. "/children"
}

// Partial addresses an item inside one already-known source.
type Partial struct {
	Directory string
	ID        string
}

// Qualify lifts a partial identifier into the namespace of source.
// The result is in colon form: source:partial.
func Qualify(p Partial, source string) Identifier {
	return Identifier{Source: source, Directory: p.Directory, ID: p.ID}
}

// Partial returns the source-local part of the identifier.
func (id Identifier) Partial() Partial {
	return Partial{Directory: id.Directory, ID: id.ID}
}

// String serializes the identifier. It never fails; use [Identifier.Validate]
// to reject values that cannot round-trip.
func (id Identifier) String() string {
	var b strings.Builder
	if id.IsURL {
		b.WriteString(escape(id.Source))
		b.WriteString("://")
		if id.Directory != "" {
			b.WriteString(escape(id.Directory))
			b.WriteByte('/')
			b.WriteString(escape(id.ID))
			b.WriteString(id.RelativePath)
		} else {
			b.WriteString(escape(id.ID))
			if id.RelativePath != "" {
				b.WriteByte('?')
				b.WriteString(id.RelativePath)
			}
		}
		return b.String()
	}
	if id.Source == "" {
		return id.ID
	}
	b.WriteString(escape(id.Source))
	b.WriteByte(':')
	if id.Directory != "" {
		b.WriteString(escape(id.Directory))
		b.WriteByte(':')
	}
	b.WriteString(id.ID)
	return b.String()
}

// Validate reports whether the identifier can be serialized and parsed back
// to an equal value.
func (id Identifier) Validate() error {
	if id.ID == "" {
		return bad("empty id")
	}
	if id.IsURL {
		if id.Source == "" {
			return bad("url form requires a source")
		}
		if id.Directory != "" && id.RelativePath != "" && !strings.ContainsAny(id.RelativePath[:1], "/?") {
			return bad("relative path %q must start with '/' or '?'", id.RelativePath)
		}
		return nil
	}
	if id.Source == "" && (id.Directory != "" || id.RelativePath != "") {
		return bad("raw backend id %q cannot carry a directory or relative path", id.ID)
	}
	if id.Source == "" && strings.Contains(id.ID, ":") {
		return bad("raw backend id %q must not contain ':'", id.ID)
	}
	if id.RelativePath != "" {
		return bad("relative path requires url form")
	}
	if id.Source != "" && id.Directory == "" && (strings.Contains(id.ID, ":") || strings.HasPrefix(id.ID, "//")) {
		return bad("raw id %q is ambiguous in colon form", id.ID)
	}
	return nil
}

// String serializes the partial identifier as <id> or <directory>:<id>.
func (p Partial) String() string {
	if p.Directory == "" {
		return p.ID
	}
	return escape(p.Directory) + ":" + p.ID
}

// Parse parses a full identifier in colon or URL form. A string without a
// colon is a raw backend id.
func Parse(s string) (Identifier, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		if s == "" {
			return Identifier{}, bad("empty identifier")
		}
		return Identifier{ID: s}, nil
	}
	source, err := unescape(s[:i])
	if err != nil {
		return Identifier{}, err
	}
	if source == "" {
		return Identifier{}, bad("empty source in %q", s)
	}
	rest := s[i+1:]
	if strings.HasPrefix(rest, "//") {
		return parseURL(source, rest[2:], s)
	}

	id := Identifier{Source: source}
	if j := strings.IndexByte(rest, ':'); j >= 0 {
		dir, err := unescape(rest[:j])
		if err != nil {
			return Identifier{}, err
		}
		if dir == "" {
			return Identifier{}, bad("empty directory in %q", s)
		}
		id.Directory = dir
		rest = rest[j+1:]
	}
	if rest == "" {
		return Identifier{}, bad("empty id in %q", s)
	}
	id.ID = rest
	return id, nil
}

func parseURL(source, rest, raw string) (Identifier, error) {
	id := Identifier{IsURL: true, Source: source}
	i := strings.IndexAny(rest, "/?")
	switch {
	case i < 0:
		id.ID = rest
	case rest[i] == '?':
		id.ID = rest[:i]
		id.RelativePath = rest[i+1:]
	default:
		dir, err := unescape(rest[:i])
		if err != nil {
			return Identifier{}, err
		}
		if dir == "" {
			return Identifier{}, bad("empty directory in %q", raw)
		}
		id.Directory = dir
		rest = rest[i+1:]
		if j := strings.IndexAny(rest, "/?"); j >= 0 {
			id.ID = rest[:j]
			id.RelativePath = rest[j:]
		} else {
			id.ID = rest
		}
	}
	if id.ID == "" {
		return Identifier{}, bad("empty id in %q", raw)
	}
	decoded, err := unescape(id.ID)
	if err != nil {
		return Identifier{}, err
	}
	id.ID = decoded
	return id, nil
}

// ParsePartial parses <id> or <directory>:<id>.
func ParsePartial(s string) (Partial, error) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		if s == "" {
			return Partial{}, bad("empty identifier")
		}
		return Partial{ID: s}, nil
	}
	dir, err := unescape(s[:i])
	if err != nil {
		return Partial{}, err
	}
	if dir == "" {
		return Partial{}, bad("empty directory in %q", s)
	}
	if s[i+1:] == "" {
		return Partial{}, bad("directory %q without id", dir)
	}
	return Partial{Directory: dir, ID: s[i+1:]}, nil
}

// MustParse is like [Parse] but panics on malformed input. It is meant for
// identifiers that the gateway produced itself.
func MustParse(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		panic(errors.Wrap(errors.ErrCodeInternal, err, "malformed identifier %q", s))
	}
	return id
}

func bad(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidIdentifier, format, args...)
}

func unescape(s string) (string, error) {
	v, err := url.PathUnescape(s)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidIdentifier, err, "bad percent-encoding in %q", s)
	}
	return v, nil
}
