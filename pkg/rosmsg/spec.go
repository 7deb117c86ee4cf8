// Package rosmsg provides schema introspection for ROS message definitions.
// External rewriter plugins import this package to locate .msg files, compute
// content hashes and walk serialised messages.
package rosmsg

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// builtinSizes maps each builtin type to its fixed wire size in bytes.
// string is variable length and is listed with size 0.
var builtinSizes = map[string]int{
	"bool":     1,
	"int8":     1,
	"uint8":    1,
	"byte":     1,
	"char":     1,
	"int16":    2,
	"uint16":   2,
	"int32":    4,
	"uint32":   4,
	"float32":  4,
	"int64":    8,
	"uint64":   8,
	"float64":  8,
	"time":     8,
	"duration": 8,
	"string":   0,
}

// IsBuiltin reports whether a base type (without array suffix) is a builtin.
func IsBuiltin(base string) bool {
	_, ok := builtinSizes[base]
	return ok
}

// Field is a single field declaration in a message definition.
type Field struct {
	// Type is the type as written, including any array suffix (e.g. "uint8[]").
	Type string

	// Base is the type without array suffix (e.g. "uint8", "geometry_msgs/Vector3").
	Base string

	// Name is the field name.
	Name string

	// IsArray is true for both fixed and variable length arrays.
	IsArray bool

	// ArrayLen is the fixed array length, or -1 for variable length arrays.
	ArrayLen int
}

// Constant is a constant declaration (e.g. "uint8 OK=0").
type Constant struct {
	Type  string
	Name  string
	Value string
}

// Spec is a parsed message definition.
type Spec struct {
	Package   string
	Name      string
	Fields    []Field
	Constants []Constant
}

// FullName returns the "package/Type" name of the spec.
func (s *Spec) FullName() string {
	return s.Package + "/" + s.Name
}

// ResolveType returns the fully qualified name of a non-builtin base type as
// seen from inside this spec's package.
func (s *Spec) ResolveType(base string) string {
	if strings.Contains(base, "/") {
		return base
	}
	if base == "Header" {
		return "std_msgs/Header"
	}
	return s.Package + "/" + base
}

// SplitName splits "package/Type" into its parts.
func SplitName(fullName string) (pkg, typ string, ok bool) {
	pkg, typ, ok = strings.Cut(fullName, "/")
	if !ok || pkg == "" || typ == "" || strings.Contains(typ, "/") {
		return "", "", false
	}
	return pkg, typ, true
}

// Parse parses the text of a .msg file.
func Parse(pkg, name string, data []byte) (*Spec, error) {
	spec := &Spec{Package: pkg, Name: name}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		typ, rest, ok := cutSpace(line)
		if !ok {
			return nil, fmt.Errorf("%s/%s:%d: expected \"type name\", got %q", pkg, name, lineNo, line)
		}

		raw := rest
		if idx := strings.IndexByte(rest, '#'); idx >= 0 {
			rest = strings.TrimSpace(rest[:idx])
		}

		if cname, value, isConst := strings.Cut(rest, "="); isConst {
			// String constants keep everything after '=' verbatim, including '#'.
			if typ == "string" {
				_, value, _ = strings.Cut(raw, "=")
			}
			spec.Constants = append(spec.Constants, Constant{
				Type:  typ,
				Name:  strings.TrimSpace(cname),
				Value: strings.TrimSpace(value),
			})
			continue
		}

		if strings.ContainsAny(rest, " \t") {
			return nil, fmt.Errorf("%s/%s:%d: unexpected text after field name: %q", pkg, name, lineNo, line)
		}

		field, err := parseField(typ, rest)
		if err != nil {
			return nil, fmt.Errorf("%s/%s:%d: %w", pkg, name, lineNo, err)
		}
		spec.Fields = append(spec.Fields, field)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", pkg, name, err)
	}

	return spec, nil
}

func parseField(typ, name string) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("missing field name for type %q", typ)
	}

	field := Field{Type: typ, Base: typ, Name: name, ArrayLen: -1}

	open := strings.IndexByte(typ, '[')
	if open < 0 {
		return field, nil
	}
	if !strings.HasSuffix(typ, "]") {
		return Field{}, fmt.Errorf("malformed array type %q", typ)
	}

	field.Base = typ[:open]
	field.IsArray = true

	if size := typ[open+1 : len(typ)-1]; size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n < 0 {
			return Field{}, fmt.Errorf("invalid array length in %q", typ)
		}
		field.ArrayLen = n
	}

	return field, nil
}

// cutSpace splits a line at the first run of whitespace.
func cutSpace(line string) (string, string, bool) {
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], strings.TrimSpace(line[idx+1:]), true
}
