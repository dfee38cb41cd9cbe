// Package command implements the game command language: a lexer and parser
// for one-command-per-line text of the form
//
//	subject.VERB(name=value, ...)
//
// plus the syntax normalizer that repairs common malformed variants before
// parsing and a post-parse lint pass. Parsing is pure and deterministic:
// identical input always yields an identical node list.
package command

import (
	"strings"
)

// Reference kinds recognized in subjects and argument values. A dotted token
// whose first segment is one of these is a reference; anything else dotted
// or bare is a plain symbol scalar.
var referenceKinds = map[string]bool{
	"actor":       true,
	"npc":         true,
	"item":        true,
	"tile":        true,
	"region_tile": true,
	"place":       true,
}

// IsReference reports whether token names an entity (or the SYSTEM subject).
func IsReference(token string) bool {
	head, _, _ := strings.Cut(token, ".")
	return referenceKinds[head]
}

// ValueKind discriminates argument value variants.
type ValueKind int

const (
	// ValueString is a double-quoted string (stored unquoted).
	ValueString ValueKind = iota
	// ValueNumber is a numeric scalar (text preserved; consumers coerce).
	ValueNumber
	// ValueReference is a dotted entity reference.
	ValueReference
	// ValueSymbol is a bare identifier scalar such as FULL.
	ValueSymbol
	// ValueList is an ordered [v, v, ...] list.
	ValueList
	// ValueObject is a {name=value, ...} object with ordered fields.
	ValueObject
)

// Value is one argument value.
type Value struct {
	Kind   ValueKind
	Text   string  // scalar payload for String/Number/Reference/Symbol
	List   []Value // for ValueList
	Object []Arg   // for ValueObject, insertion order preserved
}

// Arg is one name=value pair. Name is empty only for the illegal positional
// form, which the parser preserves so the lint pass can report it.
type Arg struct {
	Name  string
	Value Value
}

// CommandNode is the parsed AST unit for one line.
type CommandNode struct {
	Subject string
	Verb    string
	Args    []Arg
	Line    int
}

// Arg returns the named argument value.
func (n *CommandNode) Arg(name string) (Value, bool) {
	for _, a := range n.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return Value{}, false
}

// References returns every entity reference in the node - the subject (when
// it is a reference rather than SYSTEM) and all reference values at any
// nesting depth, in encounter order without duplicates.
func (n *CommandNode) References() []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(ref string) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if IsReference(n.Subject) {
		add(n.Subject)
	}
	var walk func(v Value)
	walk = func(v Value) {
		switch v.Kind {
		case ValueReference:
			add(v.Text)
		case ValueList:
			for _, item := range v.List {
				walk(item)
			}
		case ValueObject:
			for _, field := range v.Object {
				walk(field.Value)
			}
		}
	}
	for _, a := range n.Args {
		walk(a.Value)
	}
	return refs
}

// String renders the node back to command-language text.
func (n *CommandNode) String() string {
	var b strings.Builder
	b.WriteString(n.Subject)
	b.WriteByte('.')
	b.WriteString(n.Verb)
	b.WriteByte('(')
	for i, a := range n.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		if a.Name != "" {
			b.WriteString(a.Name)
			b.WriteByte('=')
		}
		b.WriteString(a.Value.String())
	}
	b.WriteByte(')')
	return b.String()
}

// String renders the value back to command-language text.
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		return `"` + strings.ReplaceAll(v.Text, `"`, `\"`) + `"`
	case ValueList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ValueObject:
		parts := make([]string, len(v.Object))
		for i, field := range v.Object {
			parts[i] = field.Name + "=" + field.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.Text
	}
}
