package command

import (
	"regexp"
	"strings"
)

// The normalizer repairs common malformations in generated command text
// before (and between) parse attempts. It is an ordered list of pure
// string->string rules: tier 1 applies each rule once; the aggressive tier
// reapplies the object-literal repairs to a fixed point when the parser
// still reports errors. Every rule is idempotent on already-valid text and
// none ever edits the inside of a quoted string.

// AggressivePassLimit bounds the tier-2 fixed-point loop.
const AggressivePassLimit = 4

// Rule is one independently testable text transform.
type Rule struct {
	Name  string
	Apply func(string) string
}

var (
	refObjectListRe    = regexp.MustCompile(`=\s*\[\s*\{\s*ref\s*[=:]\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\s*\]`)
	trailingAccessorRe = regexp.MustCompile(`\b(actor|npc|item|place)((?:\.[A-Za-z0-9_]+)+)\.id\b`)
	trailingCommaRe    = regexp.MustCompile(`,\s*([\]\}])`)
	doubleEqualsRe     = regexp.MustCompile(`==+`)
)

// Tier1Rules is the ordered single-application rule set.
var Tier1Rules = []Rule{
	{Name: "colon_to_equals_in_objects", Apply: colonToEqualsInObjects},
	{Name: "unwrap_ref_object_list", Apply: outsideStrings(func(s string) string {
		return refObjectListRe.ReplaceAllString(s, "=[$1]")
	})},
	{Name: "strip_trailing_accessor", Apply: outsideStrings(func(s string) string {
		return trailingAccessorRe.ReplaceAllString(s, "$1$2")
	})},
	{Name: "strip_trailing_commas", Apply: outsideStrings(func(s string) string {
		return trailingCommaRe.ReplaceAllString(s, "$1")
	})},
	{Name: "collapse_double_equals", Apply: outsideStrings(func(s string) string {
		return doubleEqualsRe.ReplaceAllString(s, "=")
	})},
}

// tier2Rules are the repairs worth repeating: colon-style objects can nest,
// so one pass may expose another occurrence.
var tier2Rules = []Rule{
	Tier1Rules[0], // colon_to_equals_in_objects
	Tier1Rules[1], // unwrap_ref_object_list
}

// Normalize applies tier 1: each rule once, in order.
func Normalize(text string) string {
	for _, rule := range Tier1Rules {
		text = rule.Apply(text)
	}
	return text
}

// NormalizeAggressive applies tier 1, then reapplies the object-literal
// repairs up to AggressivePassLimit passes, stopping early at a fixed point.
func NormalizeAggressive(text string) string {
	text = Normalize(text)
	for pass := 0; pass < AggressivePassLimit; pass++ {
		before := text
		for _, rule := range tier2Rules {
			text = rule.Apply(text)
		}
		if text == before {
			break
		}
	}
	return text
}

// colonToEqualsInObjects rewrites key:value to key=value inside brace
// object literals only, skipping quoted strings.
func colonToEqualsInObjects(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	inString := false
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case inString:
			if c == '\\' && i+1 < len(text) {
				b.WriteByte(c)
				b.WriteByte(text[i+1])
				i += 2
				continue
			}
			if c == '"' {
				inString = false
			}
			b.WriteByte(c)
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '{':
			depth++
			b.WriteByte(c)
		case c == '}':
			if depth > 0 {
				depth--
			}
			b.WriteByte(c)
		case c == ':' && depth > 0:
			b.WriteByte('=')
		default:
			b.WriteByte(c)
		}
		i++
	}
	return b.String()
}

// outsideStrings lifts a transform so it only sees the text between quoted
// strings; the strings themselves pass through untouched.
func outsideStrings(fn func(string) string) func(string) string {
	return func(text string) string {
		var b strings.Builder
		b.Grow(len(text))
		start := 0
		i := 0
		for i < len(text) {
			if text[i] != '"' {
				i++
				continue
			}
			b.WriteString(fn(text[start:i]))
			j := i + 1
			for j < len(text) {
				if text[j] == '\\' && j+1 < len(text) {
					j += 2
					continue
				}
				if text[j] == '"' {
					j++
					break
				}
				j++
			}
			b.WriteString(text[i:j])
			i = j
			start = j
		}
		b.WriteString(fn(text[start:]))
		return b.String()
	}
}
