// Package extract pulls a JSON value out of free-form model output.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Method identifies which strategy produced a Result.
type Method string

const (
	MethodFenced      Method = "fenced"
	MethodBraceDepth  Method = "brace_depth"
	MethodGreedyBrace Method = "greedy_brace"
	MethodArray       Method = "array"
	MethodNone        Method = "none"
)

// ErrNoJSON is set on a Result when every strategy failed.
var ErrNoJSON = errors.New("no parseable JSON found")

// Result is the outcome of JSON. Exactly one of Value or Err is set.
type Result struct {
	Value  json.RawMessage
	Method Method
	Err    error
}

// OK reports whether extraction succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Decode unmarshals the extracted value into v.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	return json.Unmarshal(r.Value, v)
}

var (
	fenceRE       = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")
	greedyBraceRE = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRE       = regexp.MustCompile(`(?s)\[.*\]`)
)

// JSON tries, in order: fenced code blocks, brace-depth scanning that
// respects string literals, a greedy {...} match, and a greedy [...] match.
// The first candidate that is valid JSON wins.
func JSON(text string) Result {
	for _, m := range fenceRE.FindAllStringSubmatch(text, -1) {
		if v, ok := valid(m[1]); ok {
			return Result{Value: v, Method: MethodFenced}
		}
	}
	for _, cand := range balancedObjects(text) {
		if v, ok := valid(cand); ok {
			return Result{Value: v, Method: MethodBraceDepth}
		}
	}
	if m := greedyBraceRE.FindString(text); m != "" {
		if v, ok := valid(m); ok {
			return Result{Value: v, Method: MethodGreedyBrace}
		}
	}
	if m := arrayRE.FindString(text); m != "" {
		if v, ok := valid(m); ok {
			return Result{Value: v, Method: MethodArray}
		}
	}
	return Result{Method: MethodNone, Err: ErrNoJSON}
}

func valid(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

// balancedObjects returns every top-level {...} span whose braces balance,
// ignoring braces inside double-quoted strings.
func balancedObjects(text string) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}
