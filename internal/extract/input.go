package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yourorg/opsec-worker/internal/model"
)

// Input is a RawResult prepared for predicate evaluation. Keyword tests run
// against corpus, which is the text outside the structured fragment plus the
// fragment's values, so JSON key names never count as keyword hits.
type Input struct {
	Text     string
	Fragment map[string]any
	lower    string
	corpus   string
}

func NewInput(raw model.RawResult) *Input {
	in := &Input{Text: string(raw)}
	in.lower = strings.ToLower(in.Text)
	in.corpus = in.lower

	frag, start, end := findFragment(in.Text)
	if frag != nil {
		in.Fragment = frag
		var b strings.Builder
		b.WriteString(in.Text[:start])
		b.WriteByte(' ')
		flattenValues(&b, frag)
		b.WriteByte(' ')
		b.WriteString(in.Text[end:])
		in.corpus = strings.ToLower(b.String())
	}
	return in
}

// Mentions reports whether s occurs anywhere in the raw text, ignoring case.
// It is the marker test used for field names the agent was asked to return.
func (in *Input) Mentions(s string) bool {
	return strings.Contains(in.lower, strings.ToLower(s))
}

// Says reports whether s occurs in the corpus, ignoring case.
func (in *Input) Says(s string) bool {
	return strings.Contains(in.corpus, strings.ToLower(s))
}

// Keywords returns the entries of vocab found in the corpus, in vocab order.
func (in *Input) Keywords(vocab []string) []string {
	var out []string
	for _, k := range vocab {
		if in.Says(k) {
			out = append(out, k)
		}
	}
	return out
}

// Has reports whether the fragment carries key at any depth.
func (in *Input) Has(key string) bool {
	_, ok := lookup(in.Fragment, key)
	return ok
}

// Bool returns a boolean fragment field. ok is false when the field is
// missing or not a boolean.
func (in *Input) Bool(key string) (v, ok bool) {
	raw, found := lookup(in.Fragment, key)
	if !found {
		return false, false
	}
	v, ok = raw.(bool)
	return v, ok
}

// String returns a non-empty scalar fragment field rendered as text.
func (in *Input) String(key string) string {
	raw, found := lookup(in.Fragment, key)
	if !found || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64, bool:
		return fmt.Sprint(v)
	}
	return ""
}

// Strings returns a list field. String elements are kept as-is; object
// elements contribute their textField value.
func (in *Input) Strings(key, textField string) []string {
	raw, found := lookup(in.Fragment, key)
	if !found {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if s, ok := v[textField].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

// Count returns the number of elements of a list field, or -1 when absent.
func (in *Input) Count(key string) int {
	raw, found := lookup(in.Fragment, key)
	if !found {
		return -1
	}
	list, ok := raw.([]any)
	if !ok {
		return -1
	}
	return len(list)
}

// findFragment returns the first brace-delimited region of text that parses
// as a JSON object, with its byte offsets. Outer regions are tried before
// the objects nested inside them, and a brace that never closes is skipped.
func findFragment(text string) (map[string]any, int, int) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, 0, 0
	}
	closes, opens := matchBraces(text, start)
	for _, i := range opens {
		end, ok := closes[i]
		if !ok {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text[i:end]), &obj); err == nil {
			return obj, i, end
		}
	}
	return nil, 0, 0
}

// matchBraces walks text once from start, honouring JSON string quoting. It
// returns the offsets of every opening brace in order, and for each one that
// is closed, the offset just past its closing brace.
func matchBraces(text string, start int) (map[int]int, []int) {
	closes := make(map[int]int)
	var opens, stack []int
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			opens = append(opens, i)
			stack = append(stack, i)
		case '}':
			if n := len(stack); n > 0 {
				closes[stack[n-1]] = i + 1
				stack = stack[:n-1]
			}
		}
	}
	return closes, opens
}

func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	// nested objects, in key order so results are stable
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if child, ok := m[k].(map[string]any); ok {
			if v, found := lookup(child, key); found {
				return v, true
			}
		}
	}
	return nil, false
}

func flattenValues(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenValues(b, t[k])
		}
	case []any:
		for _, item := range t {
			flattenValues(b, item)
		}
	case string:
		b.WriteString(t)
		b.WriteByte(' ')
	case bool, float64:
		fmt.Fprint(b, t)
		b.WriteByte(' ')
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
