package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"filing_signals/pkg/core/models"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrUnparseable is wrapped by ParseResponse when no strategy yields a
// JSON object of strings.
var ErrUnparseable = errors.New("model output is not a JSON object")

// ParseResponse decodes the model's reply. The trimmed text is decoded
// strictly first; on failure it gets exactly one repair pass (fence
// stripping, then json-repair with an Hjson fallback) and one more strict
// decode.
func ParseResponse(raw string) (models.ExtractionResult, error) {
	trimmed := strings.TrimSpace(raw)
	if res, err := decodeStrict(trimmed); err == nil {
		return res, nil
	}

	repaired, err := Repair(trimmed)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	res, err := decodeStrict(repaired)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return res, nil
}

// decodeStrict accepts a single JSON object whose five fields, when
// present, are strings. Keys must match exactly; a key that differs only in
// case counts as missing.
func decodeStrict(s string) (models.ExtractionResult, error) {
	var res models.ExtractionResult
	if !strings.HasPrefix(s, "{") {
		return res, errors.New("not a JSON object")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return res, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return res, errors.New("unexpected data after object")
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{"Company Name", &res.CompanyName},
		{"Stock Name", &res.StockName},
		{"Filing Time", &res.FilingTime},
		{"New Product", &res.NewProduct},
		{"Product Description", &res.ProductDescription},
	} {
		raw, ok := fields[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return models.ExtractionResult{}, fmt.Errorf("field %q: %w", f.key, err)
		}
	}
	return res, nil
}

// Repair normalizes common model output defects into standard JSON.
// Supported repairs:
// - Markdown code fences around the object
// - Prose before or after the object
// - Single quotes, unquoted keys, trailing commas, comments
//
// Only a complete object is repaired. Output cut off before the closing
// brace, or holding a second object, is rejected.
func Repair(s string) (string, error) {
	stripped := StripFences(s)
	if strings.HasPrefix(stripped, "[") {
		return "", errors.New("top-level value is an array")
	}
	body, err := firstObject(stripped)
	if err != nil {
		return "", err
	}

	repaired, err := jsonrepair.RepairJSON(body)
	if err == nil && json.Valid([]byte(repaired)) && strings.HasPrefix(strings.TrimSpace(repaired), "{") {
		return repaired, nil
	}

	// Hjson is the most lenient fallback.
	var v map[string]any
	if herr := hjson.Unmarshal([]byte(body), &v); herr != nil {
		if err != nil {
			return "", fmt.Errorf("JSON_REPAIR_FAILED: %v; HJSON_PARSE_ERROR: %v", err, herr)
		}
		return "", fmt.Errorf("HJSON_PARSE_ERROR: %v", herr)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("JSON_MARSHAL_ERROR: %v", err)
	}
	return string(out), nil
}

// StripFences returns the contents of the first fenced code block that holds
// an object, preferring blocks tagged json. Text without fences is returned
// trimmed. Applying it twice gives the same result as applying it once.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") && !strings.Contains(s, "~~~") {
		return s
	}

	source := []byte(s)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var first, tagged string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		content := strings.TrimSpace(string(block.Lines().Value(source)))
		if !strings.Contains(content, "{") {
			return ast.WalkSkipChildren, nil
		}
		if first == "" {
			first = content
		}
		if strings.EqualFold(string(block.Language(source)), "json") && tagged == "" {
			tagged = content
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	switch {
	case tagged != "":
		return tagged
	case first != "":
		return first
	default:
		return trimFenceMarkers(s)
	}
}

// trimFenceMarkers removes fence lines by hand for output goldmark does not
// see as a code block, such as a fence glued to the object.
func trimFenceMarkers(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced top-level object in s with the
// surrounding prose dropped. Braces inside single or double quoted strings
// are not counted.
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errors.New("no JSON object found")
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth > 0 {
				continue
			}
			if strings.Contains(s[i+1:], "{") {
				return "", errors.New("more than one top-level object")
			}
			return s[start : i+1], nil
		}
	}
	return "", errors.New("truncated object: no closing brace")
}
