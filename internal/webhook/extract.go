package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractRule pulls a reply string out of a decoded JSON body.
type extractRule struct {
	name  string
	probe func(v interface{}) (string, bool)
}

// extractionRules are tried in order; the first match wins. n8n chat
// workflows usually answer with one of these shapes.
var extractionRules = []extractRule{
	{name: "output", probe: objectField("output")},
	{name: "text", probe: objectField("text")},
	{name: "data.text", probe: nestedField("data", "text")},
	{name: "[0].output", probe: firstElementField("output")},
}

// ExtractReply decodes body and returns the reply text. Bodies that match no
// rule are returned whole: JSON strings unquoted, anything else re-encoded.
func ExtractReply(body []byte) (string, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return "", err
	}

	for _, rule := range extractionRules {
		if s, ok := rule.probe(v); ok {
			return s, nil
		}
	}

	// an empty JSON string stays quoted so the reply is never blank
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to re-encode reply: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func decodeJSON(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// matchString accepts truthy scalars: a non-empty string, a non-zero number
// or true. Numbers keep their JSON spelling. Objects and arrays never match.
func matchString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case json.Number:
		f, err := x.Float64()
		if err != nil || f == 0 {
			return "", false
		}
		return x.String(), true
	case bool:
		if x {
			return "true", true
		}
	}
	return "", false
}

func objectField(key string) func(interface{}) (string, bool) {
	return func(v interface{}) (string, bool) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		return matchString(obj[key])
	}
}

func nestedField(outer, inner string) func(interface{}) (string, bool) {
	return func(v interface{}) (string, bool) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		return objectField(inner)(obj[outer])
	}
}

func firstElementField(key string) func(interface{}) (string, bool) {
	return func(v interface{}) (string, bool) {
		arr, ok := v.([]interface{})
		if !ok || len(arr) == 0 {
			return "", false
		}
		return objectField(key)(arr[0])
	}
}
