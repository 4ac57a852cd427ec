package providers

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// extractObject finds the JSON object in a model answer. It accepts a bare
// object, an object inside a code fence, or an object surrounded by prose.
func extractObject(text string) (gjson.Result, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return gjson.Result{}, fmt.Errorf("%w: empty answer", ErrMalformedOutput)
	}

	if strings.Contains(cleaned, "```") {
		for _, part := range strings.Split(cleaned, "```") {
			candidate := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "json"))
			if strings.HasPrefix(candidate, "{") && strings.HasSuffix(candidate, "}") && gjson.Valid(candidate) {
				return gjson.Parse(candidate), nil
			}
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end <= start {
		return gjson.Result{}, fmt.Errorf("%w: no JSON object found", ErrMalformedOutput)
	}
	candidate := cleaned[start : end+1]
	if !gjson.Valid(candidate) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformedOutput)
	}
	return gjson.Parse(candidate), nil
}

func requireKeys(doc gjson.Result, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !doc.Get(k).Exists() {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
