package store

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/dispense/internal/ir"
)

// timeLayout is fixed width so that TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalCredits renders a balance exactly as stored, without rounding.
func marshalCredits(d *apd.Decimal) string {
	return d.Text('f')
}

func unmarshalCredits(s string) (apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("unmarshal credits %q: %w", s, err)
	}
	return *d, nil
}

// marshalDocument encodes a shadow document as canonical JSON.
func marshalDocument(doc map[string]any) (string, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(data), nil
}

// mergePatch applies an RFC 7386 merge patch to target in place:
// null deletes a key, objects merge recursively, anything else replaces.
func mergePatch(target, patch map[string]any) map[string]any {
	if target == nil {
		target = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			existing, _ := target[k].(map[string]any)
			target[k] = mergePatch(existing, sub)
			continue
		}
		target[k] = v
	}
	return target
}
