package minimact

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// A transform is a deterministic, side-effect-free function applied to one
// slot value before it is rendered into a template string. Only whitelisted
// transforms are extractable; an expression calling anything else is Opaque.
type transformFunc func(v any) (string, error)

var numberPrinter = message.NewPrinter(language.English)

// transforms is the extraction whitelist. Names here are the only function
// shapes the extractor classifies as Dynamic instead of Opaque.
var transforms = map[string]transformFunc{
	"number": transformNumber,
	"fixed2": transformFixed2,
	"upper":  func(v any) (string, error) { return strings.ToUpper(stringifyValue(v)), nil },
	"lower":  func(v any) (string, error) { return strings.ToLower(stringifyValue(v)), nil },
	"trim":   func(v any) (string, error) { return strings.TrimSpace(stringifyValue(v)), nil },
}

// transformNumber formats a numeric value with locale grouping, e.g.
// 1234567 -> "1,234,567".
func transformNumber(v any) (string, error) {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return numberPrinter.Sprint(number.Decimal(int64(val))), nil
		}
		return numberPrinter.Sprint(number.Decimal(val)), nil
	case int:
		return numberPrinter.Sprint(number.Decimal(val)), nil
	case int64:
		return numberPrinter.Sprint(number.Decimal(val)), nil
	default:
		return "", fmt.Errorf("number transform: non-numeric value %T", v)
	}
}

// transformFixed2 renders a numeric value with two fixed decimal places.
func transformFixed2(v any) (string, error) {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", val), nil
	case int:
		return fmt.Sprintf("%.2f", float64(val)), nil
	case int64:
		return fmt.Sprintf("%.2f", float64(val)), nil
	default:
		return "", fmt.Errorf("fixed2 transform: non-numeric value %T", v)
	}
}

// knownTransform reports whether a transform name is on the whitelist.
func knownTransform(name string) bool {
	_, ok := transforms[name]
	return ok
}

// applyTransform runs the named transform, or plain stringification for the
// empty name.
func applyTransform(name string, v any) (string, error) {
	if name == "" {
		return stringifyValue(v), nil
	}
	fn, ok := transforms[name]
	if !ok {
		return "", fmt.Errorf("unknown transform %q", name)
	}
	return fn(v)
}
