package events

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ShapeError reports a payload value whose JSON type does not match what the
// normalizer expects at that path.
type ShapeError struct {
	Path string
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("payload %s: expected %s, got %s", e.Path, e.Want, e.Got)
}

// lookup walks keys from root. A missing or null parent resolves to an absent
// result; a parent of any other non-object type is a ShapeError.
func lookup(root gjson.Result, keys ...string) (gjson.Result, error) {
	current := root
	for i, key := range keys {
		if current.Type == gjson.Null {
			return gjson.Result{}, nil
		}
		if !current.IsObject() {
			return gjson.Result{}, &ShapeError{Path: pathOf(keys[:i]), Want: "object", Got: kindOf(current)}
		}
		current = current.Get(key)
	}
	return current, nil
}

// optionalString resolves keys to a string. Absent and null values yield nil.
func optionalString(root gjson.Result, keys ...string) (*string, error) {
	value, err := lookup(root, keys...)
	if err != nil {
		return nil, err
	}
	switch value.Type {
	case gjson.Null:
		return nil, nil
	case gjson.String:
		out := value.Str
		return &out, nil
	default:
		return nil, &ShapeError{Path: pathOf(keys), Want: "string", Got: kindOf(value)}
	}
}

// identifier resolves keys to the string form of a numeric or string id.
// Numbers keep their JSON literal so 42 becomes "42".
func identifier(root gjson.Result, keys ...string) (*string, error) {
	value, err := lookup(root, keys...)
	if err != nil {
		return nil, err
	}
	switch value.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		out := value.Raw
		return &out, nil
	case gjson.String:
		out := value.Str
		return &out, nil
	default:
		return nil, &ShapeError{Path: pathOf(keys), Want: "number or string", Got: kindOf(value)}
	}
}

func isString(value gjson.Result, want string) bool {
	return value.Type == gjson.String && value.Str == want
}

func kindOf(value gjson.Result) string {
	switch {
	case value.IsObject():
		return "object"
	case value.IsArray():
		return "array"
	case value.Type == gjson.True || value.Type == gjson.False:
		return "boolean"
	default:
		return strings.ToLower(value.Type.String())
	}
}

func pathOf(keys []string) string {
	if len(keys) == 0 {
		return "$"
	}
	return "$." + strings.Join(keys, ".")
}
