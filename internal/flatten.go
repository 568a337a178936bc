package internal

import "strconv"

// Flatten maps every nested value of a decoded JSON object to its dotted path,
// so {"pull_request":{"head":{"ref":"x"}}} yields "pull_request.head.ref": "x".
// Objects and arrays are also kept under their own path; array elements are
// addressed as path[i].
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		flattenInto(out, key, value)
	}
	return out
}

func flattenInto(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		out[path] = typed
		for key, child := range typed {
			flattenInto(out, path+"."+key, child)
		}
	case []interface{}:
		out[path] = typed
		for i, child := range typed {
			flattenInto(out, path+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		out[path] = value
	}
}
