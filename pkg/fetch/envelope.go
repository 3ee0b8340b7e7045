package fetch

import "github.com/tidwall/gjson"

// envelopePaths lists the nested locations an upstream may wrap its record
// list in, tried in order.
var envelopePaths = []string{"result.data", "result.list"}

// Unwrap extracts the record list from an upstream payload. Bare arrays are
// returned as-is, known envelopes are unwrapped, and anything else is passed
// through untouched. Only invalid JSON is rejected.
func Unwrap(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformed
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return body, nil
	}
	for _, path := range envelopePaths {
		if r := root.Get(path); r.IsArray() {
			return []byte(r.Raw), nil
		}
	}
	return body, nil
}
