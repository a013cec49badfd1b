package webhook

import (
	"encoding/json"
	"errors"
)

var errInvalidPayload = errors.New("invalid webhook payload")

// decodeObject parses a webhook body that must be a non-empty JSON object.
func decodeObject(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, errInvalidPayload
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errInvalidPayload
	}
	object, ok := out.(map[string]interface{})
	if !ok || len(object) == 0 {
		return nil, errInvalidPayload
	}
	return object, nil
}
