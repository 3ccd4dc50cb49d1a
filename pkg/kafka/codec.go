package kafka

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Encode turns a message value into bytes. []byte and string pass through; anything else is JSON.
func Encode(value interface{}) ([]byte, error) {
	switch val := value.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

// Decode unmarshals a JSON payload into out.
func Decode(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
