package utils

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

func Serialize(o any) ([]byte, error) {
	return json.Marshal(o)
}

func Unserialize(b []byte, o any) error {
	return json.Unmarshal(b, o)
}

// Stringify renders an arbitrary value the way edge conditions and event
// summaries expect: cast for scalars, %v formatting for structured values.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprintf("%v", v)
}
