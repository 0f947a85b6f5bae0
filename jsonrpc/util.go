package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pifanctrl/log"
)

// PrepareJSONResponse encodes v as a single newline terminated line.
func PrepareJSONResponse(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("encode response: %v", err)
		return nil, err
	}
	return append(b, '\n'), nil
}

// FloatParam decodes a numeric parameter given either as a JSON number or
// as a string.
func FloatParam(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing parameter")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("parameter %s is not a number", raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %q is not a number", s)
	}
	return f, nil
}
