package agentloop

import "encoding/json"

// jsonUnmarshalInto decodes raw (the SDK's json.RawMessage tool input) into
// out. A nil/empty raw input decodes to an empty map, matching tools whose
// schema has no required properties.
func jsonUnmarshalInto(raw json.RawMessage, out *map[string]any) error {
	if len(raw) == 0 {
		*out = map[string]any{}
		return nil
	}
	return json.Unmarshal(raw, out)
}

// mustJSON serializes a tool result for the tool-result content block. Tool
// handlers only ever return JSON-marshalable values, so a marshal failure
// here indicates a programming error in the handler, not bad input.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to serialize tool result"}`
	}
	return string(data)
}
