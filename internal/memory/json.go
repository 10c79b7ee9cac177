package memory

import "encoding/json"

// marshalJSON serializes v to its JSON text form for storage in a TEXT
// column. It never panics: a value that cannot be marshaled is stored as
// the JSON literal "null".
func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// unmarshalStrings parses a JSON array-of-strings column, defaulting to an
// empty (non-nil) slice for blank or malformed input.
func unmarshalStrings(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func unmarshalSkillMap(raw string) []SkillNode {
	if raw == "" {
		return []SkillNode{}
	}
	var out []SkillNode
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []SkillNode{}
	}
	return out
}

func unmarshalProgress(raw string) []ProgressArea {
	if raw == "" {
		return []ProgressArea{}
	}
	var out []ProgressArea
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []ProgressArea{}
	}
	return out
}

func unmarshalLearningContext(raw string) LearningContext {
	var lc LearningContext
	if raw == "" {
		return lc
	}
	_ = json.Unmarshal([]byte(raw), &lc)
	if lc.RelatedChunks == nil {
		lc.RelatedChunks = []string{}
	}
	return lc
}
