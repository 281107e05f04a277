package llm

import "strings"

// FieldTypes walks a JSON schema definition and returns a flattened map of
// dotted field path to field type. Nested objects flatten with "."; enum
// fields become "category"; string fields with a date format or a date-like
// name become "date".
func FieldTypes(schemaDef map[string]interface{}) map[string]string {
	out := make(map[string]string)
	props, ok := schemaDef["properties"].(map[string]interface{})
	if !ok {
		return out
	}
	walkProperties(props, "", out)
	return out
}

func walkProperties(props map[string]interface{}, prefix string, out map[string]string) {
	for name, raw := range props {
		def, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		out[path] = fieldType(name, def)

		if out[path] == "object" {
			if nested, ok := def["properties"].(map[string]interface{}); ok {
				walkProperties(nested, path, out)
			}
		}
	}
}

func fieldType(name string, def map[string]interface{}) string {
	if _, hasEnum := def["enum"]; hasEnum {
		return "category"
	}

	typ, _ := def["type"].(string)
	// Nullable fields often use ["string","null"]
	if typ == "" {
		if types, ok := def["type"].([]interface{}); ok {
			for _, t := range types {
				if s, ok := t.(string); ok && s != "null" {
					typ = s
					break
				}
			}
		}
	}

	switch typ {
	case "integer", "number":
		return "number"
	case "boolean":
		return "boolean"
	case "array":
		return "array"
	case "object":
		return "object"
	case "string":
		if format, _ := def["format"].(string); format == "date" || format == "date-time" {
			return "date"
		}
		if looksLikeDateField(name) {
			return "date"
		}
		return "string"
	}
	return "string"
}

func looksLikeDateField(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"date", "_at", "dob", "birth"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
