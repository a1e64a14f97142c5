package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Validate checks the structural preconditions for creating a tool.
func (s ParameterSchema) Validate() error {
	if s.Type != "object" {
		return fmt.Errorf("%w: type must be \"object\", got %q", ErrInvalidSchema, s.Type)
	}
	if s.Properties == nil {
		return fmt.Errorf("%w: properties must be an object", ErrInvalidSchema)
	}
	return validateProperties("", s.Properties)
}

func validateProperties(prefix string, props map[string]Property) error {
	for name, p := range props {
		if err := validateProperty(prefix+name, p); err != nil {
			return err
		}
	}
	return nil
}

func validateProperty(path string, p Property) error {
	if p.Type == "" {
		return fmt.Errorf("%w: property %q has no type", ErrInvalidSchema, path)
	}
	if p.Items != nil {
		if err := validateProperty(path+"[]", *p.Items); err != nil {
			return err
		}
	}
	return validateProperties(path+".", p.Properties)
}

// Normalize returns a copy whose JSON encoding decodes back to an identical
// value: an empty enum becomes nil, a nil property map becomes empty and
// Extra values are compacted. Required keeps the difference between nil
// (absent) and empty.
func (s ParameterSchema) Normalize() ParameterSchema {
	out := ParameterSchema{
		Type:       s.Type,
		Properties: make(map[string]Property, len(s.Properties)),
		Required:   cloneStrings(s.Required),
		Extra:      compactExtra(s.Extra),
	}
	for k, p := range s.Properties {
		out.Properties[k] = normalizeProperty(p)
	}
	return out
}

func normalizeProperty(p Property) Property {
	out := Property{
		Type:        p.Type,
		Description: p.Description,
		Required:    cloneStrings(p.Required),
		Extra:       compactExtra(p.Extra),
	}
	if len(p.Enum) > 0 {
		out.Enum = append([]string(nil), p.Enum...)
	}
	if p.Items != nil {
		items := normalizeProperty(*p.Items)
		out.Items = &items
	}
	if len(p.Properties) > 0 {
		out.Properties = make(map[string]Property, len(p.Properties))
		for k, child := range p.Properties {
			out.Properties[k] = normalizeProperty(child)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func compactExtra(in map[string]json.RawMessage) map[string]json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, raw := range in {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			out[k] = append(json.RawMessage(nil), raw...)
			continue
		}
		out[k] = json.RawMessage(buf.Bytes())
	}
	return out
}

// Keywords decoded into struct fields; everything else goes to Extra.
var (
	schemaKeywords   = map[string]bool{"type": true, "properties": true, "required": true}
	propertyKeywords = map[string]bool{"type": true, "description": true, "enum": true, "items": true, "properties": true, "required": true}
)

type schemaFields ParameterSchema

type propertyFields Property

// MarshalJSON writes the known fields followed by Extra.
func (s ParameterSchema) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(schemaFields(s), s.Required, s.Extra)
}

// UnmarshalJSON reads the known fields and collects the rest into Extra.
func (s *ParameterSchema) UnmarshalJSON(data []byte) error {
	var f schemaFields
	extra, err := unmarshalWithExtra(data, &f, schemaKeywords)
	if err != nil {
		return err
	}
	*s = ParameterSchema(f)
	s.Extra = extra
	return nil
}

// MarshalJSON writes the known fields followed by Extra.
func (p Property) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(propertyFields(p), p.Required, p.Extra)
}

// UnmarshalJSON reads the known fields and collects the rest into Extra.
func (p *Property) UnmarshalJSON(data []byte) error {
	var f propertyFields
	extra, err := unmarshalWithExtra(data, &f, propertyKeywords)
	if err != nil {
		return err
	}
	*p = Property(f)
	p.Extra = extra
	return nil
}

// marshalWithExtra encodes fields, writes an empty (non-nil) required list
// that omitempty would drop, and adds extra keywords.
func marshalWithExtra(fields any, required []string, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 && (required == nil || len(required) > 0) {
		return data, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	if required != nil && len(required) == 0 {
		merged["required"] = json.RawMessage("[]")
	}
	for k, raw := range extra {
		if _, known := merged[k]; !known {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

func unmarshalWithExtra(data []byte, fields any, known map[string]bool) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, raw := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = raw
	}
	return extra, nil
}

// MissingRequired lists required parameters that are absent or null in args.
func (s ParameterSchema) MissingRequired(args map[string]any) []string {
	var missing []string
	for _, name := range s.Required {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// EncodeSchema serializes a schema for storage.
func EncodeSchema(s ParameterSchema) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return string(data), nil
}

// DecodeSchema parses a stored schema. Stored schemas were produced by
// EncodeSchema, so no repair is attempted.
func DecodeSchema(raw string) (ParameterSchema, error) {
	var s ParameterSchema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ParameterSchema{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return s, nil
}

// SchemaFromValue converts a caller-supplied schema into a ParameterSchema.
// It accepts a ParameterSchema, a decoded JSON object, or JSON text; text
// that is not valid JSON is passed through jsonrepair first since models
// routinely emit trailing commas and single quotes.
func SchemaFromValue(v any) (ParameterSchema, error) {
	switch x := v.(type) {
	case ParameterSchema:
		return x, nil
	case *ParameterSchema:
		if x == nil {
			return ParameterSchema{}, fmt.Errorf("%w: schema is null", ErrInvalidSchema)
		}
		return *x, nil
	case string:
		return schemaFromText(x)
	case []byte:
		return schemaFromText(string(x))
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return ParameterSchema{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		return strictDecode(data)
	case nil:
		return ParameterSchema{}, fmt.Errorf("%w: schema is null", ErrInvalidSchema)
	default:
		return ParameterSchema{}, fmt.Errorf("%w: unsupported schema type %T", ErrInvalidSchema, v)
	}
}

func schemaFromText(text string) (ParameterSchema, error) {
	text = strings.TrimSpace(text)
	if !json.Valid([]byte(text)) {
		repaired, err := jsonrepair.JSONRepair(text)
		if err != nil {
			return ParameterSchema{}, fmt.Errorf("%w: unparseable JSON: %v", ErrInvalidSchema, err)
		}
		text = repaired
	}
	return strictDecode([]byte(text))
}

// strictDecode rejects schemas whose properties value is not an object.
func strictDecode(data []byte) (ParameterSchema, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return ParameterSchema{}, fmt.Errorf("%w: schema must be a JSON object: %v", ErrInvalidSchema, err)
	}
	if raw, ok := top["properties"]; ok {
		trimmed := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(trimmed, "{") {
			return ParameterSchema{}, fmt.Errorf("%w: properties must be an object", ErrInvalidSchema)
		}
	}
	var s ParameterSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return ParameterSchema{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return s, nil
}
