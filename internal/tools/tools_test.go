package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/neuroidss/ToolArtifact/internal/embedding"
	"github.com/neuroidss/ToolArtifact/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func greetSchema() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"name": {Type: "string", Description: "Soul name"},
		},
		Required: []string{"name"},
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"simple", "greet_soul", true},
		{"leading underscore", "_helper", true},
		{"digits", "sum2", true},
		{"empty", "", false},
		{"leading digit", "2sum", false},
		{"dash", "greet-soul", false},
		{"space", "greet soul", false},
		{"keyword", "func", false},
		{"keyword range", "range", false},
		{"blank", "_", false},
		{"init", "init", false},
		{"main", "main", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestParameterSchema_Validate(t *testing.T) {
	assert.NoError(t, greetSchema().Validate())
	assert.NoError(t, ParameterSchema{Type: "object", Properties: map[string]Property{}}.Validate())

	assert.ErrorIs(t, ParameterSchema{Type: "array", Properties: map[string]Property{}}.Validate(), ErrInvalidSchema)
	assert.ErrorIs(t, ParameterSchema{Type: "object"}.Validate(), ErrInvalidSchema)
	assert.ErrorIs(t, ParameterSchema{Type: "object", Properties: map[string]Property{"x": {}}}.Validate(), ErrInvalidSchema)
}

func TestSchemaRoundTrip(t *testing.T) {
	schemas := map[string]ParameterSchema{
		"greet": greetSchema(),
		"nested": {
			Type: "object",
			Properties: map[string]Property{
				"mode":  {Type: "string", Enum: []string{"fast", "slow"}},
				"items": {Type: "array", Items: &Property{Type: "number"}},
			},
			Required: []string{"items", "mode"},
		},
		"empty slices": {
			Type:       "object",
			Properties: map[string]Property{"x": {Type: "string", Enum: []string{}}},
			Required:   []string{},
		},
		"extra keywords": {
			Type: "object",
			Properties: map[string]Property{
				"count": {Type: "integer", Extra: map[string]json.RawMessage{
					"minimum": json.RawMessage(`1`),
					"default": json.RawMessage(` 3 `),
				}},
				"point": {
					Type:       "object",
					Properties: map[string]Property{"x": {Type: "number"}},
					Required:   []string{"x"},
				},
			},
			Extra: map[string]json.RawMessage{"additionalProperties": json.RawMessage(`false`)},
		},
	}
	for name, s := range schemas {
		t.Run(name, func(t *testing.T) {
			want := s.Normalize()
			raw, err := EncodeSchema(want)
			require.NoError(t, err)
			got, err := DecodeSchema(raw)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			again, err := EncodeSchema(got)
			require.NoError(t, err)
			assert.Equal(t, raw, again)
		})
	}
}

func TestSchemaFromValue(t *testing.T) {
	t.Run("decoded JSON object", func(t *testing.T) {
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`), &v))
		s, err := SchemaFromValue(v)
		require.NoError(t, err)
		assert.Equal(t, "object", s.Type)
		assert.Equal(t, []string{"name"}, s.Required)
		assert.Equal(t, "string", s.Properties["name"].Type)
	})

	t.Run("malformed JSON text is repaired", func(t *testing.T) {
		s, err := SchemaFromValue(`{'type': 'object', 'properties': {'n': {'type': 'number'},},}`)
		require.NoError(t, err)
		assert.Equal(t, "number", s.Properties["n"].Type)
	})

	t.Run("typed schema", func(t *testing.T) {
		s, err := SchemaFromValue(greetSchema())
		require.NoError(t, err)
		assert.Equal(t, greetSchema(), s)
	})

	t.Run("properties not an object", func(t *testing.T) {
		_, err := SchemaFromValue(map[string]any{"type": "object", "properties": []any{"a"}})
		assert.ErrorIs(t, err, ErrInvalidSchema)
	})

	t.Run("null", func(t *testing.T) {
		_, err := SchemaFromValue(nil)
		assert.ErrorIs(t, err, ErrInvalidSchema)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := SchemaFromValue(42)
		assert.ErrorIs(t, err, ErrInvalidSchema)
	})
}

func TestMissingRequired(t *testing.T) {
	s := ParameterSchema{Type: "object", Properties: map[string]Property{}, Required: []string{"a", "b", "c"}}
	missing := s.MissingRequired(map[string]any{"a": 1, "b": nil})
	assert.Equal(t, []string{"b", "c"}, missing)
	assert.Empty(t, s.MissingRequired(map[string]any{"a": 0, "b": "", "c": false}))
}

func TestOutcomes(t *testing.T) {
	assert.Equal(t, "Success: tool 'x' created.", CreatedOutcome("x"))
	assert.Equal(t, "Warning: tool 'x' already exists; creation skipped.", ExistsOutcome("x"))
	assert.Equal(t, "Error: boom 3", Errorf("boom %d", 3))
	assert.True(t, IsError(ErrorOutcome(errors.New("x"))))
	assert.False(t, IsError(ExistsOutcome("x")))

	err := Fail(KindExecution, "greet_soul", errors.New("index out of range"))
	assert.Equal(t, "Error: execution failed for greet_soul: index out of range", ErrorOutcome(err))
	assert.Equal(t, KindExecution, KindOf(fmtWrap(err)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func fmtWrap(err error) error { return errors.Join(errors.New("ctx"), err) }

func TestReservedDescriptor(t *testing.T) {
	d := ReservedDescriptor()
	assert.Equal(t, ReservedToolName, d.Name)
	require.NoError(t, d.Parameters.Validate())
	assert.ElementsMatch(t, []string{ParamNewToolName, ParamNewToolDescription, ParamNewToolParameters}, d.Parameters.Required)

	d.Parameters.Required = nil
	assert.Len(t, ReservedDescriptor().Parameters.Required, 3, "descriptor must not share state between calls")
}

func newRegistry(t *testing.T) (*Registry, store.VectorStore) {
	t.Helper()
	s, err := store.NewChromemStore("", "tools", false)
	require.NoError(t, err)
	return NewRegistry(s), s
}

func TestRegistry_AddGet(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	eng := embedding.NewHashEngine(64)

	tool := Tool{
		Name:        "greet_soul",
		Description: "Return a greeting for a soul name",
		Parameters:  greetSchema(),
		Source:      "func greet_soul(params map[string]interface{}) string { return \"hi\" }",
		Provenance:  ProvenanceGenerated,
	}
	vec, err := eng.Embed(ctx, EmbeddingText(tool.Name, tool.Description))
	require.NoError(t, err)
	require.NoError(t, reg.Add(ctx, tool, vec))

	got, err := reg.Get(ctx, "greet_soul")
	require.NoError(t, err)
	if diff := cmp.Diff(tool, *got); diff != "" {
		t.Errorf("stored tool mismatch (-want +got):\n%s", diff)
	}

	has, err := reg.Has(ctx, "greet_soul")
	require.NoError(t, err)
	assert.True(t, has)

	d, prov, err := reg.Describe(ctx, "greet_soul")
	require.NoError(t, err)
	assert.Equal(t, tool.Descriptor(), d)
	assert.Equal(t, ProvenanceGenerated, prov)

	dup := tool
	dup.Source = "func greet_soul(params map[string]interface{}) string { return \"other\" }"
	assert.ErrorIs(t, reg.Add(ctx, dup, vec), ErrToolExists)
	got, err = reg.Get(ctx, "greet_soul")
	require.NoError(t, err)
	assert.Equal(t, tool.Source, got.Source)

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_QuerySkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	reg, s := newRegistry(t)

	good := Tool{Name: "good", Description: "fine", Parameters: greetSchema(), Provenance: ProvenanceGenerated}
	require.NoError(t, reg.Add(ctx, good, []float32{1, 0}))
	require.NoError(t, s.Add(ctx, store.Record{
		ID:        "broken",
		Embedding: []float32{1, 0},
		Metadata:  map[string]string{"name": "broken", "parameters_json": "{not json"},
	}))

	found, err := reg.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "good", found[0].Name)

	_, err = reg.Get(ctx, "broken")
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestRegistry_EnsureReserved(t *testing.T) {
	ctx := context.Background()
	reg, s := newRegistry(t)
	eng := embedding.NewHashEngine(64)

	created, err := reg.EnsureReserved(ctx, eng)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = reg.EnsureReserved(ctx, eng)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := s.Get(ctx, ReservedToolName)
	require.NoError(t, err)
	assert.Equal(t, "true", rec.Metadata["is_internal"])
	assert.Equal(t, "", rec.Metadata["code"])
	assert.Equal(t, "create_new_tool: "+reservedDescription, rec.Document)

	got, err := reg.Get(ctx, ReservedToolName)
	require.NoError(t, err)
	assert.Equal(t, ProvenanceReserved, got.Provenance)
}

func TestSchemaKeepsUnknownKeywords(t *testing.T) {
	in := `{"type":"object","$schema":"http://json-schema.org/draft-07/schema#",` +
		`"properties":{"count":{"type":"integer","description":"n","minimum":1,"default":3},` +
		`"point":{"type":"object","properties":{"x":{"type":"number","format":"double"}},"required":["x"]},` +
		`"tags":{"type":"array","items":{"type":"string","maxLength":8}}},` +
		`"required":["count"],"additionalProperties":false}`

	s, err := SchemaFromValue(in)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Equal(t, "number", s.Properties["point"].Properties["x"].Type)
	assert.JSONEq(t, `1`, string(s.Properties["count"].Extra["minimum"]))

	out, err := EncodeSchema(s.Normalize())
	require.NoError(t, err)
	assert.JSONEq(t, in, out)
}

func TestSchemaValidateNested(t *testing.T) {
	s := ParameterSchema{Type: "object", Properties: map[string]Property{
		"point": {Type: "object", Properties: map[string]Property{"x": {}}},
	}}
	assert.ErrorContains(t, s.Validate(), `"point.x" has no type`)

	s = ParameterSchema{Type: "object", Properties: map[string]Property{
		"list": {Type: "array", Items: &Property{}},
	}}
	assert.ErrorContains(t, s.Validate(), `"list[]" has no type`)
}

func TestNormalizeKeepsEmptyRequired(t *testing.T) {
	empty := ParameterSchema{Type: "object", Properties: map[string]Property{}, Required: []string{}}.Normalize()
	assert.NotNil(t, empty.Required)
	assert.Empty(t, empty.Required)

	raw, err := EncodeSchema(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{},"required":[]}`, raw)
	decoded, err := DecodeSchema(raw)
	require.NoError(t, err)
	assert.Equal(t, empty, decoded)

	absent := ParameterSchema{Type: "object", Properties: map[string]Property{}}.Normalize()
	assert.Nil(t, absent.Required)
	raw, err = EncodeSchema(absent)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, raw)
}
