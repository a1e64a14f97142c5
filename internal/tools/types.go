// Package tools defines the tool record, its parameter schema, the reserved
// bootstrap tool and the store-backed Registry.
//
// Architecture:
//
//	Registrar -> Registry.Add   -> store.VectorStore
//	Resolver  -> Registry.Query -> store.VectorStore
//	Executor  -> Registry.Get   -> sandbox
package tools

import (
	"encoding/json"
	"fmt"
	"go/token"
	"regexp"
)

// Provenance distinguishes the reserved bootstrap tool from generated tools.
type Provenance string

const (
	ProvenanceReserved  Provenance = "reserved"
	ProvenanceGenerated Provenance = "generated"
)

// Property describes a single parameter property for JSON schema.
// Keywords without a field of their own (default, minimum, format, ...)
// are kept verbatim in Extra and written back on encoding.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// ParameterSchema defines the JSON schema for tool arguments.
// Unrecognized top-level keywords are kept in Extra.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Tool is the persistent tool record.
type Tool struct {
	Name        string
	Description string
	Parameters  ParameterSchema
	// Source is the Go function declaration (plus imports) run by the sandbox.
	Source     string
	Provenance Provenance
}

// Descriptor is the part of a tool shown to callers choosing what to run.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// Descriptor returns the caller-facing view of the tool.
func (t Tool) Descriptor() Descriptor {
	return Descriptor{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// EmbeddingText is the text a tool is embedded and indexed under.
func EmbeddingText(name, description string) string {
	return fmt.Sprintf("%s: %s", name, description)
}

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateName checks that name can be both a registry key and the
// identifier of a top-level Go function.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	case !nameRe.MatchString(name):
		return fmt.Errorf("%w: %q must match [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidName, name)
	case token.IsKeyword(name):
		return fmt.Errorf("%w: %q is a Go keyword", ErrInvalidName, name)
	case name == "_" || name == "init" || name == "main":
		return fmt.Errorf("%w: %q cannot name a callable function", ErrInvalidName, name)
	}
	return nil
}
