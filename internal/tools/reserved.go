package tools

// ReservedToolName is the bootstrap tool that creates other tools.
const ReservedToolName = "create_new_tool"

const reservedDescription = "Creates a new tool from a natural-language description. " +
	"Use it when none of the available tools can perform the task. " +
	"The new tool becomes available for later calls under the given name."

// Reserved parameter names.
const (
	ParamNewToolName        = "new_tool_name"
	ParamNewToolDescription = "new_tool_description"
	ParamNewToolParameters  = "new_tool_parameters"
)

// ReservedDescriptor returns the descriptor of the bootstrap tool. It does not
// depend on store contents and is built fresh on each call so callers may
// modify the result.
func ReservedDescriptor() Descriptor {
	return Descriptor{
		Name:        ReservedToolName,
		Description: reservedDescription,
		Parameters: ParameterSchema{
			Type: "object",
			Properties: map[string]Property{
				ParamNewToolName: {
					Type:        "string",
					Description: "Identifier for the new tool, matching [a-zA-Z_][a-zA-Z0-9_]*.",
				},
				ParamNewToolDescription: {
					Type:        "string",
					Description: "What the new tool does, in one or two sentences.",
				},
				ParamNewToolParameters: {
					Type:        "object",
					Description: "JSON schema of the new tool's arguments: {\"type\":\"object\",\"properties\":{...},\"required\":[...]}.",
				},
			},
			Required: []string{ParamNewToolName, ParamNewToolDescription, ParamNewToolParameters},
		},
	}
}

// ReservedTool returns the bootstrap tool as a storable record. It has no
// source; executing it delegates to tool creation.
func ReservedTool() Tool {
	d := ReservedDescriptor()
	return Tool{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
		Provenance:  ProvenanceReserved,
	}
}
