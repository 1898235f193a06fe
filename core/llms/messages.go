package llms

// Role describes who a conversation message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single message in a conversation history.
type Message struct {
	Role    Role
	Content string

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string
}

// ToolCall is one structured call requested by the model. While streaming,
// Arguments may hold only a fragment of the final JSON; fragments belonging
// to the same Index are concatenated until the provider marks the call
// complete.
type ToolCall struct {
	ID        string
	Index     int
	Name      string
	Arguments string
}

// Tool describes a capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the tool arguments.
	Parameters any
}
