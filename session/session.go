package session

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments is the
// JSON text exactly as the model produced it; it is parsed only when the
// call is dispatched.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolMessage builds the history entry answering call.
func ToolMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// History is the ordered conversation of one session. Entries are only ever
// appended, except for a system override which goes to the front. A History
// belongs to a single agent and is not safe for concurrent use.
type History struct {
	messages []Message
}

func NewHistory() *History {
	return &History{messages: []Message{}}
}

// Append adds msg to the end of the history.
func (h *History) Append(msg Message) {
	h.messages = append(h.messages, msg)
}

// InstallSystem puts content at the front of the history as a system
// message. The most recently installed override is always the first
// message, so installing the same content again is a no-op. Reports
// whether the history changed.
func (h *History) InstallSystem(content string) bool {
	if content == "" {
		return false
	}
	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem && h.messages[0].Content == content {
		return false
	}
	h.messages = append([]Message{{Role: RoleSystem, Content: content}}, h.messages...)
	return true
}

// Clear empties the history, system override included.
func (h *History) Clear() {
	h.messages = []Message{}
}

func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the history in order.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Last returns the final message, if any.
func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Snapshot captures the history so a failed turn can be undone with Restore.
func (h *History) Snapshot() []Message {
	return h.Messages()
}

// Restore replaces the history with a snapshot taken earlier.
func (h *History) Restore(snapshot []Message) {
	h.messages = make([]Message, len(snapshot))
	copy(h.messages, snapshot)
}
