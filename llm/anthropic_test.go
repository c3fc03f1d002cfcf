package llm

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m4xw311/retainer/session"
	"github.com/m4xw311/retainer/tools"
)

func TestConvertMessagesToAnthropicMessages(t *testing.T) {
	call2 := session.ToolCall{ID: "call_2", Name: "total_usage_ram_in_gb", Arguments: "not json"}
	messages := append(toolTurn(), session.ToolMessage(call2, "7.42"))

	result, system := convertMessagesToAnthropicMessages(messages)
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}

	assistant := result[1]
	if assistant.Role != anthropic.MessageParamRoleAssistant {
		t.Fatalf("expected assistant turn, got %s", assistant.Role)
	}
	use := assistant.Content[0].OfToolUse
	if use == nil || use.ID != "call_1" || use.Name != "disk_usage" {
		t.Fatalf("unexpected tool_use block %+v", assistant.Content[0])
	}

	results := result[2]
	if results.Role != anthropic.MessageParamRoleUser || len(results.Content) != 2 {
		t.Fatalf("tool results should share one user turn, got %+v", results)
	}
	if id := results.Content[1].OfToolResult.ToolUseID; id != "call_2" {
		t.Errorf("second result id = %q", id)
	}
}

func TestToolInput(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{`{"path":"/"}`, `{"path":"/"}`},
		{"", "{}"},
		{"not json", "{}"},
		{"[1,2]", "{}"},
		{"null", "{}"},
	}
	for _, tc := range testCases {
		if got := string(toolInput(tc.in)); got != tc.want {
			t.Errorf("toolInput(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestConvertToolsToAnthropicTools(t *testing.T) {
	got := convertToolsToAnthropicTools([]tools.Tool{diskTool()})
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	props, ok := got[0].InputSchema.Properties.(map[string]any)
	if !ok || props["path"] == nil {
		t.Errorf("properties lost: %v", got[0].InputSchema.Properties)
	}
	if len(got[0].InputSchema.Required) != 1 || got[0].InputSchema.Required[0] != "path" {
		t.Errorf("required = %v", got[0].InputSchema.Required)
	}
	if convertToolsToAnthropicTools(nil) != nil {
		t.Errorf("expected nil for no tools")
	}
}

func TestProcessAnthropicResponse(t *testing.T) {
	var resp anthropic.Message
	raw := `{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[
		{"type":"text","text":"Checking. "},
		{"type":"tool_use","id":"toolu_1","name":"disk_usage","input":{"path":"/"}}
	]}`
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	msg := processAnthropicResponse(&resp)
	if msg.Content != "Checking. " {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "toolu_1" {
		t.Fatalf("unexpected tool calls %+v", msg.ToolCalls)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(msg.ToolCalls[0].Arguments), &args); err != nil || args["path"] != "/" {
		t.Errorf("arguments = %q", msg.ToolCalls[0].Arguments)
	}
}
