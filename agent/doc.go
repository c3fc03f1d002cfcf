// Package agent runs the conversation loop between a user, a chat
// completion model and the tools of an MCP server.
//
// # Turns
//
// Each user turn moves through a small state machine:
//
//	AwaitingInput -> Augmenting -> ModelCall -> Dispatching -> ModelCall ... -> Finalizing -> AwaitingInput
//
// During Augmenting the input is enriched with matching resource content and
// possibly a system instruction (see package augment). The model is then
// called with the whole history and the full tool catalog. When the reply
// requests tools, every call is answered with one tool message, in the
// order requested, and the model is called again. A reply without tool
// calls is the answer.
//
// A failed tool call does not end the turn: the failure text becomes the
// tool result and the model decides what to do with it. A failed model
// call, an expired deadline, or more than MaxToolRounds dispatch rounds
// fail the turn and restore the history to how it was before the turn.
//
// # Usage
//
//	a, err := agent.New(cfg, llmClient, catalog, augmenter, logger)
//	if err != nil {
//	    // handle error
//	}
//
//	callbacks := agent.ProcessCallbacks{
//	    OnAssistantMessage: func(message string) {
//	        // Handle the final answer
//	    },
//	    OnToolCall: func(toolCall session.ToolCall) {
//	        // Handle tool execution requests
//	    },
//	    OnToolResult: func(toolCall session.ToolCall, result string) {
//	        // Handle tool execution results
//	    },
//	    OnWarning: func(warning string) {
//	        // Handle non-fatal warnings
//	    },
//	}
//
//	cmd, err := a.Handle(ctx, "what is my cpu usage", callbacks)
//
// Handle also understands "exit" and "clear". Callers that only want turns
// can use ProcessUserInput directly.
//
// # Tool Verbosity
//
// Tool execution verbosity can be configured at three levels:
//
//   - ToolVerbosityNone: No tool execution details are shown
//   - ToolVerbosityInfo: Basic tool execution information is shown
//   - ToolVerbosityAll: Detailed tool execution information including arguments and results
//
// # Subpackages
//
// agent/terminal: the interactive line-oriented shell.
package agent
