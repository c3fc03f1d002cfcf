package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/m4xw311/retainer/agent"
	"github.com/m4xw311/retainer/session"
)

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent *agent.Agent
	in    io.Reader
	out   io.Writer
}

// New creates a new Terminal reading lines from in and writing the
// conversation to out.
func New(a *agent.Agent, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		agent: a,
		in:    in,
		out:   out,
	}
}

// Run starts the interactive terminal session. It returns when the user
// exits or the input ends. Turn failures are printed and the session goes on.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		if t.handle(ctx, initialPrompt) == agent.CommandExit {
			return nil
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			fmt.Fprintln(t.out)
			break
		}
		if t.handle(ctx, scanner.Text()) == agent.CommandExit {
			break
		}
	}

	return scanner.Err()
}

func (t *Terminal) handle(ctx context.Context, line string) agent.Command {
	cmd, err := t.agent.Handle(ctx, line, t.callbacks())
	switch {
	case err != nil:
		fmt.Fprintf(t.out, "Error: %v\n", err)
	case cmd == agent.CommandCleared:
		fmt.Fprintln(t.out, "Conversation cleared.")
	}
	return cmd
}

// callbacks prints the answer and, depending on verbosity, the tool trace.
func (t *Terminal) callbacks() agent.ProcessCallbacks {
	return agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			fmt.Fprintf(t.out, "Assistant: %s\n", message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Fprintf(t.out, "Calling tool `%s` with args: %s\n", toolCall.Name, toolCall.Arguments)
			case agent.ToolVerbosityInfo:
				fmt.Fprintf(t.out, "Calling tool `%s`\n", toolCall.Name)
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "Tool `%s` output: %s\n", toolCall.Name, result)
			}
		},
		OnWarning: func(warning string) {
			if t.agent.Verbosity != agent.ToolVerbosityNone {
				fmt.Fprintf(t.out, "Warning: %s\n", warning)
			}
		},
	}
}
