// Package terminal implements the interactive shell for the agent.
//
// The shell prints a "You: " prompt, reads one line at a time and hands it
// to agent.Handle. Answers are printed as "Assistant: <answer>". A failed
// turn prints "Error: <err>" and the session continues with the history as
// it was before that turn.
//
// # Usage
//
//	a, err := agent.New(cfg, llmClient, catalog, augmenter, logger)
//	if err != nil {
//	    // handle error
//	}
//
//	term := terminal.New(a, os.Stdin, os.Stdout)
//	err = term.Run(ctx, initialPrompt)
//
// # Commands
//
//   - exit (or /exit, /quit): end the session
//   - clear: forget the conversation
//
// # Verbosity Levels
//
//   - None: No tool execution information is displayed
//   - Info: Tool names are displayed when called
//   - All: Tool names, arguments, and results are displayed
package terminal
