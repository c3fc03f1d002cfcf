package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m4xw311/retainer/augment"
	"github.com/m4xw311/retainer/config"
	"github.com/m4xw311/retainer/errors"
	"github.com/m4xw311/retainer/llm"
	"github.com/m4xw311/retainer/observability"
	"github.com/m4xw311/retainer/session"
	"github.com/m4xw311/retainer/tools"
	"go.uber.org/zap"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// State is the position of the agent in its turn cycle.
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateAugmenting    State = "augmenting"
	StateModelCall     State = "model_call"
	StateDispatching   State = "dispatching"
	StateFinalizing    State = "finalizing"
	StateTerminated    State = "terminated"
)

// Command tells the caller what Handle did with a line.
type Command int

const (
	CommandTurn Command = iota
	CommandIgnored
	CommandCleared
	CommandExit
)

// ProcessCallbacks lets an interaction mode observe a turn.
type ProcessCallbacks struct {
	// OnAssistantMessage receives the final answer of a turn.
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	// OnWarning receives non-fatal problems such as a failed tool call.
	OnWarning func(warning string)
}

func (c ProcessCallbacks) assistantMessage(message string) {
	if c.OnAssistantMessage != nil {
		c.OnAssistantMessage(message)
	}
}

func (c ProcessCallbacks) toolCall(tc session.ToolCall) {
	if c.OnToolCall != nil {
		c.OnToolCall(tc)
	}
}

func (c ProcessCallbacks) toolResult(tc session.ToolCall, result string) {
	if c.OnToolResult != nil {
		c.OnToolResult(tc, result)
	}
}

func (c ProcessCallbacks) warning(warning string) {
	if c.OnWarning != nil {
		c.OnWarning(warning)
	}
}

type Agent struct {
	History   *session.History
	LLMClient llm.LLMClient
	Catalog   *tools.Catalog
	Augmenter *augment.Augmenter
	Verbosity ToolVerbosity

	// MaxToolRounds bounds the dispatch rounds of one turn. Zero means
	// unbounded.
	MaxToolRounds     int
	CompletionTimeout time.Duration
	ToolTimeout       time.Duration

	model  string
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates an agent with an empty history. A nil cfg uses
// config.Default().
func New(cfg *config.Config, client llm.LLMClient, catalog *tools.Catalog, augmenter *augment.Augmenter, logger *zap.Logger) (*Agent, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if client == nil {
		return nil, errors.New("an LLM client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	verbosity := ToolVerbosity(cfg.ToolVerbosity)
	switch verbosity {
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
	case "":
		verbosity = ToolVerbosityInfo
	default:
		return nil, errors.New("invalid tool verbosity %q, must be 'none', 'info' or 'all'", cfg.ToolVerbosity)
	}
	if cfg.MaxToolRounds < 0 {
		return nil, errors.New("max tool rounds must not be negative, got %d", cfg.MaxToolRounds)
	}

	return &Agent{
		History:           session.NewHistory(),
		LLMClient:         client,
		Catalog:           catalog,
		Augmenter:         augmenter,
		Verbosity:         verbosity,
		MaxToolRounds:     cfg.MaxToolRounds,
		CompletionTimeout: cfg.Timeouts.Completion,
		ToolTimeout:       cfg.Timeouts.Tool,
		model:             cfg.Model,
		logger:            logger,
		state:             StateAwaitingInput,
	}, nil
}

// State returns the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Handle interprets one line of user input. "exit" ends the session
// without touching the network, "clear" empties the history, and a blank
// line is ignored. Anything else runs a turn.
func (a *Agent) Handle(ctx context.Context, line string, callbacks ProcessCallbacks) (Command, error) {
	input := strings.TrimSpace(line)
	if a.State() == StateTerminated {
		return CommandExit, nil
	}

	switch strings.ToLower(input) {
	case "":
		return CommandIgnored, nil
	case "exit", "/exit", "/quit":
		a.setState(StateTerminated)
		a.logger.Debug("session terminated by user")
		return CommandExit, nil
	case "clear", "/clear":
		a.Clear()
		return CommandCleared, nil
	}

	_, err := a.ProcessUserInput(ctx, input, callbacks)
	return CommandTurn, err
}

// Clear forgets the whole conversation, system override included.
func (a *Agent) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History.Clear()
	if a.state != StateTerminated {
		a.state = StateAwaitingInput
	}
	a.logger.Debug("history cleared")
}

// ProcessUserInput runs one turn and returns the final answer. If the turn
// fails at the model, by deadline, or by exceeding the tool round limit,
// the history is restored to what it was before the turn.
func (a *Agent) ProcessUserInput(ctx context.Context, input string, callbacks ProcessCallbacks) (string, error) {
	if a.State() == StateTerminated {
		return "", errors.New("session has terminated")
	}

	ctx, span := observability.StartTurnSpan(ctx)
	defer span.End()

	snapshot := a.History.Snapshot()
	answer, err := a.runTurn(ctx, input, callbacks)
	if err != nil {
		a.History.Restore(snapshot)
		observability.RecordError(span, err)
		a.logger.Warn("turn failed, history restored",
			zap.String("kind", string(errors.KindOf(err))),
			zap.Int("messages", len(snapshot)),
			zap.Error(err),
		)
	}
	a.setState(StateAwaitingInput)
	return answer, err
}

func (a *Agent) runTurn(ctx context.Context, input string, callbacks ProcessCallbacks) (string, error) {
	a.setState(StateAugmenting)
	res := a.Augmenter.Augment(ctx, input, a.Catalog)
	if res.SystemOverride != "" && a.History.InstallSystem(res.SystemOverride) {
		a.logger.Debug("system instruction installed", zap.Int("length", len(res.SystemOverride)))
	}
	if len(res.Resources) > 0 {
		a.logger.Debug("resources appended to user message", zap.Strings("uris", res.Resources))
	}
	a.History.Append(session.Message{Role: session.RoleUser, Content: res.UserText})

	rounds := 0
	for {
		reply, err := a.callModel(ctx, rounds)
		if err != nil {
			return "", err
		}
		a.History.Append(*reply)

		if len(reply.ToolCalls) == 0 {
			a.setState(StateFinalizing)
			callbacks.assistantMessage(reply.Content)
			return reply.Content, nil
		}
		if reply.Content != "" {
			a.logger.Debug("interim assistant text", zap.String("content", reply.Content))
		}

		if a.MaxToolRounds > 0 && rounds >= a.MaxToolRounds {
			return "", errors.E(errors.ToolLoopExceeded,
				fmt.Errorf("model still requested tools after %d rounds", rounds))
		}
		rounds++
		a.dispatch(ctx, reply.ToolCalls, callbacks)
	}
}

// callModel sends the whole history and the tool catalog.
func (a *Agent) callModel(ctx context.Context, round int) (*session.Message, error) {
	a.setState(StateModelCall)
	messages := a.History.Messages()

	ctx, span := observability.StartModelSpan(ctx, a.model, round, len(messages))
	defer span.End()
	if a.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.CompletionTimeout)
		defer cancel()
	}

	var available []tools.Tool
	if a.Catalog != nil {
		available = a.Catalog.Tools
	}

	start := time.Now()
	reply, err := a.LLMClient.Chat(ctx, messages, available)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.E(errors.DeadlineExceeded, errors.Wrapf(err, "completion did not finish within %s", a.CompletionTimeout))
		} else {
			err = errors.E(errors.CompletionEndpoint, err)
		}
		observability.RecordError(span, err)
		return nil, err
	}
	if reply == nil {
		reply = &session.Message{}
	}
	reply.Role = session.RoleAssistant

	a.logger.Debug("model replied",
		zap.Int("round", round),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return reply, nil
}

// dispatch answers every requested call, in order, before the next model
// call.
func (a *Agent) dispatch(ctx context.Context, calls []session.ToolCall, callbacks ProcessCallbacks) {
	a.setState(StateDispatching)
	for _, call := range calls {
		callbacks.toolCall(call)
		result, err := a.executeTool(ctx, call)
		if err != nil {
			result = fmt.Sprintf("Error executing tool '%s': %v", call.Name, err)
			callbacks.warning(fmt.Sprintf("tool `%s` failed: %v", call.Name, err))
			a.logger.Warn("tool call failed",
				zap.String("tool", call.Name),
				zap.String("call_id", call.ID),
				zap.String("kind", string(errors.KindOf(err))),
				zap.Error(err),
			)
		}
		a.History.Append(session.ToolMessage(call, result))
		callbacks.toolResult(call, result)
	}
}

func (a *Agent) executeTool(ctx context.Context, call session.ToolCall) (string, error) {
	ctx, span := observability.StartToolSpan(ctx, call.Name, call.ID)
	defer span.End()

	tool, ok := a.Catalog.Tool(call.Name)
	if !ok {
		err := errors.E(errors.ToolExecutionFailed, fmt.Errorf("tool %q is not available", call.Name))
		observability.RecordError(span, err)
		return "", err
	}

	args, err := tools.ParseArguments(call.Arguments)
	if err != nil {
		err = errors.E(errors.MalformedToolArguments, err)
		observability.RecordError(span, err)
		return "", err
	}

	if a.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.ToolTimeout)
		defer cancel()
	}

	a.logger.Debug("executing tool", zap.String("tool", call.Name), zap.String("call_id", call.ID))
	out, err := tool.Execute(ctx, args)
	if err != nil {
		switch {
		case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
			err = errors.E(errors.DeadlineExceeded, errors.Wrapf(err, "tool did not finish within %s", a.ToolTimeout))
		case errors.KindOf(err) == "":
			err = errors.E(errors.ToolExecutionFailed, err)
		}
		observability.RecordError(span, err)
		return "", err
	}
	return out, nil
}
