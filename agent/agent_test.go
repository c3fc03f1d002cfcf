package agent_test

import (
	"context"
	stderrors "errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/m4xw311/retainer/agent"
	"github.com/m4xw311/retainer/augment"
	"github.com/m4xw311/retainer/config"
	"github.com/m4xw311/retainer/errors"
	"github.com/m4xw311/retainer/observability"
	"github.com/m4xw311/retainer/session"
	"github.com/m4xw311/retainer/tools"
)

var _ = Describe("Agent", func() {
	var (
		ctx      context.Context
		cfg      *config.Config
		provider *fakeProvider
		client   *scriptedClient
		a        *agent.Agent
	)

	build := func() {
		catalog, err := tools.Load(ctx, provider, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		augmenter := augment.New(provider, augment.NewPhraseMatcher(cfg.Augmentation), nil)
		a, err = agent.New(cfg, client, catalog, augmenter, nil)
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.Default()
		cfg.Timeouts = config.Timeouts{}
		provider = newFakeProvider()
		client = &scriptedClient{}
	})

	Describe("New", func() {
		It("rejects an unknown tool verbosity", func() {
			cfg.ToolVerbosity = "loud"
			_, err := agent.New(cfg, client, nil, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("invalid tool verbosity")))
		})

		It("requires an LLM client", func() {
			_, err := agent.New(cfg, nil, nil, nil, nil)
			Expect(err).To(HaveOccurred())
		})

		It("starts awaiting input with an empty history", func() {
			build()
			Expect(a.State()).To(Equal(agent.StateAwaitingInput))
			Expect(a.History.Len()).To(Equal(0))
			Expect(a.Verbosity).To(Equal(agent.ToolVerbosityInfo))
		})
	})

	Describe("Handle", func() {
		BeforeEach(build)

		It("terminates on exit without any network call", func() {
			cmd, err := a.Handle(ctx, "exit", agent.ProcessCallbacks{})

			Expect(err).NotTo(HaveOccurred())
			Expect(cmd).To(Equal(agent.CommandExit))
			Expect(a.State()).To(Equal(agent.StateTerminated))
			Expect(client.calls()).To(Equal(0))
			Expect(provider.invocations).To(BeEmpty())
			Expect(provider.reads).To(Equal(0))
		})

		It("accepts the slash forms of exit", func() {
			for _, line := range []string{"/exit", "  /QUIT  "} {
				build()
				cmd, _ := a.Handle(ctx, line, agent.ProcessCallbacks{})
				Expect(cmd).To(Equal(agent.CommandExit))
			}
		})

		It("stays terminated", func() {
			_, _ = a.Handle(ctx, "exit", agent.ProcessCallbacks{})
			cmd, err := a.Handle(ctx, "what is my cpu usage?", agent.ProcessCallbacks{})

			Expect(err).NotTo(HaveOccurred())
			Expect(cmd).To(Equal(agent.CommandExit))
			Expect(client.calls()).To(Equal(0))

			_, err = a.ProcessUserInput(ctx, "hello", agent.ProcessCallbacks{})
			Expect(err).To(HaveOccurred())
		})

		It("ignores blank lines", func() {
			cmd, err := a.Handle(ctx, "   ", agent.ProcessCallbacks{})

			Expect(err).NotTo(HaveOccurred())
			Expect(cmd).To(Equal(agent.CommandIgnored))
			Expect(client.calls()).To(Equal(0))
		})

		It("runs a turn for any other line", func() {
			client.script = []reply{answer("Hi!")}
			var got string
			cmd, err := a.Handle(ctx, "hello there", agent.ProcessCallbacks{
				OnAssistantMessage: func(message string) { got = message },
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(cmd).To(Equal(agent.CommandTurn))
			Expect(got).To(Equal("Hi!"))
			Expect(a.State()).To(Equal(agent.StateAwaitingInput))
		})
	})

	Describe("clear", func() {
		BeforeEach(build)

		It("resets the history and drops the system override", func() {
			client.script = []reply{answer("Hello friend"), answer("Hi")}

			_, err := a.Handle(ctx, "let's have a friendly chat", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())
			Expect(a.History.Messages()[0].Role).To(Equal(session.RoleSystem))

			cmd, err := a.Handle(ctx, "clear", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())
			Expect(cmd).To(Equal(agent.CommandCleared))
			Expect(a.History.Len()).To(Equal(0))

			_, err = a.Handle(ctx, "hello there", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())
			first := a.History.Messages()[0]
			Expect(first.Role).To(Equal(session.RoleUser))
			Expect(client.seen[1]).To(HaveLen(1))
		})
	})

	Describe("ProcessUserInput", func() {
		BeforeEach(build)

		It("passes unmatched input through unchanged", func() {
			client.script = []reply{answer("Hi!")}
			_, err := a.ProcessUserInput(ctx, "hello there", agent.ProcessCallbacks{})

			Expect(err).NotTo(HaveOccurred())
			Expect(client.seen[0]).To(Equal([]session.Message{{Role: session.RoleUser, Content: "hello there"}}))
			Expect(provider.reads).To(Equal(0))
		})

		It("offers the full tool catalog on every model call", func() {
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "disk_usage", Arguments: "{}"}),
				answer("done"),
			}
			_, err := a.ProcessUserInput(ctx, "how full is my disk?", agent.ProcessCallbacks{})

			Expect(err).NotTo(HaveOccurred())
			Expect(client.offered).To(HaveLen(2))
			for _, offered := range client.offered {
				Expect(offered).To(HaveLen(3))
			}
		})

		It("augments, dispatches and resubmits", func() {
			client.script = []reply{
				func(_ context.Context, messages []session.Message) (*session.Message, error) {
					Expect(messages[len(messages)-1].Content).To(ContainSubstring("42"))
					return &session.Message{ToolCalls: []session.ToolCall{
						{ID: "call_1", Name: "disk_usage", Arguments: "{}"},
					}}, nil
				},
				func(_ context.Context, messages []session.Message) (*session.Message, error) {
					last := messages[len(messages)-1]
					Expect(last.Role).To(Equal(session.RoleTool))
					Expect(last.ToolCallID).To(Equal("call_1"))
					Expect(last.Content).To(Equal("61.2"))
					return &session.Message{Content: "CPU is at 42% and the disk is 61.2% full."}, nil
				},
			}

			got, err := a.ProcessUserInput(ctx, "what is my cpu usage?", agent.ProcessCallbacks{})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(ContainSubstring("42"))
			Expect(got).To(ContainSubstring("61.2"))
			Expect(provider.invocations).To(HaveLen(1))
			Expect(provider.invocations[0].name).To(Equal("disk_usage"))

			roles := []session.Role{}
			for _, m := range a.History.Messages() {
				roles = append(roles, m.Role)
			}
			Expect(roles).To(Equal([]session.Role{
				session.RoleUser, session.RoleAssistant, session.RoleTool, session.RoleAssistant,
			}))
			Expect(a.History.Messages()[0].Content).To(HavePrefix("what is my cpu usage?" + augment.ResourceLabel))
		})

		It("answers every tool call, in order, before the next model call", func() {
			client.script = []reply{
				requestTools(
					session.ToolCall{ID: "a", Name: "total_usage_ram_in_gb", Arguments: "{}"},
					session.ToolCall{ID: "b", Name: "disk_usage", Arguments: `{"path":"/"}`},
				),
				answer("RAM 7.42 GB, disk 61.2%"),
			}
			_, err := a.ProcessUserInput(ctx, "how are my ram and disk?", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())

			second := client.seen[1]
			Expect(second).To(HaveLen(4))
			Expect(second[2].ToolCallID).To(Equal("a"))
			Expect(second[2].Content).To(Equal("7.42"))
			Expect(second[3].ToolCallID).To(Equal("b"))
			Expect(second[3].ToolName).To(Equal("disk_usage"))
			Expect(provider.invocations[1].args).To(HaveKeyWithValue("path", "/"))
		})

		It("keeps earlier turns in order", func() {
			client.script = []reply{answer("one"), answer("two")}
			_, _ = a.ProcessUserInput(ctx, "first", agent.ProcessCallbacks{})
			before := a.History.Messages()
			_, _ = a.ProcessUserInput(ctx, "second", agent.ProcessCallbacks{})

			after := a.History.Messages()
			Expect(after[:len(before)]).To(Equal(before))
			Expect(after[len(before)].Content).To(Equal("second"))
		})

		It("installs the same system instruction only once", func() {
			client.script = []reply{answer("hi"), answer("hi again")}
			_, _ = a.ProcessUserInput(ctx, "friendly chat please", agent.ProcessCallbacks{})
			_, _ = a.ProcessUserInput(ctx, "friendly chat again", agent.ProcessCallbacks{})

			messages := a.History.Messages()
			systems := 0
			for i, m := range messages {
				if m.Role == session.RoleSystem {
					systems++
				}
				if i > 0 && m.Role == session.RoleSystem && messages[i-1].Role == session.RoleSystem {
					Expect(m.Content).NotTo(Equal(messages[i-1].Content))
				}
			}
			Expect(systems).To(Equal(1))
			Expect(messages[0].Content).To(Equal("You are a friendly assistant."))
		})

		It("reports the tool trace through callbacks", func() {
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "disk_usage", Arguments: "{}"}),
				answer("61.2% used"),
			}
			var events []string
			_, err := a.ProcessUserInput(ctx, "disk?", agent.ProcessCallbacks{
				OnToolCall:         func(tc session.ToolCall) { events = append(events, "call:"+tc.Name) },
				OnToolResult:       func(tc session.ToolCall, result string) { events = append(events, "result:"+result) },
				OnAssistantMessage: func(message string) { events = append(events, "answer:"+message) },
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]string{"call:disk_usage", "result:61.2", "answer:61.2% used"}))
		})
	})

	Describe("tool failures", func() {
		var warnings []string
		var callbacks agent.ProcessCallbacks

		BeforeEach(func() {
			build()
			warnings = nil
			callbacks = agent.ProcessCallbacks{OnWarning: func(w string) { warnings = append(warnings, w) }}
		})

		toolResult := func() session.Message {
			for _, m := range a.History.Messages() {
				if m.Role == session.RoleTool {
					return m
				}
			}
			Fail("no tool message in history")
			return session.Message{}
		}

		It("records malformed arguments as the tool result without calling the provider", func() {
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "disk_usage", Arguments: "{not json"}),
				answer("sorry"),
			}
			_, err := a.ProcessUserInput(ctx, "disk?", callbacks)

			Expect(err).NotTo(HaveOccurred())
			Expect(provider.invocations).To(BeEmpty())
			Expect(toolResult().Content).To(ContainSubstring(string(errors.MalformedToolArguments)))
			Expect(warnings).To(HaveLen(1))
		})

		It("records an unknown tool as the tool result", func() {
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "gpu_usage", Arguments: "{}"}),
				answer("no gpu tool"),
			}
			_, err := a.ProcessUserInput(ctx, "gpu?", callbacks)

			Expect(err).NotTo(HaveOccurred())
			Expect(toolResult().Content).To(ContainSubstring("not available"))
			Expect(toolResult().ToolCallID).To(Equal("call_1"))
		})

		It("records provider errors as the tool result", func() {
			provider.failures["disk_usage"] = stderrors.New("disk unreadable")
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "disk_usage", Arguments: "{}"}),
				answer("I could not read the disk"),
			}
			got, err := a.ProcessUserInput(ctx, "disk?", callbacks)

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("I could not read the disk"))
			Expect(toolResult().Content).To(Equal(
				"Error executing tool 'disk_usage': tool execution failed: disk unreadable"))
		})

		It("records a tool deadline as the tool result", func() {
			a.ToolTimeout = 20 * time.Millisecond
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "slow_tool", Arguments: "{}"}),
				answer("that took too long"),
			}
			_, err := a.ProcessUserInput(ctx, "run the slow tool", callbacks)

			Expect(err).NotTo(HaveOccurred())
			Expect(toolResult().Content).To(ContainSubstring(string(errors.DeadlineExceeded)))
		})
	})

	Describe("turn failures", func() {
		BeforeEach(func() {
			build()
			client.script = []reply{answer("first answer")}
			_, err := a.ProcessUserInput(ctx, "first", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("restores the history when the endpoint fails", func() {
			before := a.History.Messages()
			client.script = append(client.script, fail(stderrors.New("connection refused")))

			_, err := a.ProcessUserInput(ctx, "second", agent.ProcessCallbacks{})

			Expect(err).To(MatchError(errors.ErrCompletionEndpoint))
			Expect(a.History.Messages()).To(Equal(before))
			Expect(a.State()).To(Equal(agent.StateAwaitingInput))
		})

		It("restores the history when the endpoint fails after a tool round", func() {
			before := a.History.Messages()
			client.script = append(client.script,
				requestTools(session.ToolCall{ID: "call_1", Name: "disk_usage", Arguments: "{}"}),
				fail(stderrors.New("502 bad gateway")),
			)

			_, err := a.ProcessUserInput(ctx, "disk?", agent.ProcessCallbacks{})

			Expect(err).To(MatchError(errors.ErrCompletionEndpoint))
			Expect(provider.invocations).To(HaveLen(1))
			Expect(a.History.Messages()).To(Equal(before))
		})

		It("stops after MaxToolRounds dispatch rounds", func() {
			a.MaxToolRounds = 2
			before := a.History.Messages()
			loop := requestTools(session.ToolCall{ID: "call", Name: "disk_usage", Arguments: "{}"})
			client.script = append(client.script, loop, loop, loop, loop)

			_, err := a.ProcessUserInput(ctx, "disk?", agent.ProcessCallbacks{})

			Expect(err).To(MatchError(errors.ErrToolLoopExceeded))
			Expect(client.calls()).To(Equal(1 + 3))
			Expect(provider.invocations).To(HaveLen(2))
			Expect(a.History.Messages()).To(Equal(before))
		})

		It("surfaces a completion deadline", func() {
			a.CompletionTimeout = 20 * time.Millisecond
			client.script = append(client.script, func(ctx context.Context, _ []session.Message) (*session.Message, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})

			_, err := a.ProcessUserInput(ctx, "second", agent.ProcessCallbacks{})

			Expect(err).To(MatchError(errors.ErrDeadlineExceeded))
			Expect(a.History.Len()).To(Equal(2))
		})

		It("lets the user retry after a failure", func() {
			client.script = append(client.script, fail(stderrors.New("timeout")), answer("second answer"))
			_, err := a.ProcessUserInput(ctx, "second", agent.ProcessCallbacks{})
			Expect(err).To(HaveOccurred())

			got, err := a.ProcessUserInput(ctx, "second", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("second answer"))
			Expect(a.History.Len()).To(Equal(4))
		})
	})

	Describe("tracing", func() {
		var (
			recorder *tracetest.SpanRecorder
			previous trace.TracerProvider
		)

		BeforeEach(func() {
			recorder = tracetest.NewSpanRecorder()
			previous = otel.GetTracerProvider()
			otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
			build()
		})

		AfterEach(func() {
			otel.SetTracerProvider(previous)
		})

		It("emits one span per turn, model call and tool call", func() {
			client.script = []reply{
				requestTools(session.ToolCall{ID: "call_1", Name: "disk_usage", Arguments: "{}"}),
				answer("61.2%"),
			}
			_, err := a.ProcessUserInput(ctx, "disk?", agent.ProcessCallbacks{})
			Expect(err).NotTo(HaveOccurred())

			counts := map[string]int{}
			for _, s := range recorder.Ended() {
				counts[s.Name()]++
			}
			Expect(counts).To(Equal(map[string]int{
				observability.SpanTurn:      1,
				observability.SpanModelCall: 2,
				observability.SpanToolCall:  1,
			}))
		})
	})
})
