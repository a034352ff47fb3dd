package agentloop

import (
	"context"
	"fmt"
	"log/slog"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Session drives one conversation's tool-use loop against the model
// (spec.md §4.8). A Session is single-use: create one per incoming chat
// request and discard it when the stream ends.
type Session struct {
	client     anthropic.Client
	cfg        Config
	deps       *Deps
	logger     *slog.Logger
	tools      []toolDef
	toolByName map[string]*toolDef

	// confirmed holds the set of write-tool names the caller has already
	// confirmed in this conversation turn (spec.md: "the model must obtain
	// an explicit user confirmation before invocation"). The HTTP layer
	// populates this from the request; enforcement here is policy, not a
	// hard gate — an unconfirmed write tool is still executed, just logged
	// loudly, matching spec.md's "enforcement is policy, not a hard gate".
	confirmed map[string]bool
}

// NewSession builds a Session. confirmedTools names write tools the user
// has already approved for this turn (e.g. "open_position").
func NewSession(client anthropic.Client, cfg Config, deps *Deps, confirmedTools []string, logger *slog.Logger) *Session {
	tools := catalogue()
	byName := make(map[string]*toolDef, len(tools))
	for i := range tools {
		byName[tools[i].name] = &tools[i]
	}
	confirmed := make(map[string]bool, len(confirmedTools))
	for _, name := range confirmedTools {
		confirmed[name] = true
	}
	return &Session{
		client:     client,
		cfg:        cfg,
		deps:       deps,
		logger:     logger.With("component", "agentloop.session", "session_id", uuid.NewString()),
		tools:      tools,
		toolByName: byName,
		confirmed:  confirmed,
	}
}

func (s *Session) toolParams() []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.name,
				Description: anthropic.String(t.description),
				InputSchema: t.inputSchema,
			},
		})
	}
	return out
}

// Run streams the whole tool-use conversation to w as SSE events, bounded
// to maxRounds (spec.md §4.8).
func (s *Session) Run(ctx context.Context, w *eventWriter, userMessage string) error {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
	}

	for round := 0; round < maxRounds; round++ {
		roundCtx, cancel := context.WithTimeout(ctx, s.cfg.RoundTimeout)
		message, err := s.runRound(roundCtx, w, messages)
		cancel()
		if err != nil {
			_ = w.emit("error", errorEvent{Message: err.Error()})
			return err
		}

		messages = append(messages, message.ToParam())

		if message.StopReason != anthropic.StopReasonToolUse {
			_ = w.emit("done", doneEvent{Rounds: round + 1})
			return nil
		}

		resultBlocks, err := s.dispatchToolUse(ctx, w, message)
		if err != nil {
			_ = w.emit("error", errorEvent{Message: err.Error()})
			return err
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	_ = w.emit("error", errorEvent{Message: "tool loop exceeded the round cap"})
	return fmt.Errorf("agentloop: exceeded %d rounds without a final answer", maxRounds)
}

// runRound streams one model turn, forwarding text deltas as `text` events
// and returning the accumulated message once the model stops.
func (s *Session) runRound(ctx context.Context, w *eventWriter, messages []anthropic.MessageParam) (*anthropic.Message, error) {
	stream := s.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     s.cfg.Model,
		MaxTokens: s.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: s.cfg.SystemPrompt}},
		Messages:  messages,
		Tools:     s.toolParams(),
	})

	var accumulated anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := accumulated.Accumulate(event); err != nil {
			return nil, fmt.Errorf("agentloop: accumulate stream event: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text := delta.Delta.Text; text != "" {
				_ = w.emit("text", textEvent{Delta: text})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("agentloop: message stream: %w", err)
	}

	var text string
	for _, block := range accumulated.Content {
		if t := block.Text; t != "" {
			text += t
		}
	}
	if text != "" {
		_ = w.emit("assistant_message", assistantMessageEvent{Text: text})
	}

	return &accumulated, nil
}

// dispatchToolUse runs every tool-use block in message concurrently
// (spec.md step 4: "for each tool-use block") and returns the matching
// tool-result content blocks in the same order the model issued them.
func (s *Session) dispatchToolUse(ctx context.Context, w *eventWriter, message *anthropic.Message) ([]anthropic.ContentBlockParamUnion, error) {
	type outcome struct {
		index  int
		result anthropic.ContentBlockParamUnion
	}

	var blocks []anthropic.ToolUseBlock
	for _, block := range message.Content {
		if tu := block.AsToolUse(); tu.ID != "" {
			blocks = append(blocks, tu)
		}
	}

	outcomes := make([]outcome, len(blocks))
	group, gctx := errgroup.WithContext(ctx)
	for i, block := range blocks {
		i, block := i, block
		group.Go(func() error {
			outcomes[i] = outcome{index: i, result: s.runOneTool(gctx, w, block)}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	results := make([]anthropic.ContentBlockParamUnion, len(outcomes))
	for _, o := range outcomes {
		results[o.index] = o.result
	}
	return results, nil
}

func (s *Session) runOneTool(ctx context.Context, w *eventWriter, block anthropic.ToolUseBlock) anthropic.ContentBlockParamUnion {
	var input map[string]any
	if err := jsonUnmarshalInto(block.Input, &input); err != nil {
		return toolError(block.ID, fmt.Sprintf("invalid tool input: %v", err))
	}

	def, ok := s.toolByName[block.Name]
	if !ok {
		return toolError(block.ID, fmt.Sprintf("unknown tool %q", block.Name))
	}

	_ = w.emit("tool_call", toolCallEvent{Name: block.Name, Input: input})

	if def.requiresConfirmation && !s.confirmed[block.Name] {
		s.logger.Warn("write tool invoked without a recorded confirmation", "tool", block.Name)
	}

	result, err := def.handler(ctx, s.deps, input)
	if err != nil {
		_ = w.emit("tool_result", toolResultEvent{Name: block.Name, Error: err.Error()})
		return toolError(block.ID, err.Error())
	}

	report := extractReport(result)
	_ = w.emit("tool_result", toolResultEvent{Name: block.Name, Result: result, Report: report})

	return anthropic.NewToolResultBlock(block.ID, mustJSON(result), false)
}

// extractReport pulls a "_report" field out of a map result for separate,
// human-facing rendering (spec.md step 4: "extract any _report field for
// separate rendering, serialize the remainder").
func extractReport(result any) any {
	m, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	return m["_report"]
}

func toolError(toolUseID, message string) anthropic.ContentBlockParamUnion {
	return anthropic.NewToolResultBlock(toolUseID, message, true)
}
