// Package agentloop drives an LLM tool-use conversation against PerplBot's
// core components (spec.md §4.8). A single HTTP request streams the whole
// exchange back to the caller as server-sent events while the model calls
// tools bound to the hybrid router, state tracker, and liquidation
// simulator.
package agentloop

import (
	"context"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/perplbot/perplbot/internal/contractclient"
	"github.com/perplbot/perplbot/internal/liqsim"
	"github.com/perplbot/perplbot/internal/router"
	"github.com/perplbot/perplbot/internal/statetracker"
)

// maxRounds bounds the tool-use loop (spec.md §4.8: "bounded to 10 rounds,
// then force-terminate").
const maxRounds = 10

// toolDef is one entry in the fixed tool catalogue the model is offered
// every round.
type toolDef struct {
	name               string
	description        string
	inputSchema        anthropic.ToolInputSchemaParam
	requiresConfirmation bool
	handler            func(ctx context.Context, deps *Deps, input map[string]any) (any, error)
}

// Deps wires a Session to the rest of PerplBot. All fields except Simulator
// must be set; with a nil Simulator the liquidation tool returns only the
// closed-form estimate.
type Deps struct {
	Router    *router.Router
	Tracker   *statetracker.Tracker
	Contract  *contractclient.Client
	Simulator *liqsim.Simulator
	Perpetuals map[int64]PerpetualMeta // perpetual id -> display metadata
	AccountID int64
}

// PerpetualMeta is the static per-market metadata the tool layer needs to
// convert between scaled-integer wire values and display floats.
type PerpetualMeta struct {
	Symbol        string
	PriceDecimals uint8
	LotDecimals   uint8
	TakerFeeBps   int64
	MakerFeeBps   int64
}

// Config configures a Session's model and pacing.
type Config struct {
	Model            anthropic.Model
	SystemPrompt     string
	MaxTokens        int64
	RoundTimeout     time.Duration
}

func defaultConfig() Config {
	return Config{
		Model:        anthropic.ModelClaudeSonnet4_5,
		MaxTokens:    4096,
		RoundTimeout: 60 * time.Second,
		SystemPrompt: defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are PerplBot, a trading assistant for a perpetual-futures exchange.
Answer account, market, and liquidation questions using the tools provided
rather than guessing. Route liquidation questions to the liquidation
analysis tool and funding questions to the funding info tool. Before
calling any write tool (open position, close position, cancel order),
you must have an explicit confirmation from the user in this conversation
for that specific action; if you don't have one, ask for it instead of
calling the tool.`
