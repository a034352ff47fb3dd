package liqsim

import (
	"context"
	"fmt"
)

// snapshotStack enforces strict stack discipline over Anvil's evm_snapshot
// and evm_revert (spec.md §5: "EVM snapshot ids are taken and reverted in
// strict stack discipline"). Every push must be matched by a pop, including
// on error paths and recovered panics; callers achieve this with `defer
// stack.unwindAll(ctx)` at the simulator's public entry point.
type snapshotStack struct {
	rpc  rpcCaller
	ids  []string
}

type rpcCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

func newSnapshotStack(rpc rpcCaller) *snapshotStack {
	return &snapshotStack{rpc: rpc}
}

// push takes a new Anvil snapshot and records its id.
func (s *snapshotStack) push(ctx context.Context) (string, error) {
	var id string
	if err := s.rpc.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("liqsim: evm_snapshot: %w", err)
	}
	s.ids = append(s.ids, id)
	return id, nil
}

// pop reverts to the most recently pushed snapshot and removes it from the
// stack. It is a no-op if the stack is already empty.
func (s *snapshotStack) pop(ctx context.Context) error {
	if len(s.ids) == 0 {
		return nil
	}
	id := s.ids[len(s.ids)-1]
	s.ids = s.ids[:len(s.ids)-1]

	var ok bool
	if err := s.rpc.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return fmt.Errorf("liqsim: evm_revert(%s): %w", id, err)
	}
	return nil
}

// unwindAll reverts every outstanding snapshot, deepest first. Designed to
// run under defer so a panic mid-sweep still leaves the fork clean.
func (s *snapshotStack) unwindAll(ctx context.Context) {
	for len(s.ids) > 0 {
		_ = s.pop(ctx)
	}
}
