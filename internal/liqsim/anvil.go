package liqsim

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// forkHandle is a running Anvil fork and the client dialed against it.
type forkHandle struct {
	cmd    *exec.Cmd
	client *ethclient.Client
	rpcURL string
}

// close terminates the Anvil process and releases the client.
func (f *forkHandle) close() {
	if f.client != nil {
		f.client.Close()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// startAnvilFork launches `anvilPath --fork-url forkRPCURL --port <free
// port>` and waits for its JSON-RPC endpoint to come up, bounded by timeout
// (spec.md §4.7's configurable anvilTimeout, default 30s).
func startAnvilFork(ctx context.Context, anvilPath, forkRPCURL string, timeout time.Duration) (*forkHandle, error) {
	port, err := freeTCPPort()
	if err != nil {
		return nil, fmt.Errorf("liqsim: find free port for anvil: %w", err)
	}
	rpcURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(anvilPath,
		"--fork-url", forkRPCURL,
		"--port", fmt.Sprintf("%d", port),
		"--silent",
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("liqsim: start anvil: %w", err)
	}

	client, err := waitForAnvil(startCtx, rpcURL)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &forkHandle{cmd: cmd, client: client, rpcURL: rpcURL}, nil
}

func waitForAnvil(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("liqsim: anvil did not become ready: %w", ctx.Err())
		case <-ticker.C:
			client, err := ethclient.DialContext(ctx, rpcURL)
			if err != nil {
				continue
			}
			if _, err := client.ChainID(ctx); err != nil {
				client.Close()
				continue
			}
			return client, nil
		}
	}
}

func freeTCPPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
