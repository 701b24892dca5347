package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// WorkerFlag is the hidden flag a worker invocation carries; its value is the
// uid of the single test the child must serve over its stdio.
const WorkerFlag = "--worker-test"

// execTransport adapts a launched child process to the Transport interface:
// reads come from the child's stdout, writes go to its stdin.
type execTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   io.ReadCloser
}

func (t *execTransport) Read(p []byte) (int, error)  { return t.out.Read(p) }
func (t *execTransport) Write(p []byte) (int, error) { return t.stdin.Write(p) }

func (t *execTransport) Wait() error {
	t.stdin.Close()
	return t.cmd.Wait()
}

func (t *execTransport) Terminate() error {
	if t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}

// NewExecLauncher launches workers by re-executing the current binary with
// the worker flag appended to extraArgs (typically the manifest and timeout
// flags, so the child rebuilds the same collection). The child's stderr is
// passed through for diagnostics.
func NewExecLauncher(extraArgs []string) LaunchFunc {
	return func(ctx context.Context, uid string) (Transport, error) {
		binary, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve current binary: %w", err)
		}

		args := append(append([]string{}, extraArgs...), WorkerFlag, uid)
		cmd := exec.CommandContext(ctx, binary, args...)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open worker stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open worker stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start worker: %w", err)
		}
		return &execTransport{cmd: cmd, stdin: stdin, out: stdout}, nil
	}
}

// pipeTransport runs Serve in-process over an io.Pipe pair; used by tests so
// the controller's replay path can be exercised without spawning processes.
type pipeTransport struct {
	io.Reader
	io.Writer
	done chan error
}

func (t *pipeTransport) Wait() error      { return <-t.done }
func (t *pipeTransport) Terminate() error { return nil }

// NewPipeLauncher returns a launcher whose "worker" is the serve function run
// on a goroutine, wired up with in-memory pipes.
func NewPipeLauncher(serve func(ctx context.Context, transport io.ReadWriter, uid string) error) LaunchFunc {
	return func(ctx context.Context, uid string) (Transport, error) {
		toWorkerR, toWorkerW := io.Pipe()
		fromWorkerR, fromWorkerW := io.Pipe()

		workerSide := struct {
			io.Reader
			io.Writer
		}{toWorkerR, fromWorkerW}

		done := make(chan error, 1)
		go func() {
			err := serve(ctx, workerSide, uid)
			fromWorkerW.Close()
			done <- err
		}()

		return &pipeTransport{Reader: fromWorkerR, Writer: toWorkerW, done: done}, nil
	}
}
