// Package plugin launches and supervises a SIP003 plugin subprocess: a
// child process that exposes a local host:port and that this relay treats
// as the real backend, overriding the owning ServerConfig's address before
// the acceptor loop starts.
package plugin

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/gordafarid/shadowrelay/internal/logger"
)

// Config describes one SIP003 plugin invocation.
type Config struct {
	Path string // executable path
	Opts string // passed verbatim as SS_PLUGIN_OPTIONS
}

// Process is a running plugin subprocess and the local address it bound.
// The relay dials/listens against LocalAddr instead of the original
// ServerConfig address; Process does not touch the child's stdin/stdout.
type Process struct {
	cmd       *exec.Cmd
	LocalAddr string
}

// Start launches cfg's plugin in front of remote (the real upstream this
// plugin should ultimately reach), binding it to an ephemeral loopback
// port chosen here and exported as SS_LOCAL_PORT. The child's stdio is
// inherited so plugin logs surface on the same terminal as the relay's.
func Start(ctx context.Context, cfg Config, remote string) (*Process, error) {
	localPort, err := freeLoopbackPort()
	if err != nil {
		return nil, fmt.Errorf("plugin: reserve local port: %w", err)
	}
	localAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort))

	env, err := buildEnv(os.Environ(), remote, localPort, cfg.Opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, cfg.Path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = env
	setPlatformProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugin: start %s: %w", cfg.Path, err)
	}
	logger.Info("started plugin ", cfg.Path, " on ", localAddr, " -> ", remote)

	return &Process{cmd: cmd, LocalAddr: localAddr}, nil
}

// Wait blocks until the plugin process exits, returning its exit error if
// any. A caller typically runs Wait in its own goroutine and logs the
// result rather than treating it as fatal to the relay itself.
func (p *Process) Wait() error {
	return p.cmd.Wait()
}

// Stop signals the plugin's process group to terminate, then waits for it
// to exit. It is safe to call after the owning context has already been
// cancelled (exec.CommandContext will have sent the kill already); Stop
// additionally reaches the whole process group so a plugin that forks
// helper processes doesn't outlive the relay.
func (p *Process) Stop() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := terminateGroup(p.cmd.Process.Pid); err != nil {
		logger.Debug("plugin: terminate process group:", err)
	}
	return p.cmd.Wait()
}

// Supervisor tracks every plugin subprocess started for the lifetime of one
// relay run, so a single signal-driven shutdown can reap all of them
// instead of leaking child processes past the parent's own exit.
type Supervisor struct {
	procs []*Process
}

// Track adds p to the set reaped by StopAll.
func (s *Supervisor) Track(p *Process) {
	s.procs = append(s.procs, p)
}

// StopAll terminates every tracked plugin process. Errors are logged, not
// returned, matching the "best effort on shutdown" policy the rest of this
// relay uses for teardown.
func (s *Supervisor) StopAll() {
	for _, p := range s.procs {
		if err := p.Stop(); err != nil {
			logger.Debug("plugin: stop:", err)
		}
	}
}

// buildEnv renders the standard SIP003 environment variables on top of
// base, per the protocol's SS_LOCAL_HOST/SS_LOCAL_PORT/SS_REMOTE_HOST/
// SS_REMOTE_PORT/SS_PLUGIN_OPTIONS contract.
func buildEnv(base []string, remote string, localPort int, opts string) ([]string, error) {
	remoteHost, remotePort, err := net.SplitHostPort(remote)
	if err != nil {
		return nil, fmt.Errorf("plugin: invalid remote address %q: %w", remote, err)
	}
	return append(append([]string{}, base...),
		"SS_LOCAL_HOST=127.0.0.1",
		"SS_LOCAL_PORT="+strconv.Itoa(localPort),
		"SS_REMOTE_HOST="+remoteHost,
		"SS_REMOTE_PORT="+remotePort,
		"SS_PLUGIN_OPTIONS="+opts,
	), nil
}

func freeLoopbackPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
