package plugin

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestBuildEnvSetsSIP003Vars(t *testing.T) {
	env, err := buildEnv(nil, "example.com:8388", 1234, "opt=1")
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	want := map[string]string{
		"SS_LOCAL_HOST":     "127.0.0.1",
		"SS_LOCAL_PORT":     "1234",
		"SS_REMOTE_HOST":    "example.com",
		"SS_REMOTE_PORT":    "8388",
		"SS_PLUGIN_OPTIONS": "opt=1",
	}
	for k, v := range want {
		if !contains(env, k+"="+v) {
			t.Fatalf("env %v missing %s=%s", env, k, v)
		}
	}
}

func TestBuildEnvRejectsBadRemote(t *testing.T) {
	if _, err := buildEnv(nil, "not-a-hostport", 1234, ""); err == nil {
		t.Fatal("expected error for malformed remote address")
	}
}

func TestBuildEnvPreservesBaseEnv(t *testing.T) {
	env, err := buildEnv([]string{"PATH=/bin"}, "127.0.0.1:80", 1, "")
	if err != nil {
		t.Fatalf("buildEnv: %v", err)
	}
	if !contains(env, "PATH=/bin") {
		t.Fatal("expected base environment to be preserved")
	}
}

func contains(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}
	return false
}

func TestStartAndStopRealProcess(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := Start(ctx, Config{Path: truePath}, "127.0.0.1:8388")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.LocalAddr == "" {
		t.Fatal("expected a non-empty LocalAddr")
	}

	done := make(chan error, 1)
	go func() { done <- p.Stop() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}

func TestSupervisorStopAllIsSafeWithNoProcesses(t *testing.T) {
	var s Supervisor
	s.StopAll() // must not panic with nothing tracked
}

func TestProcessStopWithoutStartIsSafe(t *testing.T) {
	p := &Process{}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop on unstarted process: %v", err)
	}
}

func TestFreeLoopbackPortReturnsUsablePort(t *testing.T) {
	port, err := freeLoopbackPort()
	if err != nil {
		t.Fatalf("freeLoopbackPort: %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Fatalf("got invalid port %d", port)
	}
}
