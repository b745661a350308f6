package blackbox

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return port, func() { _ = ln.Close() }
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "inferctl")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/inferctl")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// startMock runs "inferctl serve-mock" and waits for the liveness probe.
func startMock(t *testing.T, bin string, extra ...string) string {
	t.Helper()
	port, release := findFreePort(t)
	release()
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := append([]string{"serve-mock", "--addr", fmt.Sprintf("127.0.0.1:%d", port)}, extra...)
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/v2/health/live")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become live in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return base
}

// runCLI executes the binary and returns its exit code and output.
func runCLI(t *testing.T, bin string, env []string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	var ee *exec.ExitError
	switch {
	case err == nil:
		return 0, stdout.String(), stderr.String()
	case errors.As(err, &ee):
		return ee.ExitCode(), stdout.String(), stderr.String()
	default:
		t.Fatalf("run %v: %v", args, err)
		return -1, "", ""
	}
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	base := startMock(t, bin)

	for _, s := range []string{"scikit-learn", "diabetes"} {
		code, out, errs := runCLI(t, bin, nil, "-u", base, "--wait-ready", "5s", "run", s)
		if code != 0 {
			t.Fatalf("run %s: exit=%d stderr=%s", s, code, errs)
		}
		if !strings.Contains(out, "PASS: "+s) {
			t.Fatalf("run %s: stdout=%s", s, out)
		}
	}

	code, out, errs := runCLI(t, bin, []string{"INFERCTL_URL=" + base}, "stats", "--model", "scikit_learn_model")
	if code != 0 || !strings.Contains(out, "statistics scikit_learn_model version 1") {
		t.Fatalf("stats: exit=%d out=%s err=%s", code, out, errs)
	}

	code, out, _ = runCLI(t, bin, nil, "-u", base, "health", "--model", "diabetes_example")
	if code != 0 || !strings.Contains(out, "ready=true") {
		t.Fatalf("health: exit=%d out=%s", code, out)
	}
}

func TestBlackbox_ExitCodes(t *testing.T) {
	bin := buildBinary(t)
	base := startMock(t, bin)

	code, _, errs := runCLI(t, bin, nil, "-u", base, "infer", "-m", "wrong_model_name", "-i", "X:FP64:1,4:1,2,3,4")
	if code != 1 || !strings.Contains(errs, "Request for unknown model") {
		t.Fatalf("unknown model: exit=%d stderr=%s", code, errs)
	}

	port, release := findFreePort(t)
	release()
	code, _, _ = runCLI(t, bin, nil, "-u", fmt.Sprintf("127.0.0.1:%d", port), "run", "diabetes")
	if code != 1 {
		t.Fatalf("unreachable server: exit=%d", code)
	}

	code, _, _ = runCLI(t, bin, nil, "run", "no-such-scenario")
	if code != 2 {
		t.Fatalf("usage error: exit=%d", code)
	}
}

func TestBlackbox_ModelRepository(t *testing.T) {
	bin := buildBinary(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "identity", "1"), 0o755); err != nil {
		t.Fatal(err)
	}
	md := `{"inputs":[{"name":"IN","datatype":"FP32","shape":[-1]}],"outputs":[{"name":"OUT","datatype":"FP32","shape":[-1]}]}`
	if err := os.WriteFile(filepath.Join(dir, "identity", "metadata.json"), []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}
	base := startMock(t, bin, "--model-repository", dir)

	code, out, errs := runCLI(t, bin, nil, "-u", base, "infer", "-m", "identity", "-i", "IN:FP32:3:1.5,2.5,3.5")
	if code != 0 || !strings.Contains(out, "OUT FP32 [3] [1.5,2.5,3.5]") {
		t.Fatalf("identity: exit=%d out=%s err=%s", code, out, errs)
	}
}
