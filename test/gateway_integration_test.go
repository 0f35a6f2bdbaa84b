//go:build integration

package test

import (
	"bytes"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// TestGatewayStartStop starts the gateway, exercises rate limiting over real
// HTTP, and verifies graceful shutdown.
func TestGatewayStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "floodgate.yaml")
	createTestConfig(t, configFile, `
server:
  listen_address: "127.0.0.1:18090"

limits:
  policies:
    - name: "api"
      algorithm: fixed_window
      permit_limit: 2
      window: 1m
      partition_by: global
`)

	binaryPath := buildFloodgateBinary(t)

	cmd := exec.Command(binaryPath, "run", "--config", configFile)
	cmd.Dir = tmpDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start gateway: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}()

	if !waitForHealthy("http://127.0.0.1:18090/healthz", 10*time.Second) {
		t.Fatalf("gateway failed to start\nStdout: %s\nStderr: %s", stdout.String(), stderr.String())
	}

	// Two requests fit in the window; the third is limited.
	for i := 0; i < 2; i++ {
		resp, err := http.Get("http://127.0.0.1:18090/")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	}

	resp, err := http.Get("http://127.0.0.1:18090/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
	if resp.Header.Get("X-RateLimit-Limit") != "2" {
		t.Errorf("expected X-RateLimit-Limit 2, got %q", resp.Header.Get("X-RateLimit-Limit"))
	}

	// Health stays reachable while the catch-all is limited.
	resp, err = http.Get("http://127.0.0.1:18090/healthz")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected health 200 while limited, got %d", resp.StatusCode)
	}

	// Graceful shutdown on SIGINT.
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("failed to send SIGINT: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected shutdown error: %v\nStdout: %s\nStderr: %s", err, stdout.String(), stderr.String())
		}
	case <-time.After(10 * time.Second):
		t.Error("gateway did not shut down within 10 seconds")
	}
}

// TestValidateCommand checks the validate subcommand against good and bad
// configurations.
func TestValidateCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	binaryPath := buildFloodgateBinary(t)

	goodFile := filepath.Join(tmpDir, "good.yaml")
	createTestConfig(t, goodFile, `
limits:
  policies:
    - name: "api"
      algorithm: token_bucket
      permit_limit: 10
      window: 1s
`)

	output, err := exec.Command(binaryPath, "validate", "--config", goodFile).CombinedOutput()
	if err != nil {
		t.Fatalf("validate failed on good config: %v\nOutput: %s", err, output)
	}
	if !bytes.Contains(output, []byte("valid")) {
		t.Errorf("expected 'valid' in output, got: %s", output)
	}

	badFile := filepath.Join(tmpDir, "bad.yaml")
	createTestConfig(t, badFile, `
limits:
  policies:
    - name: "api"
      algorithm: warp_drive
      permit_limit: 0
`)

	output, err = exec.Command(binaryPath, "validate", "--config", badFile).CombinedOutput()
	if err == nil {
		t.Fatalf("expected validate to fail on bad config\nOutput: %s", output)
	}
	if !bytes.Contains(output, []byte("algorithm")) {
		t.Errorf("expected algorithm error in output, got: %s", output)
	}
}

// TestSnapshotsCommand checks the snapshots subcommand against an empty
// SQLite database.
func TestSnapshotsCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	binaryPath := buildFloodgateBinary(t)

	dbPath := filepath.Join(tmpDir, "snapshots.db")
	configFile := filepath.Join(tmpDir, "floodgate.yaml")
	createTestConfig(t, configFile, `
storage:
  backend: sqlite
  path: "`+dbPath+`"
`)

	output, err := exec.Command(binaryPath, "snapshots", "--config", configFile).CombinedOutput()
	if err != nil {
		t.Fatalf("snapshots failed: %v\nOutput: %s", err, output)
	}
	if !bytes.Contains(output, []byte("No snapshots recorded")) {
		t.Errorf("expected empty-database message, got: %s", output)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected database file to be created: %v", err)
	}
}

// buildFloodgateBinary builds the floodgate binary once per test run.
func buildFloodgateBinary(t *testing.T) string {
	t.Helper()

	binaryPath, err := filepath.Abs("../bin/floodgate")
	if err != nil {
		t.Fatalf("failed to resolve binary path: %v", err)
	}
	if _, err := os.Stat(binaryPath); err == nil {
		return binaryPath
	}

	t.Log("Building floodgate binary...")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/floodgate")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build floodgate: %v\nOutput: %s", err, output)
	}

	return binaryPath
}

// waitForHealthy polls a health endpoint until it returns 200 or the timeout
// expires.
func waitForHealthy(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return true
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// createTestConfig writes a configuration file for a test.
func createTestConfig(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}
}
