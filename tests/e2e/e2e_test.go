//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// The server under test must be started with
// INFRADESK_BOOTSTRAP_ADMIN_EMAIL=admin@e2e.test and
// INFRADESK_BOOTSTRAP_ADMIN_PASSWORD=e2e-password on an empty database.
var (
	serverURL = flag.String("server-url", "http://localhost:8080", "infradesk server URL")
	binDir    = flag.String("bin-dir", "../../bin", "Directory containing binaries")
)

const (
	adminEmail    = "admin@e2e.test"
	adminPassword = "e2e-password"
)

var (
	authToken string
	cliHome   string
)

// TestMain logs in over HTTP and through the CLI so both paths are ready.
func TestMain(m *testing.M) {
	flag.Parse()
	authToken = loginForTests()

	dir, err := os.MkdirTemp("", "infradesk-e2e-home-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create CLI home: %v\n", err)
		os.Exit(1)
	}
	cliHome = dir
	if err := loginCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "CLI login failed: %v\n", err)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func loginForTests() string {
	body, _ := json.Marshal(map[string]string{"email": adminEmail, "password": adminPassword})

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(*serverURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to login for tests: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Login failed with status %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(1)
	}

	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode login response: %v\n", err)
		os.Exit(1)
	}
	return loginResp.AccessToken
}

func loginCLI() error {
	if out, err := cliCommand(nil, "", "config", "set", "server_url", *serverURL).CombinedOutput(); err != nil {
		return fmt.Errorf("config set: %v: %s", err, out)
	}
	if out, err := cliCommand(nil, adminPassword+"\n", "login", "--email", adminEmail).CombinedOutput(); err != nil {
		return fmt.Errorf("login: %v: %s", err, out)
	}
	return nil
}

// Helper functions

func cliCommand(env map[string]string, stdin string, args ...string) *exec.Cmd {
	cmd := exec.Command(filepath.Join(*binDir, "infradesk"), args...)
	cmd.Env = append(os.Environ(), "INFRADESK_HOME="+cliHome)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdin = strings.NewReader(stdin)
	return cmd
}

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	return runCLIWithEnv(t, nil, args...)
}

// runCLIWithEnv runs the CLI with additional environment variables.
func runCLIWithEnv(t *testing.T, env map[string]string, args ...string) (string, string, int) {
	t.Helper()

	cmd := cliCommand(env, "", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if exitError, ok := err.(*exec.ExitError); ok {
		exitCode = exitError.ExitCode()
	} else if err != nil {
		t.Logf("Command error: %v", err)
		exitCode = -1
	}

	return stdout.String(), stderr.String(), exitCode
}

func apiRequest(t *testing.T, method, path string, in any) ([]byte, int) {
	t.Helper()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("Failed to encode request: %v", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, *serverURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("HTTP %s failed: %v", method, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return out, resp.StatusCode
}

func mustCreate(t *testing.T, path string, in any) map[string]any {
	t.Helper()
	body, status := apiRequest(t, http.MethodPost, path, in)
	if status != http.StatusCreated {
		t.Fatalf("POST %s: expected 201, got %d: %s", path, status, body)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("POST %s: bad JSON: %v", path, err)
	}
	return out
}

// createEditorScript writes an executable editor that applies sedExpr.
func createEditorScript(t *testing.T, sedExpr string) string {
	t.Helper()

	script := fmt.Sprintf("#!/bin/sh\nsed '%s' \"$1\" > \"$1.new\" && mv \"$1.new\" \"$1\"\n", sedExpr)
	path := filepath.Join(t.TempDir(), "editor.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write editor script: %v", err)
	}
	return path
}

// seedInventory creates a cluster with one node and one VM and returns
// their ids.
func seedInventory(t *testing.T) (clusterID, nodeID, vmID string) {
	t.Helper()
	suffix := fmt.Sprint(time.Now().UnixNano())

	cluster := mustCreate(t, "/api/v1/clusters", map[string]any{
		"cluster_name": "e2e-" + suffix, "cluster_code": "E2E" + suffix, "cluster_purpose": "Testing",
	})
	clusterID = cluster["id"].(string)

	node := mustCreate(t, "/api/v1/nodes", map[string]any{
		"cluster_id": clusterID, "node_name": "node-" + suffix,
		"physical_cores": 16, "clock_speed_ghz": 2.5,
		"total_ram_gb": 256, "total_storage_gb": 2000,
	})
	nodeID = node["id"].(string)

	vm := mustCreate(t, "/api/v1/vms", map[string]any{
		"vm_name": "vm-" + suffix, "node_id": nodeID, "cpu_ghz": 5, "ram": "16 GB", "storage": "100 GB",
	})
	vmID = vm["id"].(string)
	return clusterID, nodeID, vmID
}

// Test: server health check
func TestServerHealth(t *testing.T) {
	body, status := apiRequest(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, body)
	}
	if !strings.Contains(string(body), "healthy") {
		t.Errorf("Expected healthy status, got %s", body)
	}
}

// Test: creating and deleting a VM moves the node's allocation
func TestCapacityLedger(t *testing.T) {
	_, nodeID, vmID := seedInventory(t)

	body, status := apiRequest(t, http.MethodGet, "/api/v1/nodes/"+nodeID, nil)
	if status != http.StatusOK {
		t.Fatalf("GET node: %d %s", status, body)
	}
	var node map[string]any
	json.Unmarshal(body, &node)
	if node["allocated_ram_gb"] != float64(16) || node["available_cpu_ghz"] != float64(35) {
		t.Errorf("Unexpected allocation after create: %v", node)
	}

	if _, status := apiRequest(t, http.MethodDelete, "/api/v1/vms/"+vmID, nil); status != http.StatusNoContent {
		t.Fatalf("DELETE vm: expected 204, got %d", status)
	}
	body, _ = apiRequest(t, http.MethodGet, "/api/v1/nodes/"+nodeID, nil)
	json.Unmarshal(body, &node)
	if node["allocated_ram_gb"] != float64(0) {
		t.Errorf("Expected allocation to be released, got %v", node["allocated_ram_gb"])
	}
}

// Test: a VM larger than the node is rejected
func TestCapacityRejected(t *testing.T) {
	_, nodeID, _ := seedInventory(t)

	body, status := apiRequest(t, http.MethodPost, "/api/v1/vms", map[string]any{
		"vm_name": "too-big", "node_id": nodeID, "ram_gb": 100000,
	})
	if status != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d: %s", status, body)
	}
}

func TestCLIStatus(t *testing.T) {
	stdout, stderr, exitCode := runCLI(t, "status")
	if exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", exitCode, stderr)
	}
	for _, want := range []string{"Connected", adminEmail} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestCLIVMsList(t *testing.T) {
	_, nodeID, vmID := seedInventory(t)

	stdout, stderr, exitCode := runCLI(t, "vms", "list", "--node", nodeID, "-o", "json")
	if exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", exitCode, stderr)
	}
	var vms []map[string]any
	if err := json.Unmarshal([]byte(stdout), &vms); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, stdout)
	}
	if len(vms) != 1 || vms[0]["id"] != vmID {
		t.Errorf("Expected only %s, got %v", vmID, vms)
	}
}

func TestCLIDashboard(t *testing.T) {
	seedInventory(t)

	stdout, stderr, exitCode := runCLI(t, "dashboard")
	if exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", exitCode, stderr)
	}
	for _, want := range []string{"VMs:", "RESOURCE", "Alerts:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestCLIExportAndPreview(t *testing.T) {
	seedInventory(t)
	file := filepath.Join(t.TempDir(), "vms.csv")

	stdout, stderr, exitCode := runCLI(t, "export", "vms", "-f", file)
	if exitCode != 0 {
		t.Fatalf("export: exit code %d: %s", exitCode, stderr)
	}
	if !strings.Contains(stdout, "Wrote") {
		t.Errorf("Unexpected export output: %s", stdout)
	}

	stdout, stderr, exitCode = runCLI(t, "import", "preview", "vms", file)
	if exitCode != 0 {
		t.Fatalf("preview: exit code %d: %s", exitCode, stderr)
	}
	if !strings.Contains(stdout, "Entity:  vms") {
		t.Errorf("Unexpected preview output: %s", stdout)
	}
}

func TestCLIEditVM(t *testing.T) {
	_, _, vmID := seedInventory(t)
	editor := createEditorScript(t, "$a remarks: edited-by-e2e")

	_, stderr, exitCode := runCLIWithEnv(t, map[string]string{"INFRADESK_EDITOR": editor}, "edit", "vm", vmID)
	if exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", exitCode, stderr)
	}

	body, _ := apiRequest(t, http.MethodGet, "/api/v1/vms/"+vmID, nil)
	var vm map[string]any
	json.Unmarshal(body, &vm)
	if vm["remarks"] != "edited-by-e2e" {
		t.Errorf("Expected remarks to be updated, got %v", vm["remarks"])
	}
}

func TestCLIEditCancel(t *testing.T) {
	_, _, vmID := seedInventory(t)
	editor := createEditorScript(t, "")

	stdout, _, exitCode := runCLIWithEnv(t, map[string]string{"INFRADESK_EDITOR": editor}, "edit", "vm", vmID)
	if exitCode != 0 {
		t.Fatalf("Expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Edit cancelled") {
		t.Errorf("Expected cancel message, got %s", stdout)
	}
}

func TestHelpCommands(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--help"}, "infradesk is a command-line client"},
		{[]string{"vms", "--help"}, "List, show or delete VMs"},
		{[]string{"edit", "--help"}, "Resources: vm, customer"},
		{[]string{"config", "--help"}, "preferences.items_per_page"},
		{[]string{"status", "--help"}, "Show server connection and login state"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			stdout, _, exitCode := runCLI(t, tt.args...)

			if exitCode != 0 {
				t.Errorf("Expected exit code 0, got %d", exitCode)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Errorf("Expected output to contain %q", tt.want)
			}
		})
	}
}
