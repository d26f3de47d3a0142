package cli

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/reporting"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewCentralClient(t *testing.T) {
	client := NewCentralClient("http://example.com/")

	if client.baseURL != "http://example.com" {
		t.Errorf("expected baseURL 'http://example.com', got %q", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("expected httpClient to be initialized")
	}
}

func TestCentralClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send an authorization header")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "admin@example.com" || body["password"] != "secret123" {
			t.Errorf("unexpected body: %v", body)
		}
		writeJSON(w, http.StatusOK, LoginResponse{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresIn:    900,
			Operator:     &models.Operator{Email: "admin@example.com", Role: models.RoleAdmin},
		})
	}))
	defer server.Close()

	client := NewCentralClient(server.URL)
	resp, err := client.Login("admin@example.com", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken != "access" || resp.RefreshToken != "refresh" {
		t.Errorf("unexpected tokens: %+v", resp)
	}
	if resp.Operator == nil || resp.Operator.Role != models.RoleAdmin {
		t.Errorf("expected admin operator, got %+v", resp.Operator)
	}
}

func TestCentralClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error", http.StatusUnauthorized, `{"error":"invalid credentials"}`, "invalid credentials"},
		{"disabled", http.StatusForbidden, `{"error":"account is disabled"}`, "account is disabled"},
		{"plain text", http.StatusInternalServerError, "internal error\n", "internal error"},
		{"empty body", http.StatusBadGateway, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewCentralClient(server.URL).Login("a@example.com", "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if apiErr.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, apiErr.Message)
			}
		})
	}
}

func TestCentralClient_SetToken_AuthHeader(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"clusters": []any{}})
	}))
	defer server.Close()

	client := NewCentralClient(server.URL)
	client.SetToken("my-jwt-token")
	if _, err := client.ListClusters(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotHeader != "Bearer my-jwt-token" {
		t.Errorf("expected 'Bearer my-jwt-token', got %q", gotHeader)
	}
}

func TestCentralClient_RefreshOnUnauthorized(t *testing.T) {
	var apiCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "refresh-1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
				return
			}
			writeJSON(w, http.StatusOK, LoginResponse{AccessToken: "access-2", RefreshToken: "refresh-2"})
		case "/api/v1/vms":
			apiCalls++
			if r.Header.Get("Authorization") != "Bearer access-2" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"vms": []models.VM{{ID: "vm-1", VMName: "web-1"}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	var saved [2]string
	client := NewCentralClient(server.URL)
	client.SetToken("access-1")
	client.SetRefreshToken("refresh-1", func(access, refresh string) {
		saved = [2]string{access, refresh}
	})

	vms, err := client.ListVMs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vms) != 1 || vms[0].VMName != "web-1" {
		t.Errorf("unexpected vms: %+v", vms)
	}
	if apiCalls != 2 {
		t.Errorf("expected the request to be retried once, got %d calls", apiCalls)
	}
	if saved != [2]string{"access-2", "refresh-2"} {
		t.Errorf("expected rotated tokens to be reported, got %v", saved)
	}
}

func TestCentralClient_RefreshFailureKeepsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
	}))
	defer server.Close()

	client := NewCentralClient(server.URL)
	client.SetToken("expired")
	client.SetRefreshToken("revoked", func(string, string) {
		t.Error("refresh callback must not run when the refresh fails")
	})

	_, err := client.ListCustomers()
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestCentralClient_ListVMsQuery(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"vms": []any{}})
	}))
	defer server.Close()

	client := NewCentralClient(server.URL)
	if _, err := client.ListVMs(url.Values{"status": {"Active"}, "node_id": {"n1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery.Get("status") != "Active" || gotQuery.Get("node_id") != "n1" {
		t.Errorf("unexpected query: %v", gotQuery)
	}
}

func TestCentralClient_CheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}))
	defer server.Close()

	if err := NewCentralClient(server.URL).CheckHealth(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCentralClient_CheckHealth_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}))
	defer server.Close()

	if err := NewCentralClient(server.URL).CheckHealth(); err == nil {
		t.Error("expected error for unhealthy server")
	}
}

func TestCentralClient_ConnectionError(t *testing.T) {
	client := NewCentralClient("http://localhost:59999")

	if _, err := client.ListClusters(); err == nil {
		t.Error("expected error for connection failure")
	}
}

func TestCentralClient_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/export/vms" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, "VM Name,Status\nweb-1,Active\n")
	}))
	defer server.Close()

	client := NewCentralClient(server.URL)
	client.SetToken("tok")
	body, err := client.Download("/api/v1/export/vms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "VM Name,Status\nweb-1,Active\n" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestCentralClient_ImportPreview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/import/customers/preview" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if header.Filename != "customers.csv" || string(content) != "Department Name\nFinance\n" {
			t.Errorf("unexpected upload %q: %q", header.Filename, content)
		}
		writeJSON(w, http.StatusOK, reporting.ImportPreview{
			Entity: "customers", Headers: []string{"Department Name"}, TotalRows: 1, ValidRows: 1,
		})
	}))
	defer server.Close()

	client := NewCentralClient(server.URL)
	client.SetToken("tok")
	preview, err := client.ImportPreview("customers", "customers.csv", []byte("Department Name\nFinance\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preview.Entity != "customers" || preview.ValidRows != 1 {
		t.Errorf("unexpected preview: %+v", preview)
	}
}
