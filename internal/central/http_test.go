package central

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/why-xn/infradesk/internal/auth"
	"github.com/why-xn/infradesk/internal/capacity"
	"github.com/why-xn/infradesk/internal/inventory"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/monitoring"
	"github.com/why-xn/infradesk/internal/reporting"
	"github.com/why-xn/infradesk/internal/store"
)

const testSecret = "test-secret-at-least-32-chars!!!"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	srv   *HTTPServer
	store *store.SQLStore
	jm    *auth.JWTManager
}

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newTestStore(t)
	registry := monitoring.NewRegistry(monitoring.Config{})
	monitor := monitoring.NewMonitor(registry)
	jm := auth.NewJWTManager(testSecret, time.Hour)
	svc := inventory.NewService(st, capacity.NewLedger(false, monitor), nil)

	srv := NewHTTPServer(HTTPDeps{
		Service:       svc,
		JWTManager:    jm,
		RefreshExpiry: 24 * time.Hour,
		Registry:      registry,
		Monitor:       monitor,
	})
	return &testEnv{srv: srv, store: st, jm: jm}
}

// seedOperator stores an operator with password "password123".
func seedOperator(t *testing.T, st store.Store, email string, role models.OperatorRole, active bool) *models.Operator {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	op := &models.Operator{Email: email, Name: string(role), Role: role, PasswordHash: hash, IsActive: active}
	if err := st.CreateOperator(context.Background(), op); err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	return op
}

func (e *testEnv) token(t *testing.T, role models.OperatorRole) string {
	t.Helper()
	op := seedOperator(t, e.store, string(role)+"@example.com", role, true)
	tok, err := e.jm.GenerateAccessToken(op)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

// do sends body as JSON unless it is already a string.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHTTPServer_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected status='healthy', got %q", resp["status"])
	}
}

func TestHTTPServer_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	paths := []string{"/api/v1/customers", "/api/v1/dashboard", "/api/v1/export/vms"}
	for _, p := range paths {
		rec := env.do(t, http.MethodGet, p, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", p, rec.Code)
		}
	}
}

func TestHTTPServer_Roles(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, models.RoleAdmin)
	operator := env.token(t, models.RoleOperator)
	viewer := env.token(t, models.RoleViewer)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"viewer can read", http.MethodGet, "/api/v1/customers", viewer, nil, http.StatusOK},
		{"viewer cannot write", http.MethodPost, "/api/v1/customers", viewer, map[string]any{"department_name": "X"}, http.StatusForbidden},
		{"operator can write", http.MethodPost, "/api/v1/customers", operator, map[string]any{"department_name": "X"}, http.StatusCreated},
		{"operator cannot manage operators", http.MethodGet, "/api/v1/operators", operator, nil, http.StatusForbidden},
		{"admin manages operators", http.MethodGet, "/api/v1/operators", admin, nil, http.StatusOK},
		{"viewer cannot preview imports", http.MethodPost, "/api/v1/import/customers/preview", viewer, "department_name\nA\n", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.token, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHTTPServer_InventoryFlow(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleOperator)

	rec := env.do(t, http.MethodPost, "/api/v1/clusters", tok, map[string]any{
		"cluster_name": "Main", "cluster_code": "DC1",
	})
	expectStatus(t, rec, http.StatusCreated)
	var cluster models.Cluster
	decode(t, rec, &cluster)

	rec = env.do(t, http.MethodPost, "/api/v1/nodes", tok, map[string]any{
		"cluster_id": cluster.ID, "node_name": "node-1", "physical_cores": 16, "clock_speed_ghz": 2,
		"total_ram_gb": 128, "total_storage_gb": 1000,
	})
	expectStatus(t, rec, http.StatusCreated)
	var node models.Node
	decode(t, rec, &node)
	if node.TotalCPUGHz != 32 {
		t.Errorf("expected 32 GHz from cores x clock, got %v", node.TotalCPUGHz)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/vms", tok, map[string]any{
		"vm_name": "web", "node_id": node.ID, "ram": "64 GB", "storage": "500 GB",
	})
	expectStatus(t, rec, http.StatusCreated)
	var vm models.VM
	decode(t, rec, &vm)
	if vm.RAMGB != 64 || vm.StorageGB != 500 || vm.ClusterID != cluster.ID {
		t.Errorf("unexpected vm: ram=%v storage=%v cluster=%q", vm.RAMGB, vm.StorageGB, vm.ClusterID)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/vms", tok, map[string]any{
		"vm_name": "big", "node_id": node.ID, "ram": "100 GB",
	})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = env.do(t, http.MethodPatch, "/api/v1/vms/"+vm.ID, tok, `{"remarks":"patched"}`)
	expectStatus(t, rec, http.StatusOK)
	var patched models.VM
	decode(t, rec, &patched)
	if patched.Remarks != "patched" || patched.RAMGB != 64 || patched.VMName != "web" {
		t.Errorf("partial update lost fields: %+v", patched)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/clusters/"+cluster.ID, tok, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &cluster)
	if cluster.AllocatedRAMGB != 64 || cluster.VMCount != 1 || cluster.NodeCount != 1 {
		t.Errorf("cluster rollup: ram=%v vms=%d nodes=%d", cluster.AllocatedRAMGB, cluster.VMCount, cluster.NodeCount)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/nodes/"+node.ID, tok, nil), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/vms/missing", tok, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/vms", tok, map[string]any{"vm_name": ""}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPatch, "/api/v1/vms/"+vm.ID, tok, `[1,2]`), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/vms?status=Bogus", tok, nil), http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/v1/vms?node_id="+node.ID, tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		VMs []models.VM `json:"vms"`
	}
	decode(t, rec, &list)
	if len(list.VMs) != 1 {
		t.Errorf("expected 1 vm on node, got %d", len(list.VMs))
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/vms/"+vm.ID, tok, nil), http.StatusNoContent)
	rec = env.do(t, http.MethodGet, "/api/v1/nodes/"+node.ID, tok, nil)
	decode(t, rec, &node)
	if node.AllocatedRAMGB != 0 || node.VMCount != 0 {
		t.Errorf("expected released node, got ram=%v vms=%d", node.AllocatedRAMGB, node.VMCount)
	}
}

func TestHTTPServer_CustomerContacts(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/customers", tok, map[string]any{
		"department_name": "Finance",
		"contacts":        []map[string]any{{"name": "Ann", "email": "ann@example.com"}},
	})
	expectStatus(t, rec, http.StatusCreated)
	var detail struct {
		ID       string           `json:"id"`
		Contacts []models.Contact `json:"contacts"`
	}
	decode(t, rec, &detail)
	if detail.ID == "" || len(detail.Contacts) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/customers/"+detail.ID+"/contacts", tok, map[string]any{
		"name": "Bob", "customer_id": "ignored",
	})
	expectStatus(t, rec, http.StatusCreated)
	var bob models.Contact
	decode(t, rec, &bob)
	if bob.CustomerID != detail.ID {
		t.Errorf("expected contact under %s, got %s", detail.ID, bob.CustomerID)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/customers/"+detail.ID+"/contacts", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var contacts struct {
		Contacts []models.Contact `json:"contacts"`
	}
	decode(t, rec, &contacts)
	if len(contacts.Contacts) != 2 {
		t.Errorf("expected 2 contacts, got %d", len(contacts.Contacts))
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/customers/missing/contacts", tok, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/customers/"+detail.ID+"/contacts", tok,
		map[string]any{"name": "Eve", "email": "not-an-email"}), http.StatusBadRequest)

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/customers/"+detail.ID, tok, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/contacts/"+bob.ID, tok, nil), http.StatusNotFound)
}

func TestHTTPServer_ContractEffectiveStatus(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/customers", tok, map[string]any{"department_name": "Ops"})
	expectStatus(t, rec, http.StatusCreated)
	var customer models.Customer
	decode(t, rec, &customer)

	ended := time.Now().UTC().AddDate(0, 0, -10)
	rec = env.do(t, http.MethodPost, "/api/v1/contracts", tok, map[string]any{
		"customer_id":        customer.ID,
		"contract_name":      "Support",
		"service_start_date": ended.AddDate(-1, 0, 0),
		"service_end_date":   ended,
		"value":              1000,
	})
	expectStatus(t, rec, http.StatusCreated)
	var contract models.Contract
	decode(t, rec, &contract)
	if contract.Status != models.ContractActive {
		t.Errorf("expected stored status Active, got %s", contract.Status)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/contracts/"+contract.ID, tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var view map[string]any
	decode(t, rec, &view)
	if view["status"] != string(models.ContractActive) || view["effective_status"] != string(models.ContractExpired) {
		t.Errorf("unexpected statuses: %v / %v", view["status"], view["effective_status"])
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/contracts", tok, map[string]any{
		"customer_id": "missing", "contract_name": "X",
	}), http.StatusBadRequest)
}

func TestHTTPServer_ExportAndTemplate(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleViewer)
	if err := env.store.CreateCustomer(context.Background(), &models.Customer{DepartmentName: "Finance, HQ"}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/export/customers", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "customers-") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "Finance; HQ") {
		t.Errorf("unexpected export body %q", rec.Body.String())
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/export/unknown", tok, nil), http.StatusNotFound)

	rec = env.do(t, http.MethodGet, "/api/v1/templates/vms", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	want, _ := reporting.Template("vms")
	if rec.Body.String() != want {
		t.Errorf("template mismatch:\n%s\nwant:\n%s", rec.Body.String(), want)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/templates/unknown", tok, nil), http.StatusNotFound)
}

func TestHTTPServer_ImportPreview(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleOperator)
	tmpl, _ := reporting.Template("contacts")

	rec := env.do(t, http.MethodPost, "/api/v1/import/contacts/preview", tok, tmpl)
	expectStatus(t, rec, http.StatusOK)
	var preview reporting.ImportPreview
	decode(t, rec, &preview)
	if preview.TotalRows != 1 || preview.ValidRows != 1 {
		t.Errorf("expected one valid row, got total=%d valid=%d", preview.TotalRows, preview.ValidRows)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "contacts.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte(tmpl))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import/contacts/preview", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	mrec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(mrec, req)
	expectStatus(t, mrec, http.StatusOK)

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/import/contacts/preview", tok, ""), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/import/unknown/preview", tok, tmpl), http.StatusNotFound)

	customers, _ := env.store.ListContacts(context.Background(), "")
	if len(customers) != 0 {
		t.Errorf("preview must not store anything, found %d contacts", len(customers))
	}
}

func TestHTTPServer_AuditAndActivityLogs(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/v1/customers", tok, map[string]any{"department_name": "Finance"})
	expectStatus(t, rec, http.StatusCreated)
	var customer models.Customer
	decode(t, rec, &customer)
	expectStatus(t, env.do(t, http.MethodPatch, "/api/v1/customers/"+customer.ID, tok, `{"department_name":"Treasury"}`), http.StatusOK)

	rec = env.do(t, http.MethodGet, "/api/v1/audit-logs?table=customers&per_page=1", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var page struct {
		AuditLogs []models.AuditLog `json:"audit_logs"`
		Total     int               `json:"total"`
		PerPage   int               `json:"per_page"`
	}
	decode(t, rec, &page)
	if page.Total != 2 || len(page.AuditLogs) != 1 || page.PerPage != 1 {
		t.Fatalf("unexpected page: total=%d rows=%d per_page=%d", page.Total, len(page.AuditLogs), page.PerPage)
	}
	if page.AuditLogs[0].ChangedBy != "admin@example.com" {
		t.Errorf("expected changed_by admin@example.com, got %q", page.AuditLogs[0].ChangedBy)
	}

	today := time.Now().UTC().Format("2006-01-02")
	rec = env.do(t, http.MethodGet, "/api/v1/audit-logs?from="+today+"&to="+today, tok, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &page)
	if page.Total != 2 {
		t.Errorf("expected 2 entries for today, got %d", page.Total)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/audit-logs?page=zero", tok, nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/audit-logs?from=yesterday", tok, nil), http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/v1/activity-logs?limit=10", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var activity struct {
		ActivityLogs []models.ActivityLog `json:"activity_logs"`
	}
	decode(t, rec, &activity)
	if len(activity.ActivityLogs) != 2 {
		t.Errorf("expected 2 activity entries, got %d", len(activity.ActivityLogs))
	}
}

func TestHTTPServer_DashboardAndNotifications(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleViewer)
	ctx := context.Background()

	cluster := &models.Cluster{ClusterName: "Main", ClusterCode: "DC1", Status: models.InfraActive}
	if err := env.store.CreateCluster(ctx, cluster); err != nil {
		t.Fatalf("seed cluster: %v", err)
	}
	node := &models.Node{ClusterID: cluster.ID, NodeName: "n1", Status: models.InfraActive}
	if err := env.store.CreateNode(ctx, node); err != nil {
		t.Fatalf("seed node: %v", err)
	}
	vm := &models.VM{
		VMName: "web", NodeID: node.ID, ClusterID: cluster.ID, Status: models.VMActive,
		NextPasswordDueDate: time.Now().UTC().AddDate(0, 0, -2),
	}
	if err := env.store.CreateVM(ctx, vm); err != nil {
		t.Fatalf("seed vm: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/dashboard", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var dash reporting.Dashboard
	decode(t, rec, &dash)
	if dash.VMs != 1 || dash.Clusters != 1 || dash.Alerts.VMPasswordOverdue != 1 {
		t.Errorf("unexpected dashboard: %+v", dash)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/notifications", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var resp struct {
		Notifications []map[string]any `json:"notifications"`
		Total         int              `json:"total"`
	}
	decode(t, rec, &resp)
	if resp.Total != 1 || len(resp.Notifications) != 1 || resp.Notifications[0]["kind"] != "vm_password_overdue" {
		t.Errorf("unexpected notifications: %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/notifications?kind=contract_expired", tok, nil)
	decode(t, rec, &resp)
	if len(resp.Notifications) != 0 || resp.Total != 1 {
		t.Errorf("kind filter should narrow the list only: %+v", resp)
	}
}

func TestHTTPServer_Analytics(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, models.RoleViewer)

	expectStatus(t, env.do(t, http.MethodGet, "/api/v1/analytics/growth?months=abc", tok, nil), http.StatusBadRequest)

	rec := env.do(t, http.MethodGet, "/api/v1/analytics/growth?months=3", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	var growth struct {
		Growth []reporting.GrowthPoint `json:"growth"`
	}
	decode(t, rec, &growth)
	if len(growth.Growth) != 3 {
		t.Errorf("expected 3 months, got %d", len(growth.Growth))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/analytics/customers", tok, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"customers":[]`) {
		t.Errorf("expected empty customers list, got %s", rec.Body.String())
	}
}

func TestHTTPServer_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `infradesk_http_requests_total{code="200",method="GET",route="/health"} 1`) {
		t.Errorf("expected request counter in metrics output")
	}
}
