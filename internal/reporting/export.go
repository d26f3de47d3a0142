package reporting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/why-xn/infradesk/internal/models"
)

const dateLayout = "2006-01-02"

// exporter describes the CSV shape of one entity.
type exporter struct {
	header  []string
	example []string
	rows    func(snap *Snapshot) [][]string
	// fields maps each header column to the record's JSON key for import.
	// Empty entries are display-only columns.
	fields    []string
	newRecord func() any
}

var exporters = map[string]exporter{
	"vms": {
		header: []string{"VM Name", "Customer", "Cluster", "Node", "CPU", "CPU GHz", "RAM", "RAM GB",
			"Storage", "Storage GB", "Service Start", "Service End", "Password Created",
			"Next Password Due", "Public IP", "Management IP", "Private IPs", "Allowed Ports", "Status", "Remarks"},
		example: []string{"web-01", "Finance", "Main DC", "node-1", "4 vCPU", "8", "16 GB", "16",
			"200 GB", "200", "2025-01-01", "2025-12-31", "2025-01-01", "2025-04-01",
			"203.0.113.10", "10.0.0.10", "10.1.0.10 10.1.0.11", "22 443", "Active", "primary web server"},
		rows: vmRows,
		fields: []string{"vm_name", "", "", "", "cpu", "cpu_ghz", "ram", "ram_gb", "storage", "storage_gb",
			"service_start_date", "service_end_date", "password_created_date", "next_password_due_date",
			"public_ip", "management_ip", "private_ips", "allowed_ports", "status", "remarks"},
		newRecord: func() any { return &models.VM{} },
	},
	"customers": {
		header:    []string{"Department Name", "Created At"},
		example:   []string{"Finance", "2025-01-01"},
		rows:      customerRows,
		fields:    []string{"department_name", ""},
		newRecord: func() any { return &models.Customer{} },
	},
	"contacts": {
		header:    []string{"Customer", "Name", "Department", "Email", "Contact Number"},
		example:   []string{"Finance", "Jane Doe", "Accounts", "jane@example.com", "+1 555 0100"},
		rows:      contactRows,
		fields:    []string{"", "name", "department", "email", "contact_number"},
		newRecord: func() any { return &models.Contact{} },
	},
	"contracts": {
		header:    []string{"Customer", "Contract Number", "Contract Name", "Service Start", "Service End", "Value", "Status"},
		example:   []string{"Finance", "CT-2025-001", "Hosting", "2025-01-01", "2025-12-31", "12000", "Active"},
		rows:      contractRows,
		fields:    []string{"", "contract_number", "contract_name", "service_start_date", "service_end_date", "value", "status"},
		newRecord: func() any { return &models.Contract{} },
	},
	"gp_accounts": {
		header: []string{"Customer", "GP IP", "GP Username", "Account Created", "Last Password Changed",
			"Password Changer", "Account Creator", "Next Password Due", "Status"},
		example: []string{"Finance", "198.51.100.5", "fin-gp", "2025-01-01", "2025-01-01",
			"ops", "ops", "2025-04-01", "Active"},
		rows: gpAccountRows,
		fields: []string{"", "gp_ip", "gp_username", "account_created_date", "last_password_changed_date",
			"password_changer", "account_creator", "next_password_due_date", "status"},
		newRecord: func() any { return &models.GPAccount{} },
	},
	"clusters": {
		header: []string{"Cluster Name", "Cluster Code", "Purpose", "Location", "Storage Type",
			"Total CPU GHz", "Total RAM GB", "Total Storage GB", "Allocated CPU GHz", "Allocated RAM GB",
			"Allocated Storage GB", "Nodes", "VMs", "Status"},
		example: []string{"Main DC", "DC1", "Production", "Building A", "SAN",
			"400", "2048", "50000", "0", "0", "0", "0", "0", "Active"},
		rows: clusterRows,
		fields: []string{"cluster_name", "cluster_code", "cluster_purpose", "cluster_location", "storage_type",
			"total_cpu_ghz", "total_ram_gb", "total_storage_gb", "", "", "", "", "", "status"},
		newRecord: func() any { return &models.Cluster{} },
	},
	"nodes": {
		header: []string{"Node Name", "Cluster", "Hostname", "CPU Model", "Physical Cores", "Clock Speed GHz",
			"RAM Type", "Total CPU GHz", "Total RAM GB", "Total Storage GB", "Allocated CPU GHz",
			"Allocated RAM GB", "Allocated Storage GB", "VMs", "Management IP", "Status"},
		example: []string{"node-1", "Main DC", "node-1.dc1.local", "Xeon Gold 6338", "32", "2.0",
			"DDR4", "64", "512", "8000", "0", "0", "0", "0", "10.0.0.2", "Active"},
		rows: nodeRows,
		fields: []string{"node_name", "", "hostname", "cpu_model", "physical_cores", "clock_speed_ghz",
			"ram_type", "total_cpu_ghz", "total_ram_gb", "total_storage_gb", "", "", "", "", "management_ip", "status"},
		newRecord: func() any { return &models.Node{} },
	},
}

// Entities lists the exportable entity names in a stable order.
func Entities() []string {
	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Headers returns the column header row for entity.
func Headers(entity string) ([]string, error) {
	e, ok := exporters[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	return append([]string(nil), e.header...), nil
}

// Export renders entity as comma-joined text. Embedded commas become
// semicolons and line breaks become spaces; quotes are left as they are.
func Export(snap *Snapshot, entity string) (string, error) {
	e, ok := exporters[entity]
	if !ok {
		return "", fmt.Errorf("unknown entity %q", entity)
	}
	lines := []string{joinRow(e.header)}
	for _, row := range e.rows(snap) {
		lines = append(lines, joinRow(row))
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// Template returns the header row followed by one example row.
func Template(entity string) (string, error) {
	e, ok := exporters[entity]
	if !ok {
		return "", fmt.Errorf("unknown entity %q", entity)
	}
	return joinRow(e.header) + "\n" + joinRow(e.example) + "\n", nil
}

var fieldCleaner = strings.NewReplacer(",", ";", "\r\n", " ", "\n", " ", "\r", " ")

func joinRow(fields []string) string {
	cleaned := make([]string, len(fields))
	for i, f := range fields {
		cleaned[i] = fieldCleaner.Replace(f)
	}
	return strings.Join(cleaned, ",")
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type names struct {
	customers map[string]string
	clusters  map[string]string
	nodes     map[string]string
}

func lookupNames(snap *Snapshot) names {
	n := names{
		customers: make(map[string]string, len(snap.Customers)),
		clusters:  make(map[string]string, len(snap.Clusters)),
		nodes:     make(map[string]string, len(snap.Nodes)),
	}
	for _, c := range snap.Customers {
		n.customers[c.ID] = c.DepartmentName
	}
	for _, c := range snap.Clusters {
		n.clusters[c.ID] = c.ClusterName
	}
	for _, nd := range snap.Nodes {
		n.nodes[nd.ID] = nd.NodeName
	}
	return n
}

func vmRows(snap *Snapshot) [][]string {
	n := lookupNames(snap)
	rows := make([][]string, 0, len(snap.VMs))
	for _, vm := range snap.VMs {
		rows = append(rows, []string{
			vm.VMName, n.customers[vm.CustomerID], n.clusters[vm.ClusterID], n.nodes[vm.NodeID],
			vm.CPU, num(vm.CPUGHz), vm.RAM, num(vm.RAMGB), vm.Storage, num(vm.StorageGB),
			date(vm.ServiceStartDate), date(vm.ServiceEndDate), date(vm.PasswordCreatedDate),
			date(vm.NextPasswordDueDate), vm.PublicIP, vm.ManagementIP,
			strings.Join(vm.PrivateIPs, " "), strings.Join(vm.AllowedPorts, " "),
			string(vm.Status), vm.Remarks,
		})
	}
	return rows
}

func customerRows(snap *Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.Customers))
	for _, c := range snap.Customers {
		rows = append(rows, []string{c.DepartmentName, date(c.CreatedAt)})
	}
	return rows
}

func contactRows(snap *Snapshot) [][]string {
	n := lookupNames(snap)
	rows := make([][]string, 0, len(snap.Contacts))
	for _, c := range snap.Contacts {
		rows = append(rows, []string{n.customers[c.CustomerID], c.Name, c.Department, c.Email, c.ContactNumber})
	}
	return rows
}

func contractRows(snap *Snapshot) [][]string {
	n := lookupNames(snap)
	rows := make([][]string, 0, len(snap.Contracts))
	for _, c := range snap.Contracts {
		rows = append(rows, []string{
			n.customers[c.CustomerID], c.ContractNumber, c.ContractName,
			date(c.ServiceStartDate), date(c.ServiceEndDate), num(c.Value), string(c.Status),
		})
	}
	return rows
}

// gpAccountRows never includes the password.
func gpAccountRows(snap *Snapshot) [][]string {
	n := lookupNames(snap)
	rows := make([][]string, 0, len(snap.GPAccounts))
	for _, a := range snap.GPAccounts {
		rows = append(rows, []string{
			n.customers[a.CustomerID], a.GPIP, a.GPUsername, date(a.AccountCreatedDate),
			date(a.LastPasswordChangedDate), a.PasswordChanger, a.AccountCreator,
			date(a.NextPasswordDueDate), string(a.Status),
		})
	}
	return rows
}

func clusterRows(snap *Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.Clusters))
	for _, c := range snap.Clusters {
		rows = append(rows, []string{
			c.ClusterName, c.ClusterCode, string(c.ClusterPurpose), c.ClusterLocation, c.StorageType,
			num(c.TotalCPUGHz), num(c.TotalRAMGB), num(c.TotalStorageGB),
			num(c.AllocatedCPUGHz), num(c.AllocatedRAMGB), num(c.AllocatedStorageGB),
			strconv.Itoa(c.NodeCount), strconv.Itoa(c.VMCount), string(c.Status),
		})
	}
	return rows
}

func nodeRows(snap *Snapshot) [][]string {
	n := lookupNames(snap)
	rows := make([][]string, 0, len(snap.Nodes))
	for _, nd := range snap.Nodes {
		rows = append(rows, []string{
			nd.NodeName, n.clusters[nd.ClusterID], nd.Hostname, nd.CPUModel,
			strconv.Itoa(nd.PhysicalCores), num(nd.ClockSpeedGHz), nd.RAMType,
			num(nd.TotalCPUGHz), num(nd.TotalRAMGB), num(nd.TotalStorageGB),
			num(nd.AllocatedCPUGHz), num(nd.AllocatedRAMGB), num(nd.AllocatedStorageGB),
			strconv.Itoa(nd.VMCount), nd.ManagementIP, string(nd.Status),
		})
	}
	return rows
}
