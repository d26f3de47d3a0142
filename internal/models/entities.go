// Package models holds the records tracked by infradesk.
package models

import "time"

type Customer struct {
	ID             string    `json:"id"`
	DepartmentName string    `json:"department_name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Contact struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	Name          string    `json:"name"`
	Department    string    `json:"department,omitempty"`
	Email         string    `json:"email"`
	ContactNumber string    `json:"contact_number"`
	CreatedAt     time.Time `json:"created_at"`
}

type Contract struct {
	ID               string         `json:"id"`
	CustomerID       string         `json:"customer_id"`
	ContractNumber   string         `json:"contract_number"`
	ContractName     string         `json:"contract_name"`
	ServiceStartDate time.Time      `json:"service_start_date"`
	ServiceEndDate   time.Time      `json:"service_end_date"`
	Value            float64        `json:"value"`
	Status           ContractStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type GPAccount struct {
	ID                      string          `json:"id"`
	CustomerID              string          `json:"customer_id"`
	GPIP                    string          `json:"gp_ip"`
	GPUsername              string          `json:"gp_username"`
	GPPassword              string          `json:"gp_password,omitempty"`
	AccountCreatedDate      time.Time       `json:"account_created_date"`
	LastPasswordChangedDate time.Time       `json:"last_password_changed_date"`
	PasswordChanger         string          `json:"password_changer"`
	AccountCreator          string          `json:"account_creator"`
	NextPasswordDueDate     time.Time       `json:"next_password_due_date"`
	Status                  GPAccountStatus `json:"status"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Capacity is the total/allocated/available bookkeeping shared by nodes and
// clusters. Available is always Total minus Allocated.
type Capacity struct {
	TotalCPUGHz        float64 `json:"total_cpu_ghz"`
	TotalRAMGB         float64 `json:"total_ram_gb"`
	TotalStorageGB     float64 `json:"total_storage_gb"`
	AllocatedCPUGHz    float64 `json:"allocated_cpu_ghz"`
	AllocatedRAMGB     float64 `json:"allocated_ram_gb"`
	AllocatedStorageGB float64 `json:"allocated_storage_gb"`
	AvailableCPUGHz    float64 `json:"available_cpu_ghz"`
	AvailableRAMGB     float64 `json:"available_ram_gb"`
	AvailableStorageGB float64 `json:"available_storage_gb"`
}

type Cluster struct {
	ID              string         `json:"id"`
	ClusterName     string         `json:"cluster_name"`
	ClusterCode     string         `json:"cluster_code"`
	ClusterPurpose  ClusterPurpose `json:"cluster_purpose"`
	ClusterLocation string         `json:"cluster_location"`
	StorageType     string         `json:"storage_type"`
	Capacity
	NodeCount int         `json:"node_count"`
	VMCount   int         `json:"vm_count"`
	Status    InfraStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Node struct {
	ID                 string  `json:"id"`
	ClusterID          string  `json:"cluster_id"`
	NodeName           string  `json:"node_name"`
	Hostname           string  `json:"hostname"`
	CPUModel           string  `json:"cpu_model,omitempty"`
	PhysicalCores      int     `json:"physical_cores"`
	ClockSpeedGHz      float64 `json:"clock_speed_ghz"`
	RAMType            string  `json:"ram_type,omitempty"`
	StorageDescription string  `json:"storage_description,omitempty"`
	NetworkInterface   string  `json:"network_interface,omitempty"`
	ManagementIP       string  `json:"management_ip,omitempty"`
	Capacity
	VMCount   int         `json:"vm_count"`
	Status    InfraStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type VM struct {
	ID                  string            `json:"id"`
	CustomerID          string            `json:"customer_id"`
	ClusterID           string            `json:"cluster_id"`
	NodeID              string            `json:"node_id"`
	VMName              string            `json:"vm_name"`
	CPU                 string            `json:"cpu"`
	CPUGHz              float64           `json:"cpu_ghz"`
	RAM                 string            `json:"ram"`
	RAMGB               float64           `json:"ram_gb"`
	Storage             string            `json:"storage"`
	StorageGB           float64           `json:"storage_gb"`
	ServiceStartDate    time.Time         `json:"service_start_date"`
	ServiceEndDate      time.Time         `json:"service_end_date"`
	PasswordCreatedDate time.Time         `json:"password_created_date"`
	NextPasswordDueDate time.Time         `json:"next_password_due_date"`
	PublicIP            string            `json:"public_ip,omitempty"`
	ManagementIP        string            `json:"management_ip,omitempty"`
	PrivateIPs          []string          `json:"private_ips"`
	AllowedPorts        []string          `json:"allowed_ports"`
	Status              VMStatus          `json:"status"`
	Remarks             string            `json:"remarks,omitempty"`
	CustomFields        map[string]string `json:"custom_fields,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

type AuditLog struct {
	ID          string         `json:"id"`
	TableName   string         `json:"table_name"`
	Operation   AuditOperation `json:"operation"`
	RecordID    string         `json:"record_id"`
	OldValues   map[string]any `json:"old_values,omitempty"`
	NewValues   map[string]any `json:"new_values,omitempty"`
	ChangedBy   string         `json:"changed_by"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description"`
}

type ActivityLog struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	User       string    `json:"user"`
	Timestamp  time.Time `json:"timestamp"`
	Details    string    `json:"details"`
	Severity   Severity  `json:"severity"`
}

// Operator is a person allowed to sign in to the admin panel.
type Operator struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Name         string       `json:"name"`
	Role         OperatorRole `json:"role"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type RefreshToken struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operator_id"`
	TokenHash  string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type VMFilter struct {
	CustomerID string
	ClusterID  string
	NodeID     string
	Status     VMStatus
}

type AuditLogFilter struct {
	TableName string
	Operation AuditOperation
	RecordID  string
	ChangedBy string
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}
