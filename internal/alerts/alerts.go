// Package alerts derives password and contract notifications from the
// current records and a reference time. Nothing here touches storage.
package alerts

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/why-xn/infradesk/internal/models"
)

type Kind string

const (
	KindVMPasswordOverdue    Kind = "vm_password_overdue"
	KindVMPasswordDueSoon    Kind = "vm_password_due_soon"
	KindGPPasswordOverdue    Kind = "gp_password_overdue"
	KindGPPasswordDueSoon    Kind = "gp_password_due_soon"
	KindContractExpired      Kind = "contract_expired"
	KindContractExpiringSoon Kind = "contract_expiring_soon"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Bucket is the classification of a single due date.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketDueSoon
	BucketOverdue
)

// Thresholds are the day counts that drive classification.
type Thresholds struct {
	PasswordDueSoonDays  int `yaml:"password_due_soon_days"`
	PasswordUrgentDays   int `yaml:"password_urgent_days"`
	ContractExpiringDays int `yaml:"contract_expiring_days"`
	ContractUrgentDays   int `yaml:"contract_urgent_days"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PasswordDueSoonDays:  7,
		PasswordUrgentDays:   3,
		ContractExpiringDays: 30,
		ContractUrgentDays:   7,
	}
}

type Notification struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Priority   Priority  `json:"priority"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	DueDate    time.Time `json:"due_date"`
	DaysUntil  int       `json:"days_until"`
}

type Counts struct {
	VMPasswordOverdue     int `json:"vm_password_overdue"`
	VMPasswordDueSoon     int `json:"vm_password_due_soon"`
	GPPasswordOverdue     int `json:"gp_password_overdue"`
	GPPasswordDueSoon     int `json:"gp_password_due_soon"`
	ContractsExpired      int `json:"contracts_expired"`
	ContractsExpiringSoon int `json:"contracts_expiring_soon"`
}

func (c Counts) Total() int {
	return c.VMPasswordOverdue + c.VMPasswordDueSoon + c.GPPasswordOverdue +
		c.GPPasswordDueSoon + c.ContractsExpired + c.ContractsExpiringSoon
}

// DaysUntil returns the whole days from now until due, rounded up. A due
// date equal to now gives 0.
func DaysUntil(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

// Engine classifies records against a set of thresholds.
type Engine struct {
	Thresholds Thresholds
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{Thresholds: t}
}

// ClassifyPassword places a password due date in exactly one bucket.
func (e *Engine) ClassifyPassword(due, now time.Time) (Bucket, Priority, int) {
	days := DaysUntil(due, now)
	switch {
	case days <= 0:
		return BucketOverdue, PriorityHigh, days
	case days <= e.Thresholds.PasswordDueSoonDays:
		if days <= e.Thresholds.PasswordUrgentDays {
			return BucketDueSoon, PriorityHigh, days
		}
		return BucketDueSoon, PriorityMedium, days
	}
	return BucketNone, PriorityLow, days
}

// ClassifyContract only considers contracts stored as Active.
func (e *Engine) ClassifyContract(c *models.Contract, now time.Time) (Bucket, Priority, int) {
	if c.Status != models.ContractActive || c.ServiceEndDate.IsZero() {
		return BucketNone, PriorityLow, 0
	}
	days := DaysUntil(c.ServiceEndDate, now)
	switch {
	case days <= 0:
		return BucketOverdue, PriorityHigh, days
	case days <= e.Thresholds.ContractExpiringDays:
		if days <= e.Thresholds.ContractUrgentDays {
			return BucketDueSoon, PriorityHigh, days
		}
		return BucketDueSoon, PriorityMedium, days
	}
	return BucketNone, PriorityLow, days
}

// EffectiveContractStatus reports Expired for an Active contract whose end
// date has passed and the stored status otherwise.
func EffectiveContractStatus(c *models.Contract, now time.Time) models.ContractStatus {
	if c.Status == models.ContractActive && !c.ServiceEndDate.IsZero() && DaysUntil(c.ServiceEndDate, now) <= 0 {
		return models.ContractExpired
	}
	return c.Status
}

// Input is the set of records the engine looks at.
type Input struct {
	VMs        []*models.VM
	GPAccounts []*models.GPAccount
	Contracts  []*models.Contract
	Customers  []*models.Customer
}

// Evaluate returns every notification for in at now, sorted by priority and
// then by due date, most recent first.
func (e *Engine) Evaluate(in Input, now time.Time) ([]Notification, Counts) {
	var out []Notification
	var counts Counts

	customerNames := make(map[string]string, len(in.Customers))
	for _, c := range in.Customers {
		customerNames[c.ID] = c.DepartmentName
	}

	for _, vm := range in.VMs {
		if vm.NextPasswordDueDate.IsZero() {
			continue
		}
		bucket, prio, days := e.ClassifyPassword(vm.NextPasswordDueDate, now)
		switch bucket {
		case BucketOverdue:
			counts.VMPasswordOverdue++
			out = append(out, Notification{
				ID: "vm-pw-" + vm.ID, Kind: KindVMPasswordOverdue, Priority: prio,
				EntityType: "vm", EntityID: vm.ID, EntityName: vm.VMName,
				Title:   "VM password overdue",
				Message: fmt.Sprintf("Password for VM %s is overdue by %s", vm.VMName, dayWord(-days)),
				DueDate: vm.NextPasswordDueDate, DaysUntil: days,
			})
		case BucketDueSoon:
			counts.VMPasswordDueSoon++
			out = append(out, Notification{
				ID: "vm-pw-" + vm.ID, Kind: KindVMPasswordDueSoon, Priority: prio,
				EntityType: "vm", EntityID: vm.ID, EntityName: vm.VMName,
				Title:   "VM password change due",
				Message: fmt.Sprintf("Password for VM %s is due in %s", vm.VMName, dayWord(days)),
				DueDate: vm.NextPasswordDueDate, DaysUntil: days,
			})
		}
	}

	for _, gp := range in.GPAccounts {
		if gp.NextPasswordDueDate.IsZero() {
			continue
		}
		bucket, prio, days := e.ClassifyPassword(gp.NextPasswordDueDate, now)
		switch bucket {
		case BucketOverdue:
			counts.GPPasswordOverdue++
			out = append(out, Notification{
				ID: "gp-pw-" + gp.ID, Kind: KindGPPasswordOverdue, Priority: prio,
				EntityType: "gp_account", EntityID: gp.ID, EntityName: gp.GPUsername,
				Title:   "GP account password overdue",
				Message: fmt.Sprintf("Password for GP account %s is overdue by %s", gp.GPUsername, dayWord(-days)),
				DueDate: gp.NextPasswordDueDate, DaysUntil: days,
			})
		case BucketDueSoon:
			counts.GPPasswordDueSoon++
			out = append(out, Notification{
				ID: "gp-pw-" + gp.ID, Kind: KindGPPasswordDueSoon, Priority: prio,
				EntityType: "gp_account", EntityID: gp.ID, EntityName: gp.GPUsername,
				Title:   "GP account password change due",
				Message: fmt.Sprintf("Password for GP account %s is due in %s", gp.GPUsername, dayWord(days)),
				DueDate: gp.NextPasswordDueDate, DaysUntil: days,
			})
		}
	}

	for _, c := range in.Contracts {
		bucket, prio, days := e.ClassifyContract(c, now)
		owner := customerNames[c.CustomerID]
		if owner == "" {
			owner = "unknown customer"
		}
		switch bucket {
		case BucketOverdue:
			counts.ContractsExpired++
			out = append(out, Notification{
				ID: "contract-" + c.ID, Kind: KindContractExpired, Priority: prio,
				EntityType: "contract", EntityID: c.ID, EntityName: c.ContractName,
				Title:   "Contract expired",
				Message: fmt.Sprintf("Contract %s (%s) for %s has expired", c.ContractName, c.ContractNumber, owner),
				DueDate: c.ServiceEndDate, DaysUntil: days,
			})
		case BucketDueSoon:
			counts.ContractsExpiringSoon++
			out = append(out, Notification{
				ID: "contract-" + c.ID, Kind: KindContractExpiringSoon, Priority: prio,
				EntityType: "contract", EntityID: c.ID, EntityName: c.ContractName,
				Title:   "Contract expiring soon",
				Message: fmt.Sprintf("Contract %s (%s) for %s expires in %s", c.ContractName, c.ContractNumber, owner, dayWord(days)),
				DueDate: c.ServiceEndDate, DaysUntil: days,
			})
		}
	}

	Sort(out)
	return out, counts
}

// Sort orders notifications by priority, then due date descending, then id.
func Sort(ns []Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		a, b := ns[i], ns[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.After(b.DueDate)
		}
		return a.ID < b.ID
	})
}

func dayWord(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
