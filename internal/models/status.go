package models

type ContractStatus string

const (
	ContractActive    ContractStatus = "Active"
	ContractExpired   ContractStatus = "Expired"
	ContractPending   ContractStatus = "Pending"
	ContractCancelled ContractStatus = "Cancelled"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractActive, ContractExpired, ContractPending, ContractCancelled:
		return true
	}
	return false
}

type GPAccountStatus string

const (
	GPAccountActive    GPAccountStatus = "Active"
	GPAccountInactive  GPAccountStatus = "Inactive"
	GPAccountSuspended GPAccountStatus = "Suspended"
)

func (s GPAccountStatus) Valid() bool {
	switch s {
	case GPAccountActive, GPAccountInactive, GPAccountSuspended:
		return true
	}
	return false
}

type ClusterPurpose string

const (
	PurposeProduction  ClusterPurpose = "Production"
	PurposeDevelopment ClusterPurpose = "Development"
	PurposeTesting     ClusterPurpose = "Testing"
	PurposeLab         ClusterPurpose = "Lab"
	PurposeDRSite      ClusterPurpose = "DR Site"
	PurposeStaging     ClusterPurpose = "Staging"
)

func (p ClusterPurpose) Valid() bool {
	switch p {
	case PurposeProduction, PurposeDevelopment, PurposeTesting, PurposeLab, PurposeDRSite, PurposeStaging:
		return true
	}
	return false
}

// InfraStatus is the lifecycle state of clusters and nodes.
type InfraStatus string

const (
	InfraActive      InfraStatus = "Active"
	InfraInactive    InfraStatus = "Inactive"
	InfraMaintenance InfraStatus = "Maintenance"
)

func (s InfraStatus) Valid() bool {
	switch s {
	case InfraActive, InfraInactive, InfraMaintenance:
		return true
	}
	return false
}

type VMStatus string

const (
	VMActive      VMStatus = "Active"
	VMInactive    VMStatus = "Inactive"
	VMMaintenance VMStatus = "Maintenance"
	VMTerminated  VMStatus = "Terminated"
)

func (s VMStatus) Valid() bool {
	switch s {
	case VMActive, VMInactive, VMMaintenance, VMTerminated:
		return true
	}
	return false
}

type AuditOperation string

const (
	OpCreate AuditOperation = "CREATE"
	OpUpdate AuditOperation = "UPDATE"
	OpDelete AuditOperation = "DELETE"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

type OperatorRole string

const (
	RoleAdmin    OperatorRole = "admin"
	RoleOperator OperatorRole = "operator"
	RoleViewer   OperatorRole = "viewer"
)

func (r OperatorRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// CanWrite reports whether the role may mutate inventory records.
func (r OperatorRole) CanWrite() bool {
	return r == RoleAdmin || r == RoleOperator
}
