package store

import (
	"context"
	"time"

	"github.com/why-xn/infradesk/internal/models"
)

// Store defines the persistence interface for infradesk.
// Getters return nil, nil when the record does not exist.
type Store interface {
	// Customers
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	DeleteCustomer(ctx context.Context, id string) error

	// Contacts
	CreateContact(ctx context.Context, contact *models.Contact) error
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	ListContacts(ctx context.Context, customerID string) ([]*models.Contact, error)
	UpdateContact(ctx context.Context, contact *models.Contact) error
	DeleteContact(ctx context.Context, id string) error

	// Contracts
	CreateContract(ctx context.Context, contract *models.Contract) error
	GetContract(ctx context.Context, id string) (*models.Contract, error)
	ListContracts(ctx context.Context, customerID string) ([]*models.Contract, error)
	UpdateContract(ctx context.Context, contract *models.Contract) error
	DeleteContract(ctx context.Context, id string) error

	// GP Accounts
	CreateGPAccount(ctx context.Context, account *models.GPAccount) error
	GetGPAccount(ctx context.Context, id string) (*models.GPAccount, error)
	ListGPAccounts(ctx context.Context, customerID string) ([]*models.GPAccount, error)
	UpdateGPAccount(ctx context.Context, account *models.GPAccount) error
	DeleteGPAccount(ctx context.Context, id string) error

	// Clusters
	CreateCluster(ctx context.Context, cluster *models.Cluster) error
	GetCluster(ctx context.Context, id string) (*models.Cluster, error)
	ListClusters(ctx context.Context) ([]*models.Cluster, error)
	UpdateCluster(ctx context.Context, cluster *models.Cluster) error
	DeleteCluster(ctx context.Context, id string) error

	// Nodes
	CreateNode(ctx context.Context, node *models.Node) error
	GetNode(ctx context.Context, id string) (*models.Node, error)
	ListNodes(ctx context.Context, clusterID string) ([]*models.Node, error)
	UpdateNode(ctx context.Context, node *models.Node) error
	DeleteNode(ctx context.Context, id string) error

	// VMs
	CreateVM(ctx context.Context, vm *models.VM) error
	GetVM(ctx context.Context, id string) (*models.VM, error)
	ListVMs(ctx context.Context, filter models.VMFilter) ([]*models.VM, error)
	UpdateVM(ctx context.Context, vm *models.VM) error
	DeleteVM(ctx context.Context, id string) error

	// Audit and activity logs (append-only)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, int, error)
	CreateActivityLog(ctx context.Context, log *models.ActivityLog) error
	ListActivityLogs(ctx context.Context, limit int) ([]*models.ActivityLog, error)

	// Operators
	CreateOperator(ctx context.Context, op *models.Operator) error
	GetOperatorByID(ctx context.Context, id string) (*models.Operator, error)
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	ListOperators(ctx context.Context) ([]*models.Operator, error)
	UpdateOperator(ctx context.Context, op *models.Operator) error

	// Refresh Tokens
	CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByOperator(ctx context.Context, operatorID string) error
	CleanupExpiredRefreshTokens(ctx context.Context, now time.Time) (int, error)

	// InTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Calling InTx on a transaction-bound Store reuses the transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
