package inventory

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

// NewCustomer is a customer together with the records created alongside it.
type NewCustomer struct {
	DepartmentName string              `json:"department_name"`
	Contacts       []*models.Contact   `json:"contacts,omitempty"`
	Contracts      []*models.Contract  `json:"contracts,omitempty"`
	GPAccounts     []*models.GPAccount `json:"gp_accounts,omitempty"`
}

// CustomerDetail is a customer with everything that references it.
type CustomerDetail struct {
	*models.Customer
	Contacts   []*models.Contact   `json:"contacts"`
	Contracts  []*models.Contract  `json:"contracts"`
	GPAccounts []*models.GPAccount `json:"gp_accounts"`
	VMs        []*models.VM        `json:"vms"`
}

// --- Customers ---

// CreateCustomer stores the customer and its child records in one
// transaction. Any invalid child aborts the whole bundle.
func (s *Service) CreateCustomer(ctx context.Context, actor string, in NewCustomer) (*CustomerDetail, error) {
	name := strings.TrimSpace(in.DepartmentName)
	if name == "" {
		return nil, invalid("department_name is required")
	}
	detail := &CustomerDetail{
		Customer:   &models.Customer{DepartmentName: name},
		Contacts:   []*models.Contact{},
		Contracts:  []*models.Contract{},
		GPAccounts: []*models.GPAccount{},
		VMs:        []*models.VM{},
	}

	err := s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateCustomer(ctx, detail.Customer); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, tx, audit.Change{
			Table: "customers", EntityType: "customer", EntityID: detail.ID, EntityName: name,
			Operation: models.OpCreate, New: detail.Customer, Actor: actor,
		}); err != nil {
			return err
		}
		for _, c := range in.Contacts {
			c.CustomerID = detail.ID
			if err := s.createContact(ctx, tx, actor, c); err != nil {
				return err
			}
			detail.Contacts = append(detail.Contacts, c)
		}
		for _, c := range in.Contracts {
			c.CustomerID = detail.ID
			if err := s.createContract(ctx, tx, actor, c); err != nil {
				return err
			}
			detail.Contracts = append(detail.Contracts, c)
		}
		for _, a := range in.GPAccounts {
			a.CustomerID = detail.ID
			if err := s.createGPAccount(ctx, tx, actor, a); err != nil {
				return err
			}
			detail.GPAccounts = append(detail.GPAccounts, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	return s.store.ListCustomers(ctx)
}

// GetCustomer returns the customer with its contacts, contracts, GP accounts
// and the VMs that reference it.
func (s *Service) GetCustomer(ctx context.Context, id string) (*CustomerDetail, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("customer", id)
	}
	detail := &CustomerDetail{Customer: c}
	if detail.Contacts, err = s.store.ListContacts(ctx, id); err != nil {
		return nil, err
	}
	if detail.Contracts, err = s.store.ListContracts(ctx, id); err != nil {
		return nil, err
	}
	if detail.GPAccounts, err = s.store.ListGPAccounts(ctx, id); err != nil {
		return nil, err
	}
	if detail.VMs, err = s.store.ListVMs(ctx, models.VMFilter{CustomerID: id}); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, actor, id string, patch []byte) (*models.Customer, error) {
	var updated *models.Customer
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("customer", id)
		}
		old := *current
		next := *current
		if _, err := applyPatch(patch, &next); err != nil {
			return err
		}
		next.ID, next.CreatedAt = old.ID, old.CreatedAt
		next.DepartmentName = strings.TrimSpace(next.DepartmentName)
		if next.DepartmentName == "" {
			return invalid("department_name is required")
		}
		if err := tx.UpdateCustomer(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "customers", EntityType: "customer", EntityID: id, EntityName: next.DepartmentName,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCustomer removes the customer, its contacts, contracts and GP
// accounts. VMs keep their customer_id.
func (s *Service) DeleteCustomer(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("customer", id)
		}
		if err := tx.DeleteCustomer(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "customers", EntityType: "customer", EntityID: id, EntityName: current.DepartmentName,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}

// requireCustomer fails with ErrInvalid when the referenced customer does not
// exist.
func requireCustomer(ctx context.Context, tx store.Store, id string) error {
	if id == "" {
		return invalid("customer_id is required")
	}
	c, err := tx.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return invalid("customer %s does not exist", id)
	}
	return nil
}

// --- Contacts ---

func validateContact(c *models.Contact) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if c.Name == "" {
		return invalid("contact name is required")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return invalid("contact email %q is not valid", c.Email)
		}
	}
	return nil
}

func (s *Service) CreateContact(ctx context.Context, actor string, c *models.Contact) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		return s.createContact(ctx, tx, actor, c)
	})
}

func (s *Service) createContact(ctx context.Context, tx store.Store, actor string, c *models.Contact) error {
	if err := validateContact(c); err != nil {
		return err
	}
	if err := requireCustomer(ctx, tx, c.CustomerID); err != nil {
		return err
	}
	if err := tx.CreateContact(ctx, c); err != nil {
		return err
	}
	return s.recorder.Record(ctx, tx, audit.Change{
		Table: "contacts", EntityType: "contact", EntityID: c.ID, EntityName: c.Name,
		Operation: models.OpCreate, New: c, Actor: actor,
	})
}

func (s *Service) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	c, err := s.store.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("contact", id)
	}
	return c, nil
}

func (s *Service) ListContacts(ctx context.Context, customerID string) ([]*models.Contact, error) {
	return s.store.ListContacts(ctx, customerID)
}

func (s *Service) UpdateContact(ctx context.Context, actor, id string, patch []byte) (*models.Contact, error) {
	var updated *models.Contact
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetContact(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("contact", id)
		}
		old := *current
		next := *current
		if _, err := applyPatch(patch, &next); err != nil {
			return err
		}
		next.ID, next.CustomerID, next.CreatedAt = old.ID, old.CustomerID, old.CreatedAt
		if err := validateContact(&next); err != nil {
			return err
		}
		if err := tx.UpdateContact(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "contacts", EntityType: "contact", EntityID: id, EntityName: next.Name,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteContact(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetContact(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("contact", id)
		}
		if err := tx.DeleteContact(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "contacts", EntityType: "contact", EntityID: id, EntityName: current.Name,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}

// --- Contracts ---

func validateContract(c *models.Contract) error {
	if strings.TrimSpace(c.ContractName) == "" && strings.TrimSpace(c.ContractNumber) == "" {
		return invalid("contract_name or contract_number is required")
	}
	if c.Value < 0 {
		return invalid("contract value must not be negative")
	}
	if c.Status == "" {
		c.Status = models.ContractActive
	}
	if !c.Status.Valid() {
		return invalid("unknown contract status %q", c.Status)
	}
	return checkDateRange(c.ServiceStartDate, c.ServiceEndDate)
}

func (s *Service) CreateContract(ctx context.Context, actor string, c *models.Contract) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		return s.createContract(ctx, tx, actor, c)
	})
}

func (s *Service) createContract(ctx context.Context, tx store.Store, actor string, c *models.Contract) error {
	if err := validateContract(c); err != nil {
		return err
	}
	if err := requireCustomer(ctx, tx, c.CustomerID); err != nil {
		return err
	}
	if err := tx.CreateContract(ctx, c); err != nil {
		return err
	}
	return s.recorder.Record(ctx, tx, audit.Change{
		Table: "contracts", EntityType: "contract", EntityID: c.ID, EntityName: c.ContractName,
		Operation: models.OpCreate, New: c, Actor: actor,
	})
}

func (s *Service) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("contract", id)
	}
	return c, nil
}

func (s *Service) ListContracts(ctx context.Context, customerID string) ([]*models.Contract, error) {
	return s.store.ListContracts(ctx, customerID)
}

func (s *Service) UpdateContract(ctx context.Context, actor, id string, patch []byte) (*models.Contract, error) {
	var updated *models.Contract
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("contract", id)
		}
		old := *current
		next := *current
		if _, err := applyPatch(patch, &next); err != nil {
			return err
		}
		next.ID, next.CustomerID, next.CreatedAt = old.ID, old.CustomerID, old.CreatedAt
		if err := validateContract(&next); err != nil {
			return err
		}
		if err := tx.UpdateContract(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "contracts", EntityType: "contract", EntityID: id, EntityName: next.ContractName,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteContract(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("contract", id)
		}
		if err := tx.DeleteContract(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "contracts", EntityType: "contract", EntityID: id, EntityName: current.ContractName,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}

// --- GP Accounts ---

func validateGPAccount(a *models.GPAccount) error {
	a.GPUsername = strings.TrimSpace(a.GPUsername)
	if a.GPUsername == "" {
		return invalid("gp_username is required")
	}
	if a.Status == "" {
		a.Status = models.GPAccountActive
	}
	if !a.Status.Valid() {
		return invalid("unknown GP account status %q", a.Status)
	}
	return nil
}

// gpPasswordDue is the rotation deadline derived from the last password
// change, or from account creation when the password was never changed.
func gpPasswordDue(a *models.GPAccount) time.Time {
	if !a.LastPasswordChangedDate.IsZero() {
		return rotationDue(a.LastPasswordChangedDate)
	}
	return rotationDue(a.AccountCreatedDate)
}

func (s *Service) CreateGPAccount(ctx context.Context, actor string, a *models.GPAccount) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		return s.createGPAccount(ctx, tx, actor, a)
	})
}

func (s *Service) createGPAccount(ctx context.Context, tx store.Store, actor string, a *models.GPAccount) error {
	if err := validateGPAccount(a); err != nil {
		return err
	}
	if a.NextPasswordDueDate.IsZero() {
		a.NextPasswordDueDate = gpPasswordDue(a)
	}
	if err := requireCustomer(ctx, tx, a.CustomerID); err != nil {
		return err
	}
	if err := tx.CreateGPAccount(ctx, a); err != nil {
		return err
	}
	return s.recorder.Record(ctx, tx, audit.Change{
		Table: "gp_accounts", EntityType: "gp_account", EntityID: a.ID, EntityName: a.GPUsername,
		Operation: models.OpCreate, New: a, Actor: actor,
	})
}

func (s *Service) GetGPAccount(ctx context.Context, id string) (*models.GPAccount, error) {
	a, err := s.store.GetGPAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, notFound("gp account", id)
	}
	return a, nil
}

func (s *Service) ListGPAccounts(ctx context.Context, customerID string) ([]*models.GPAccount, error) {
	return s.store.ListGPAccounts(ctx, customerID)
}

// UpdateGPAccount re-derives the next password due date when the password
// change date moves and the client did not send a due date of its own.
func (s *Service) UpdateGPAccount(ctx context.Context, actor, id string, patch []byte) (*models.GPAccount, error) {
	var updated *models.GPAccount
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetGPAccount(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("gp account", id)
		}
		old := *current
		next := *current
		keys, err := applyPatch(patch, &next)
		if err != nil {
			return err
		}
		next.ID, next.CustomerID, next.CreatedAt = old.ID, old.CustomerID, old.CreatedAt
		if err := validateGPAccount(&next); err != nil {
			return err
		}
		if _, sent := keys["next_password_due_date"]; !sent &&
			!next.LastPasswordChangedDate.Equal(old.LastPasswordChangedDate) {
			next.NextPasswordDueDate = gpPasswordDue(&next)
		}
		if err := tx.UpdateGPAccount(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "gp_accounts", EntityType: "gp_account", EntityID: id, EntityName: next.GPUsername,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteGPAccount(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetGPAccount(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("gp account", id)
		}
		if err := tx.DeleteGPAccount(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "gp_accounts", EntityType: "gp_account", EntityID: id, EntityName: current.GPUsername,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}
