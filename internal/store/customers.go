package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/why-xn/infradesk/internal/models"
)

// --- Customers ---

func (s *SQLStore) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO customers (id, department_name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		customer.ID, customer.DepartmentName, now, now,
	)
	if err != nil {
		return wrapErr("create customer", err)
	}
	customer.CreatedAt = parseTime(now)
	customer.UpdatedAt = customer.CreatedAt
	return nil
}

func (s *SQLStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	c, err := scanCustomer(s.queryRow(ctx,
		`SELECT id, department_name, created_at, updated_at FROM customers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *SQLStore) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.query(ctx,
		`SELECT id, department_name, created_at, updated_at FROM customers ORDER BY department_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.DepartmentName, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *SQLStore) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	now := nowString()
	_, err := s.exec(ctx,
		`UPDATE customers SET department_name = ?, updated_at = ? WHERE id = ?`,
		customer.DepartmentName, now, customer.ID,
	)
	if err != nil {
		return wrapErr("update customer", err)
	}
	customer.UpdatedAt = parseTime(now)
	return nil
}

// DeleteCustomer removes the customer with its contacts, contracts and GP
// accounts. VMs are left alone and keep the dangling customer_id.
func (s *SQLStore) DeleteCustomer(ctx context.Context, id string) error {
	return s.withTx(ctx, func(ts *SQLStore) error {
		for _, table := range []string{"contacts", "contracts", "gp_accounts"} {
			if _, err := ts.exec(ctx, `DELETE FROM `+table+` WHERE customer_id = ?`, id); err != nil {
				return fmt.Errorf("delete customer %s: %w", table, err)
			}
		}
		if _, err := ts.exec(ctx, `DELETE FROM customers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		return nil
	})
}

// --- Contacts ---

const contactColumns = `id, customer_id, name, department, email, contact_number, created_at`

func (s *SQLStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO contacts (`+contactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contact.ID, contact.CustomerID, contact.Name, nilIfEmpty(contact.Department),
		contact.Email, contact.ContactNumber, now,
	)
	if err != nil {
		return wrapErr("create contact", err)
	}
	contact.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	c, err := scanContact(s.queryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// ListContacts returns all contacts, or only those of customerID when set.
func (s *SQLStore) ListContacts(ctx context.Context, customerID string) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	rows, err := s.query(ctx, query+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func scanContact(row scanner) (*models.Contact, error) {
	var c models.Contact
	var department *string
	var createdAt string
	if err := row.Scan(&c.ID, &c.CustomerID, &c.Name, &department, &c.Email, &c.ContactNumber, &createdAt); err != nil {
		return nil, err
	}
	c.Department = derefStr(department)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (s *SQLStore) UpdateContact(ctx context.Context, contact *models.Contact) error {
	_, err := s.exec(ctx,
		`UPDATE contacts SET name = ?, department = ?, email = ?, contact_number = ? WHERE id = ?`,
		contact.Name, nilIfEmpty(contact.Department), contact.Email, contact.ContactNumber, contact.ID,
	)
	if err != nil {
		return wrapErr("update contact", err)
	}
	return nil
}

func (s *SQLStore) DeleteContact(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM contacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// --- Contracts ---

const contractColumns = `id, customer_id, contract_number, contract_name, service_start_date,
	service_end_date, value, status, created_at, updated_at`

func (s *SQLStore) CreateContract(ctx context.Context, contract *models.Contract) error {
	if contract.ID == "" {
		contract.ID = uuid.New().String()
	}
	if contract.Status == "" {
		contract.Status = models.ContractActive
	}
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO contracts (`+contractColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contract.ID, contract.CustomerID, contract.ContractNumber, contract.ContractName,
		formatTime(contract.ServiceStartDate), formatTime(contract.ServiceEndDate),
		contract.Value, string(contract.Status), now, now,
	)
	if err != nil {
		return wrapErr("create contract", err)
	}
	contract.CreatedAt = parseTime(now)
	contract.UpdatedAt = contract.CreatedAt
	return nil
}

func (s *SQLStore) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	c, err := scanContract(s.queryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// ListContracts returns all contracts, or only those of customerID when set.
func (s *SQLStore) ListContracts(ctx context.Context, customerID string) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	rows, err := s.query(ctx, query+` ORDER BY service_end_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract row: %w", err)
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanContract(row scanner) (*models.Contract, error) {
	var c models.Contract
	var start, end, status, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.CustomerID, &c.ContractNumber, &c.ContractName,
		&start, &end, &c.Value, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.ServiceStartDate = parseTime(start)
	c.ServiceEndDate = parseTime(end)
	c.Status = models.ContractStatus(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *SQLStore) UpdateContract(ctx context.Context, contract *models.Contract) error {
	now := nowString()
	_, err := s.exec(ctx,
		`UPDATE contracts SET contract_number = ?, contract_name = ?, service_start_date = ?,
		 service_end_date = ?, value = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		contract.ContractNumber, contract.ContractName,
		formatTime(contract.ServiceStartDate), formatTime(contract.ServiceEndDate),
		contract.Value, string(contract.Status), now, contract.ID,
	)
	if err != nil {
		return wrapErr("update contract", err)
	}
	contract.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) DeleteContract(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM contracts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	return nil
}

// --- GP Accounts ---

const gpAccountColumns = `id, customer_id, gp_ip, gp_username, gp_password, account_created_date,
	last_password_changed_date, password_changer, account_creator, next_password_due_date,
	status, created_at, updated_at`

func (s *SQLStore) CreateGPAccount(ctx context.Context, account *models.GPAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = models.GPAccountActive
	}
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO gp_accounts (`+gpAccountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.CustomerID, account.GPIP, account.GPUsername, nilIfEmpty(account.GPPassword),
		formatTime(account.AccountCreatedDate), formatTime(account.LastPasswordChangedDate),
		account.PasswordChanger, account.AccountCreator, formatTime(account.NextPasswordDueDate),
		string(account.Status), now, now,
	)
	if err != nil {
		return wrapErr("create gp account", err)
	}
	account.CreatedAt = parseTime(now)
	account.UpdatedAt = account.CreatedAt
	return nil
}

func (s *SQLStore) GetGPAccount(ctx context.Context, id string) (*models.GPAccount, error) {
	a, err := scanGPAccount(s.queryRow(ctx, `SELECT `+gpAccountColumns+` FROM gp_accounts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gp account: %w", err)
	}
	return a, nil
}

// ListGPAccounts returns all GP accounts, or only those of customerID when set.
func (s *SQLStore) ListGPAccounts(ctx context.Context, customerID string) ([]*models.GPAccount, error) {
	query := `SELECT ` + gpAccountColumns + ` FROM gp_accounts`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	rows, err := s.query(ctx, query+` ORDER BY gp_username, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list gp accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.GPAccount
	for rows.Next() {
		a, err := scanGPAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gp account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanGPAccount(row scanner) (*models.GPAccount, error) {
	var a models.GPAccount
	var password *string
	var created, changed, due, status, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.CustomerID, &a.GPIP, &a.GPUsername, &password, &created,
		&changed, &a.PasswordChanger, &a.AccountCreator, &due, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.GPPassword = derefStr(password)
	a.AccountCreatedDate = parseTime(created)
	a.LastPasswordChangedDate = parseTime(changed)
	a.NextPasswordDueDate = parseTime(due)
	a.Status = models.GPAccountStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func (s *SQLStore) UpdateGPAccount(ctx context.Context, account *models.GPAccount) error {
	now := nowString()
	_, err := s.exec(ctx,
		`UPDATE gp_accounts SET gp_ip = ?, gp_username = ?, gp_password = ?, account_created_date = ?,
		 last_password_changed_date = ?, password_changer = ?, account_creator = ?,
		 next_password_due_date = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		account.GPIP, account.GPUsername, nilIfEmpty(account.GPPassword),
		formatTime(account.AccountCreatedDate), formatTime(account.LastPasswordChangedDate),
		account.PasswordChanger, account.AccountCreator, formatTime(account.NextPasswordDueDate),
		string(account.Status), now, account.ID,
	)
	if err != nil {
		return wrapErr("update gp account", err)
	}
	account.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) DeleteGPAccount(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM gp_accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete gp account: %w", err)
	}
	return nil
}
