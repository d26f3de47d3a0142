package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/why-xn/infradesk/internal/models"
)

const capacityColumns = `total_cpu_ghz, total_ram_gb, total_storage_gb,
	allocated_cpu_ghz, allocated_ram_gb, allocated_storage_gb,
	available_cpu_ghz, available_ram_gb, available_storage_gb`

func capacityArgs(c models.Capacity) []any {
	return []any{
		c.TotalCPUGHz, c.TotalRAMGB, c.TotalStorageGB,
		c.AllocatedCPUGHz, c.AllocatedRAMGB, c.AllocatedStorageGB,
		c.AvailableCPUGHz, c.AvailableRAMGB, c.AvailableStorageGB,
	}
}

func capacityDest(c *models.Capacity) []any {
	return []any{
		&c.TotalCPUGHz, &c.TotalRAMGB, &c.TotalStorageGB,
		&c.AllocatedCPUGHz, &c.AllocatedRAMGB, &c.AllocatedStorageGB,
		&c.AvailableCPUGHz, &c.AvailableRAMGB, &c.AvailableStorageGB,
	}
}

// --- Clusters ---

const clusterColumns = `id, cluster_name, cluster_code, cluster_purpose, cluster_location, storage_type, ` +
	capacityColumns + `, node_count, vm_count, status, created_at, updated_at`

func (s *SQLStore) CreateCluster(ctx context.Context, cluster *models.Cluster) error {
	if cluster.ID == "" {
		cluster.ID = uuid.New().String()
	}
	if cluster.Status == "" {
		cluster.Status = models.InfraActive
	}
	now := nowString()
	args := []any{cluster.ID, cluster.ClusterName, cluster.ClusterCode, string(cluster.ClusterPurpose),
		cluster.ClusterLocation, cluster.StorageType}
	args = append(args, capacityArgs(cluster.Capacity)...)
	args = append(args, cluster.NodeCount, cluster.VMCount, string(cluster.Status), now, now)
	_, err := s.exec(ctx,
		`INSERT INTO clusters (`+clusterColumns+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return wrapErr("create cluster", err)
	}
	cluster.CreatedAt = parseTime(now)
	cluster.UpdatedAt = cluster.CreatedAt
	return nil
}

func (s *SQLStore) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	c, err := scanCluster(s.queryRow(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	return c, nil
}

func (s *SQLStore) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	rows, err := s.query(ctx, `SELECT `+clusterColumns+` FROM clusters ORDER BY cluster_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*models.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster row: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

func scanCluster(row scanner) (*models.Cluster, error) {
	var c models.Cluster
	var purpose, status, createdAt, updatedAt string
	dest := []any{&c.ID, &c.ClusterName, &c.ClusterCode, &purpose, &c.ClusterLocation, &c.StorageType}
	dest = append(dest, capacityDest(&c.Capacity)...)
	dest = append(dest, &c.NodeCount, &c.VMCount, &status, &createdAt, &updatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.ClusterPurpose = models.ClusterPurpose(purpose)
	c.Status = models.InfraStatus(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *SQLStore) UpdateCluster(ctx context.Context, cluster *models.Cluster) error {
	now := nowString()
	args := []any{cluster.ClusterName, cluster.ClusterCode, string(cluster.ClusterPurpose),
		cluster.ClusterLocation, cluster.StorageType}
	args = append(args, capacityArgs(cluster.Capacity)...)
	args = append(args, cluster.NodeCount, cluster.VMCount, string(cluster.Status), now, cluster.ID)
	_, err := s.exec(ctx,
		`UPDATE clusters SET cluster_name = ?, cluster_code = ?, cluster_purpose = ?, cluster_location = ?,
		 storage_type = ?, `+assignments(capacityColumns)+`, node_count = ?, vm_count = ?, status = ?, updated_at = ?
		 WHERE id = ?`, args...)
	if err != nil {
		return wrapErr("update cluster", err)
	}
	cluster.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) DeleteCluster(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM clusters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	return nil
}

// --- Nodes ---

const nodeColumns = `id, cluster_id, node_name, hostname, cpu_model, physical_cores, clock_speed_ghz,
	ram_type, storage_description, network_interface, management_ip, ` +
	capacityColumns + `, vm_count, status, created_at, updated_at`

func (s *SQLStore) CreateNode(ctx context.Context, node *models.Node) error {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	if node.Status == "" {
		node.Status = models.InfraActive
	}
	now := nowString()
	args := []any{node.ID, node.ClusterID, node.NodeName, node.Hostname, nilIfEmpty(node.CPUModel),
		node.PhysicalCores, node.ClockSpeedGHz, nilIfEmpty(node.RAMType), nilIfEmpty(node.StorageDescription),
		nilIfEmpty(node.NetworkInterface), nilIfEmpty(node.ManagementIP)}
	args = append(args, capacityArgs(node.Capacity)...)
	args = append(args, node.VMCount, string(node.Status), now, now)
	_, err := s.exec(ctx,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return wrapErr("create node", err)
	}
	node.CreatedAt = parseTime(now)
	node.UpdatedAt = node.CreatedAt
	return nil
}

func (s *SQLStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	n, err := scanNode(s.queryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// ListNodes returns all nodes, or only those of clusterID when set.
func (s *SQLStore) ListNodes(ctx context.Context, clusterID string) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes`
	var args []any
	if clusterID != "" {
		query += ` WHERE cluster_id = ?`
		args = append(args, clusterID)
	}
	rows, err := s.query(ctx, query+` ORDER BY node_name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func scanNode(row scanner) (*models.Node, error) {
	var n models.Node
	var cpuModel, ramType, storageDesc, netIf, mgmtIP *string
	var status, createdAt, updatedAt string
	dest := []any{&n.ID, &n.ClusterID, &n.NodeName, &n.Hostname, &cpuModel, &n.PhysicalCores,
		&n.ClockSpeedGHz, &ramType, &storageDesc, &netIf, &mgmtIP}
	dest = append(dest, capacityDest(&n.Capacity)...)
	dest = append(dest, &n.VMCount, &status, &createdAt, &updatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	n.CPUModel = derefStr(cpuModel)
	n.RAMType = derefStr(ramType)
	n.StorageDescription = derefStr(storageDesc)
	n.NetworkInterface = derefStr(netIf)
	n.ManagementIP = derefStr(mgmtIP)
	n.Status = models.InfraStatus(status)
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	return &n, nil
}

func (s *SQLStore) UpdateNode(ctx context.Context, node *models.Node) error {
	now := nowString()
	args := []any{node.ClusterID, node.NodeName, node.Hostname, nilIfEmpty(node.CPUModel),
		node.PhysicalCores, node.ClockSpeedGHz, nilIfEmpty(node.RAMType), nilIfEmpty(node.StorageDescription),
		nilIfEmpty(node.NetworkInterface), nilIfEmpty(node.ManagementIP)}
	args = append(args, capacityArgs(node.Capacity)...)
	args = append(args, node.VMCount, string(node.Status), now, node.ID)
	_, err := s.exec(ctx,
		`UPDATE nodes SET cluster_id = ?, node_name = ?, hostname = ?, cpu_model = ?, physical_cores = ?,
		 clock_speed_ghz = ?, ram_type = ?, storage_description = ?, network_interface = ?, management_ip = ?,
		 `+assignments(capacityColumns)+`, vm_count = ?, status = ?, updated_at = ?
		 WHERE id = ?`, args...)
	if err != nil {
		return wrapErr("update node", err)
	}
	node.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) DeleteNode(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return nil
}

// --- VMs ---

const vmColumns = `id, customer_id, cluster_id, node_id, vm_name, cpu, cpu_ghz, ram, ram_gb, storage,
	storage_gb, service_start_date, service_end_date, password_created_date, next_password_due_date,
	public_ip, management_ip, private_ips, allowed_ports, status, remarks, custom_fields,
	created_at, updated_at`

func (s *SQLStore) CreateVM(ctx context.Context, vm *models.VM) error {
	if vm.ID == "" {
		vm.ID = uuid.New().String()
	}
	if vm.Status == "" {
		vm.Status = models.VMActive
	}
	now := nowString()
	args := append([]any{vm.ID}, vmArgs(vm)...)
	args = append(args, now, now)
	_, err := s.exec(ctx,
		`INSERT INTO vms (`+vmColumns+`) VALUES (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return wrapErr("create vm", err)
	}
	vm.CreatedAt = parseTime(now)
	vm.UpdatedAt = vm.CreatedAt
	return nil
}

// vmArgs returns the mutable columns of vm in vmColumns order, without id
// and timestamps.
func vmArgs(vm *models.VM) []any {
	privateIPs := vm.PrivateIPs
	if privateIPs == nil {
		privateIPs = []string{}
	}
	ports := vm.AllowedPorts
	if ports == nil {
		ports = []string{}
	}
	fields := vm.CustomFields
	if fields == nil {
		fields = map[string]string{}
	}
	return []any{
		vm.CustomerID, vm.ClusterID, vm.NodeID, vm.VMName, vm.CPU, vm.CPUGHz, vm.RAM, vm.RAMGB,
		vm.Storage, vm.StorageGB, formatTime(vm.ServiceStartDate), formatTime(vm.ServiceEndDate),
		formatTime(vm.PasswordCreatedDate), formatTime(vm.NextPasswordDueDate),
		nilIfEmpty(vm.PublicIP), nilIfEmpty(vm.ManagementIP), encodeJSON(privateIPs), encodeJSON(ports),
		string(vm.Status), nilIfEmpty(vm.Remarks), encodeJSON(fields),
	}
}

func (s *SQLStore) GetVM(ctx context.Context, id string) (*models.VM, error) {
	vm, err := scanVM(s.queryRow(ctx, `SELECT `+vmColumns+` FROM vms WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vm: %w", err)
	}
	return vm, nil
}

func (s *SQLStore) ListVMs(ctx context.Context, filter models.VMFilter) ([]*models.VM, error) {
	var conditions []string
	var args []any
	if filter.CustomerID != "" {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.ClusterID != "" {
		conditions = append(conditions, "cluster_id = ?")
		args = append(args, filter.ClusterID)
	}
	if filter.NodeID != "" {
		conditions = append(conditions, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + vmColumns + ` FROM vms`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	rows, err := s.query(ctx, query+` ORDER BY vm_name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list vms: %w", err)
	}
	defer rows.Close()

	var vms []*models.VM
	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vm row: %w", err)
		}
		vms = append(vms, vm)
	}
	return vms, rows.Err()
}

func scanVM(row scanner) (*models.VM, error) {
	var v models.VM
	var start, end, pwCreated, pwDue, status, privateIPs, ports, fields, createdAt, updatedAt string
	var publicIP, mgmtIP, remarks *string
	err := row.Scan(&v.ID, &v.CustomerID, &v.ClusterID, &v.NodeID, &v.VMName, &v.CPU, &v.CPUGHz,
		&v.RAM, &v.RAMGB, &v.Storage, &v.StorageGB, &start, &end, &pwCreated, &pwDue,
		&publicIP, &mgmtIP, &privateIPs, &ports, &status, &remarks, &fields, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.ServiceStartDate = parseTime(start)
	v.ServiceEndDate = parseTime(end)
	v.PasswordCreatedDate = parseTime(pwCreated)
	v.NextPasswordDueDate = parseTime(pwDue)
	v.PublicIP = derefStr(publicIP)
	v.ManagementIP = derefStr(mgmtIP)
	v.Remarks = derefStr(remarks)
	v.Status = models.VMStatus(status)
	v.PrivateIPs = []string{}
	v.AllowedPorts = []string{}
	if err := decodeJSON("private_ips", privateIPs, &v.PrivateIPs); err != nil {
		return nil, err
	}
	if err := decodeJSON("allowed_ports", ports, &v.AllowedPorts); err != nil {
		return nil, err
	}
	if err := decodeJSON("custom_fields", fields, &v.CustomFields); err != nil {
		return nil, err
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func (s *SQLStore) UpdateVM(ctx context.Context, vm *models.VM) error {
	now := nowString()
	args := append(vmArgs(vm), now, vm.ID)
	_, err := s.exec(ctx,
		`UPDATE vms SET customer_id = ?, cluster_id = ?, node_id = ?, vm_name = ?, cpu = ?, cpu_ghz = ?,
		 ram = ?, ram_gb = ?, storage = ?, storage_gb = ?, service_start_date = ?, service_end_date = ?,
		 password_created_date = ?, next_password_due_date = ?, public_ip = ?, management_ip = ?,
		 private_ips = ?, allowed_ports = ?, status = ?, remarks = ?, custom_fields = ?, updated_at = ?
		 WHERE id = ?`, args...)
	if err != nil {
		return wrapErr("update vm", err)
	}
	vm.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLStore) DeleteVM(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM vms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete vm: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// assignments turns a column list into "a = ?, b = ?".
func assignments(columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p) + " = ?"
	}
	return strings.Join(parts, ", ")
}
