package inventory

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/capacity"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

func validateVM(vm *models.VM) error {
	vm.VMName = strings.TrimSpace(vm.VMName)
	if vm.VMName == "" {
		return invalid("vm_name is required")
	}
	if vm.NodeID == "" {
		return invalid("node_id is required")
	}
	if vm.CPUGHz < 0 || vm.RAMGB < 0 || vm.StorageGB < 0 {
		return invalid("cpu_ghz, ram_gb and storage_gb must not be negative")
	}
	if vm.Status == "" {
		vm.Status = models.VMActive
	}
	if !vm.Status.Valid() {
		return invalid("unknown vm status %q", vm.Status)
	}
	return checkDateRange(vm.ServiceStartDate, vm.ServiceEndDate)
}

// resolveQuantities fills the numeric demand from the descriptive strings.
// A figure is parsed when the client did not send its numeric field and the
// description is new (always true on create).
func resolveQuantities(vm *models.VM, sent map[string]json.RawMessage, old *models.VM) error {
	needs := func(numeric string, value float64, desc, oldDesc string) bool {
		if desc == "" {
			return false
		}
		if old == nil {
			return value == 0
		}
		_, explicit := sent[numeric]
		return !explicit && desc != oldDesc
	}

	var oldRAM, oldStorage, oldCPU string
	if old != nil {
		oldRAM, oldStorage, oldCPU = old.RAM, old.Storage, old.CPU
	}
	if needs("ram_gb", vm.RAMGB, vm.RAM, oldRAM) {
		gb, err := capacity.ParseGB(vm.RAM)
		if err != nil {
			return invalid("ram: %v", err)
		}
		vm.RAMGB = gb
	}
	if needs("storage_gb", vm.StorageGB, vm.Storage, oldStorage) {
		gb, err := capacity.ParseGB(vm.Storage)
		if err != nil {
			return invalid("storage: %v", err)
		}
		vm.StorageGB = gb
	}
	// The CPU description is free text ("4 vCPU"); only clock figures count.
	if needs("cpu_ghz", vm.CPUGHz, vm.CPU, oldCPU) {
		if ghz, err := capacity.ParseGHz(vm.CPU); err == nil {
			vm.CPUGHz = ghz
		}
	}
	return nil
}

// placeVM checks that the node exists and fills or verifies the cluster.
func placeVM(ctx context.Context, tx store.Store, vm *models.VM) error {
	node, err := tx.GetNode(ctx, vm.NodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return invalid("node %s does not exist", vm.NodeID)
	}
	if vm.ClusterID == "" {
		vm.ClusterID = node.ClusterID
	}
	if vm.ClusterID != node.ClusterID {
		return invalid("node %s does not belong to cluster %s", node.NodeName, vm.ClusterID)
	}
	return nil
}

// CreateVM stores vm and allocates its demand on the node in the same
// transaction.
func (s *Service) CreateVM(ctx context.Context, actor string, vm *models.VM) error {
	if err := validateVM(vm); err != nil {
		return err
	}
	if err := resolveQuantities(vm, nil, nil); err != nil {
		return err
	}
	if vm.NextPasswordDueDate.IsZero() {
		vm.NextPasswordDueDate = rotationDue(vm.PasswordCreatedDate)
	}

	return s.store.InTx(ctx, func(tx store.Store) error {
		if vm.CustomerID != "" {
			if err := requireCustomer(ctx, tx, vm.CustomerID); err != nil {
				return err
			}
		}
		if err := placeVM(ctx, tx, vm); err != nil {
			return err
		}
		if err := tx.CreateVM(ctx, vm); err != nil {
			return err
		}
		if err := s.ledger.ApplyCreate(ctx, tx, vm); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "vms", EntityType: "vm", EntityID: vm.ID, EntityName: vm.VMName,
			Operation: models.OpCreate, New: vm, Actor: actor,
		})
	})
}

func (s *Service) GetVM(ctx context.Context, id string) (*models.VM, error) {
	vm, err := s.store.GetVM(ctx, id)
	if err != nil {
		return nil, err
	}
	if vm == nil {
		return nil, notFound("vm", id)
	}
	return vm, nil
}

func (s *Service) ListVMs(ctx context.Context, filter models.VMFilter) ([]*models.VM, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("unknown vm status %q", filter.Status)
	}
	return s.store.ListVMs(ctx, filter)
}

// UpdateVM applies patch and moves the VM's demand on the ledger. The next
// password due date is only changed when the client sends one.
func (s *Service) UpdateVM(ctx context.Context, actor, id string, patch []byte) (*models.VM, error) {
	var updated *models.VM
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetVM(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("vm", id)
		}
		old := *current
		next := *current
		next.PrivateIPs = slices.Clone(current.PrivateIPs)
		next.AllowedPorts = slices.Clone(current.AllowedPorts)
		next.CustomFields = maps.Clone(current.CustomFields)

		sent, err := applyPatch(patch, &next)
		if err != nil {
			return err
		}
		next.ID, next.CreatedAt = old.ID, old.CreatedAt
		if _, ok := sent["cluster_id"]; !ok && next.NodeID != old.NodeID {
			next.ClusterID = ""
		}
		if err := validateVM(&next); err != nil {
			return err
		}
		if err := resolveQuantities(&next, sent, &old); err != nil {
			return err
		}
		if next.CustomerID != old.CustomerID && next.CustomerID != "" {
			if err := requireCustomer(ctx, tx, next.CustomerID); err != nil {
				return err
			}
		}
		if err := placeVM(ctx, tx, &next); err != nil {
			return err
		}
		if err := tx.UpdateVM(ctx, &next); err != nil {
			return err
		}
		if err := s.ledger.ApplyUpdate(ctx, tx, &old, &next); err != nil {
			return err
		}
		updated = &next
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "vms", EntityType: "vm", EntityID: id, EntityName: next.VMName,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteVM removes the VM and releases its demand from the node.
func (s *Service) DeleteVM(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetVM(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("vm", id)
		}
		if err := tx.DeleteVM(ctx, id); err != nil {
			return err
		}
		if err := s.ledger.ApplyDelete(ctx, tx, current); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "vms", EntityType: "vm", EntityID: id, EntityName: current.VMName,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}
