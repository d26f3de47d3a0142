package capacity

import (
	"context"
	"fmt"
	"log"

	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

// Observer receives one call per ledger operation.
type Observer interface {
	ObserveLedgerOp(op, result string)
}

// Ledger applies VM lifecycle events to node and cluster capacity. All
// methods expect a transaction-bound store so that the VM write and the
// ledger update commit together.
type Ledger struct {
	AllowOvercommit bool
	Observer        Observer
}

func NewLedger(allowOvercommit bool, observer Observer) *Ledger {
	return &Ledger{AllowOvercommit: allowOvercommit, Observer: observer}
}

// ApplyCreate allocates the VM's demand on its node and rolls the node up
// into its cluster.
func (l *Ledger) ApplyCreate(ctx context.Context, tx store.Store, vm *models.VM) error {
	err := l.applyCreate(ctx, tx, vm)
	l.observe("allocate", err)
	return err
}

func (l *Ledger) applyCreate(ctx context.Context, tx store.Store, vm *models.VM) error {
	if vm.NodeID == "" {
		return nil
	}
	node, err := tx.GetNode(ctx, vm.NodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("node %s not found", vm.NodeID)
	}
	if err := l.allocate(node, vm); err != nil {
		return err
	}
	node.VMCount++
	if err := tx.UpdateNode(ctx, node); err != nil {
		return err
	}
	return l.RollupCluster(ctx, tx, node.ClusterID)
}

// ApplyDelete releases the VM's demand from its node. A node that no longer
// exists is skipped.
func (l *Ledger) ApplyDelete(ctx context.Context, tx store.Store, vm *models.VM) error {
	err := l.applyDelete(ctx, tx, vm)
	l.observe("release", err)
	return err
}

func (l *Ledger) applyDelete(ctx context.Context, tx store.Store, vm *models.VM) error {
	if vm.NodeID == "" {
		return nil
	}
	node, err := tx.GetNode(ctx, vm.NodeID)
	if err != nil {
		return err
	}
	if node == nil {
		log.Printf("[ledger] node %s of vm %s is gone, nothing to release", vm.NodeID, vm.ID)
		return nil
	}
	Release(&node.Capacity, DemandOf(vm))
	if node.VMCount > 0 {
		node.VMCount--
	}
	if err := tx.UpdateNode(ctx, node); err != nil {
		return err
	}
	return l.RollupCluster(ctx, tx, node.ClusterID)
}

// ApplyUpdate moves the demand of old to updated. The old demand is released
// first, so shrinking a VM on a full node always succeeds.
func (l *Ledger) ApplyUpdate(ctx context.Context, tx store.Store, old, updated *models.VM) error {
	err := l.applyUpdate(ctx, tx, old, updated)
	l.observe("rebalance", err)
	return err
}

func (l *Ledger) applyUpdate(ctx context.Context, tx store.Store, old, updated *models.VM) error {
	if old.NodeID == updated.NodeID && DemandOf(old) == DemandOf(updated) {
		return nil
	}
	if old.NodeID == updated.NodeID {
		node, err := tx.GetNode(ctx, updated.NodeID)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("node %s not found", updated.NodeID)
		}
		Release(&node.Capacity, DemandOf(old))
		if err := l.allocate(node, updated); err != nil {
			return err
		}
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		return l.RollupCluster(ctx, tx, node.ClusterID)
	}
	if err := l.applyDelete(ctx, tx, old); err != nil {
		return err
	}
	return l.applyCreate(ctx, tx, updated)
}

func (l *Ledger) allocate(node *models.Node, vm *models.VM) error {
	d := DemandOf(vm)
	Recalculate(&node.Capacity)
	over := !Fits(node.Capacity, d)
	if err := Allocate(&node.Capacity, d, l.AllowOvercommit); err != nil {
		return fmt.Errorf("node %s: %w", node.NodeName, err)
	}
	if over {
		log.Printf("[ledger] warning: vm %s overcommits node %s (available %.2f GHz / %.2f GB RAM / %.2f GB storage)",
			vm.VMName, node.NodeName, node.AvailableCPUGHz, node.AvailableRAMGB, node.AvailableStorageGB)
	}
	return nil
}

// RollupCluster recomputes a cluster from its current nodes.
func (l *Ledger) RollupCluster(ctx context.Context, tx store.Store, clusterID string) error {
	if clusterID == "" {
		return nil
	}
	cluster, err := tx.GetCluster(ctx, clusterID)
	if err != nil {
		return err
	}
	if cluster == nil {
		return nil
	}
	nodes, err := tx.ListNodes(ctx, clusterID)
	if err != nil {
		return err
	}
	Rollup(cluster, nodes)
	return tx.UpdateCluster(ctx, cluster)
}

func (l *Ledger) observe(op string, err error) {
	if l.Observer == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	l.Observer.ObserveLedgerOp(op, result)
}
