package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/capacity"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

// --- Clusters ---

func validateCluster(c *models.Cluster) error {
	c.ClusterName = strings.TrimSpace(c.ClusterName)
	c.ClusterCode = strings.TrimSpace(c.ClusterCode)
	if c.ClusterName == "" {
		return invalid("cluster_name is required")
	}
	if c.ClusterCode == "" {
		return invalid("cluster_code is required")
	}
	if c.ClusterPurpose != "" && !c.ClusterPurpose.Valid() {
		return invalid("unknown cluster purpose %q", c.ClusterPurpose)
	}
	if c.Status == "" {
		c.Status = models.InfraActive
	}
	if !c.Status.Valid() {
		return invalid("unknown cluster status %q", c.Status)
	}
	return validateTotals(c.Capacity)
}

func validateTotals(c models.Capacity) error {
	if c.TotalCPUGHz < 0 || c.TotalRAMGB < 0 || c.TotalStorageGB < 0 {
		return invalid("capacity totals must not be negative")
	}
	return nil
}

// keepLedger copies the ledger-owned figures from src into dst. Clients
// cannot set allocations directly.
func keepLedger(dst *models.Capacity, src models.Capacity) {
	dst.AllocatedCPUGHz = src.AllocatedCPUGHz
	dst.AllocatedRAMGB = src.AllocatedRAMGB
	dst.AllocatedStorageGB = src.AllocatedStorageGB
	capacity.Recalculate(dst)
}

func (s *Service) CreateCluster(ctx context.Context, actor string, c *models.Cluster) error {
	if err := validateCluster(c); err != nil {
		return err
	}
	keepLedger(&c.Capacity, models.Capacity{})
	c.NodeCount, c.VMCount = 0, 0

	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateCluster(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "clusters", EntityType: "cluster", EntityID: c.ID, EntityName: c.ClusterName,
			Operation: models.OpCreate, New: c, Actor: actor,
		})
	})
}

func (s *Service) GetCluster(ctx context.Context, id string) (*models.Cluster, error) {
	c, err := s.store.GetCluster(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("cluster", id)
	}
	return c, nil
}

func (s *Service) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	return s.store.ListClusters(ctx)
}

// UpdateCluster applies patch and rolls the cluster up again, so totals sent
// for a cluster that has nodes are replaced by the node sums.
func (s *Service) UpdateCluster(ctx context.Context, actor, id string, patch []byte) (*models.Cluster, error) {
	var updated *models.Cluster
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetCluster(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("cluster", id)
		}
		old := *current
		next := *current
		if _, err := applyPatch(patch, &next); err != nil {
			return err
		}
		next.ID, next.CreatedAt = old.ID, old.CreatedAt
		next.NodeCount, next.VMCount = old.NodeCount, old.VMCount
		keepLedger(&next.Capacity, old.Capacity)
		if err := validateCluster(&next); err != nil {
			return err
		}
		if err := tx.UpdateCluster(ctx, &next); err != nil {
			return err
		}
		if err := s.ledger.RollupCluster(ctx, tx, id); err != nil {
			return err
		}
		rolled, err := tx.GetCluster(ctx, id)
		if err != nil {
			return err
		}
		updated = rolled
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "clusters", EntityType: "cluster", EntityID: id, EntityName: rolled.ClusterName,
			Operation: models.OpUpdate, Old: &old, New: rolled, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCluster refuses to remove a cluster that still has nodes.
func (s *Service) DeleteCluster(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetCluster(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("cluster", id)
		}
		nodes, err := tx.ListNodes(ctx, id)
		if err != nil {
			return err
		}
		if len(nodes) > 0 {
			return fmt.Errorf("cluster %s has %d node(s): %w", current.ClusterName, len(nodes), ErrHasDependents)
		}
		if err := tx.DeleteCluster(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "clusters", EntityType: "cluster", EntityID: id, EntityName: current.ClusterName,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}

// --- Nodes ---

func validateNode(n *models.Node) error {
	n.NodeName = strings.TrimSpace(n.NodeName)
	if n.NodeName == "" {
		return invalid("node_name is required")
	}
	if n.PhysicalCores < 0 || n.ClockSpeedGHz < 0 {
		return invalid("physical_cores and clock_speed_ghz must not be negative")
	}
	if n.Status == "" {
		n.Status = models.InfraActive
	}
	if !n.Status.Valid() {
		return invalid("unknown node status %q", n.Status)
	}
	return validateTotals(n.Capacity)
}

// checkShrink rejects totals that drop below what is already allocated.
func (s *Service) checkShrink(n *models.Node) error {
	if s.ledger.AllowOvercommit {
		return nil
	}
	if n.AvailableCPUGHz < 0 || n.AvailableRAMGB < 0 || n.AvailableStorageGB < 0 {
		return fmt.Errorf("node %s totals are below its allocations: %w",
			n.NodeName, capacity.ErrInsufficientCapacity)
	}
	return nil
}

func (s *Service) CreateNode(ctx context.Context, actor string, n *models.Node) error {
	if err := validateNode(n); err != nil {
		return err
	}
	if n.ClusterID == "" {
		return invalid("cluster_id is required")
	}
	keepLedger(&n.Capacity, models.Capacity{})
	n.VMCount = 0
	capacity.ApplyNodeTotals(n)

	return s.store.InTx(ctx, func(tx store.Store) error {
		cluster, err := tx.GetCluster(ctx, n.ClusterID)
		if err != nil {
			return err
		}
		if cluster == nil {
			return invalid("cluster %s does not exist", n.ClusterID)
		}
		if err := tx.CreateNode(ctx, n); err != nil {
			return err
		}
		if err := s.ledger.RollupCluster(ctx, tx, n.ClusterID); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "nodes", EntityType: "node", EntityID: n.ID, EntityName: n.NodeName,
			Operation: models.OpCreate, New: n, Actor: actor,
		})
	})
}

func (s *Service) GetNode(ctx context.Context, id string) (*models.Node, error) {
	n, err := s.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, notFound("node", id)
	}
	return n, nil
}

func (s *Service) ListNodes(ctx context.Context, clusterID string) ([]*models.Node, error) {
	return s.store.ListNodes(ctx, clusterID)
}

// UpdateNode keeps the node in its cluster and its allocations as they are.
// A node that is moved between clusters must be recreated.
func (s *Service) UpdateNode(ctx context.Context, actor, id string, patch []byte) (*models.Node, error) {
	var updated *models.Node
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("node", id)
		}
		old := *current
		next := *current
		if _, err := applyPatch(patch, &next); err != nil {
			return err
		}
		next.ID, next.ClusterID, next.CreatedAt = old.ID, old.ClusterID, old.CreatedAt
		next.VMCount = old.VMCount
		if err := validateNode(&next); err != nil {
			return err
		}
		keepLedger(&next.Capacity, old.Capacity)
		capacity.ApplyNodeTotals(&next)
		if err := s.checkShrink(&next); err != nil {
			return err
		}
		if err := tx.UpdateNode(ctx, &next); err != nil {
			return err
		}
		if err := s.ledger.RollupCluster(ctx, tx, next.ClusterID); err != nil {
			return err
		}
		updated = &next
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "nodes", EntityType: "node", EntityID: id, EntityName: next.NodeName,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteNode refuses to remove a node that still hosts VMs.
func (s *Service) DeleteNode(ctx context.Context, actor, id string) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("node", id)
		}
		vms, err := tx.ListVMs(ctx, models.VMFilter{NodeID: id})
		if err != nil {
			return err
		}
		if len(vms) > 0 {
			return fmt.Errorf("node %s hosts %d vm(s): %w", current.NodeName, len(vms), ErrHasDependents)
		}
		if err := tx.DeleteNode(ctx, id); err != nil {
			return err
		}
		if err := s.ledger.RollupCluster(ctx, tx, current.ClusterID); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Table: "nodes", EntityType: "node", EntityID: id, EntityName: current.NodeName,
			Operation: models.OpDelete, Old: current, Actor: actor,
		})
	})
}
