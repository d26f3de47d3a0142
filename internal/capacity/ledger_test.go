package capacity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

type countingObserver struct {
	ops map[string]int
}

func (o *countingObserver) ObserveLedgerOp(op, result string) {
	o.ops[op+"/"+result]++
}

func newLedgerFixture(t *testing.T) (*store.SQLStore, *models.Cluster, *models.Node) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	cluster := &models.Cluster{ClusterName: "Main", ClusterCode: "MAIN", ClusterPurpose: models.PurposeProduction}
	require.NoError(t, s.CreateCluster(ctx, cluster))

	node := &models.Node{
		ClusterID: cluster.ID, NodeName: "node-1", PhysicalCores: 16, ClockSpeedGHz: 2.5,
		Capacity: models.Capacity{TotalRAMGB: 128, TotalStorageGB: 2000},
	}
	ApplyNodeTotals(node)
	require.NoError(t, s.CreateNode(ctx, node))
	return s, cluster, node
}

func TestLedger_CreateThenDelete(t *testing.T) {
	s, cluster, node := newLedgerFixture(t)
	ctx := context.Background()
	obs := &countingObserver{ops: map[string]int{}}
	ledger := NewLedger(false, obs)

	ramGB, err := ParseGB("32 GB")
	require.NoError(t, err)
	vm := &models.VM{ID: "vm-1", NodeID: node.ID, ClusterID: cluster.ID, VMName: "db", CPUGHz: 4, RAMGB: ramGB, StorageGB: 100}

	require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
		return ledger.ApplyCreate(ctx, tx, vm)
	}))

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, 32.0, got.AllocatedRAMGB)
	assert.Equal(t, 96.0, got.AvailableRAMGB)
	assert.Equal(t, 1, got.VMCount)

	gotCluster, err := s.GetCluster(ctx, cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCluster.NodeCount)
	assert.Equal(t, 1, gotCluster.VMCount)
	assert.Equal(t, 32.0, gotCluster.AllocatedRAMGB)
	assert.Equal(t, 40.0, gotCluster.TotalCPUGHz)

	require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
		return ledger.ApplyDelete(ctx, tx, vm)
	}))

	got, err = s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.AllocatedRAMGB)
	assert.Equal(t, 128.0, got.AvailableRAMGB)
	assert.Equal(t, 0, got.VMCount)
	assert.Equal(t, node.Capacity, got.Capacity)

	assert.Equal(t, 1, obs.ops["allocate/ok"])
	assert.Equal(t, 1, obs.ops["release/ok"])
}

func TestLedger_RejectsOvercommit(t *testing.T) {
	s, _, node := newLedgerFixture(t)
	ctx := context.Background()
	ledger := NewLedger(false, nil)

	vm := &models.VM{NodeID: node.ID, RAMGB: 256}
	err := s.InTx(ctx, func(tx store.Store) error {
		return ledger.ApplyCreate(ctx, tx, vm)
	})
	assert.ErrorIs(t, err, ErrInsufficientCapacity)

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.AllocatedRAMGB)
	assert.Equal(t, 0, got.VMCount)
}

func TestLedger_OvercommitWarnOnly(t *testing.T) {
	s, cluster, node := newLedgerFixture(t)
	ctx := context.Background()
	ledger := NewLedger(true, nil)

	vm := &models.VM{NodeID: node.ID, RAMGB: 256}
	require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
		return ledger.ApplyCreate(ctx, tx, vm)
	}))

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, 256.0, got.AllocatedRAMGB)
	assert.Equal(t, -128.0, got.AvailableRAMGB)
	assert.Equal(t, 1, got.VMCount)

	c, err := s.GetCluster(ctx, cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, 256.0, c.AllocatedRAMGB)
}

func TestLedger_UpdateRebalances(t *testing.T) {
	s, cluster, node := newLedgerFixture(t)
	ctx := context.Background()
	ledger := NewLedger(false, nil)

	other := &models.Node{ClusterID: cluster.ID, NodeName: "node-2", Capacity: models.Capacity{TotalRAMGB: 64}}
	ApplyNodeTotals(other)
	require.NoError(t, s.CreateNode(ctx, other))

	old := &models.VM{NodeID: node.ID, RAMGB: 32}
	require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
		return ledger.ApplyCreate(ctx, tx, old)
	}))

	t.Run("resize on same node", func(t *testing.T) {
		bigger := *old
		bigger.RAMGB = 48
		require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
			return ledger.ApplyUpdate(ctx, tx, old, &bigger)
		}))
		got, _ := s.GetNode(ctx, node.ID)
		assert.Equal(t, 48.0, got.AllocatedRAMGB)
		assert.Equal(t, 1, got.VMCount)
		*old = bigger
	})

	t.Run("move to another node", func(t *testing.T) {
		moved := *old
		moved.NodeID = other.ID
		require.NoError(t, s.InTx(ctx, func(tx store.Store) error {
			return ledger.ApplyUpdate(ctx, tx, old, &moved)
		}))
		src, _ := s.GetNode(ctx, node.ID)
		dst, _ := s.GetNode(ctx, other.ID)
		assert.Equal(t, 0.0, src.AllocatedRAMGB)
		assert.Equal(t, 0, src.VMCount)
		assert.Equal(t, 48.0, dst.AllocatedRAMGB)
		assert.Equal(t, 1, dst.VMCount)

		c, _ := s.GetCluster(ctx, cluster.ID)
		assert.Equal(t, 2, c.NodeCount)
		assert.Equal(t, 1, c.VMCount)
		assert.Equal(t, 192.0, c.TotalRAMGB)
		assert.Equal(t, 48.0, c.AllocatedRAMGB)
	})
}

func TestLedger_DeleteWithMissingNode(t *testing.T) {
	s, _, _ := newLedgerFixture(t)
	ctx := context.Background()
	ledger := NewLedger(false, nil)

	err := s.InTx(ctx, func(tx store.Store) error {
		return ledger.ApplyDelete(ctx, tx, &models.VM{ID: "x", NodeID: "missing", RAMGB: 8})
	})
	assert.NoError(t, err)
}
