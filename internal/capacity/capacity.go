package capacity

import (
	"errors"
	"fmt"

	"github.com/why-xn/infradesk/internal/models"
)

// ErrInsufficientCapacity is returned when a demand does not fit and
// overcommit is not allowed.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// Demand is the resource footprint of a single VM.
type Demand struct {
	CPUGHz    float64
	RAMGB     float64
	StorageGB float64
}

func DemandOf(vm *models.VM) Demand {
	return Demand{CPUGHz: vm.CPUGHz, RAMGB: vm.RAMGB, StorageGB: vm.StorageGB}
}

func (d Demand) IsZero() bool {
	return d.CPUGHz == 0 && d.RAMGB == 0 && d.StorageGB == 0
}

// Fits reports whether d fits in the available figures of c.
func Fits(c models.Capacity, d Demand) bool {
	return d.CPUGHz <= c.AvailableCPUGHz && d.RAMGB <= c.AvailableRAMGB && d.StorageGB <= c.AvailableStorageGB
}

// Allocate adds d to the allocated figures of c. Without overcommit a demand
// larger than what is available fails and leaves c untouched.
func Allocate(c *models.Capacity, d Demand, allowOvercommit bool) error {
	Recalculate(c)
	if !allowOvercommit && !Fits(*c, d) {
		return fmt.Errorf("%w: need %.2f GHz / %.2f GB RAM / %.2f GB storage, have %.2f GHz / %.2f GB RAM / %.2f GB storage",
			ErrInsufficientCapacity, d.CPUGHz, d.RAMGB, d.StorageGB,
			c.AvailableCPUGHz, c.AvailableRAMGB, c.AvailableStorageGB)
	}
	c.AllocatedCPUGHz = round(c.AllocatedCPUGHz + d.CPUGHz)
	c.AllocatedRAMGB = round(c.AllocatedRAMGB + d.RAMGB)
	c.AllocatedStorageGB = round(c.AllocatedStorageGB + d.StorageGB)
	Recalculate(c)
	return nil
}

// Release subtracts d from the allocated figures of c, clamping at zero.
func Release(c *models.Capacity, d Demand) {
	c.AllocatedCPUGHz = clamp(c.AllocatedCPUGHz - d.CPUGHz)
	c.AllocatedRAMGB = clamp(c.AllocatedRAMGB - d.RAMGB)
	c.AllocatedStorageGB = clamp(c.AllocatedStorageGB - d.StorageGB)
	Recalculate(c)
}

// Recalculate derives available from total and allocated.
func Recalculate(c *models.Capacity) {
	c.AllocatedCPUGHz = clamp(c.AllocatedCPUGHz)
	c.AllocatedRAMGB = clamp(c.AllocatedRAMGB)
	c.AllocatedStorageGB = clamp(c.AllocatedStorageGB)
	c.AvailableCPUGHz = round(c.TotalCPUGHz - c.AllocatedCPUGHz)
	c.AvailableRAMGB = round(c.TotalRAMGB - c.AllocatedRAMGB)
	c.AvailableStorageGB = round(c.TotalStorageGB - c.AllocatedStorageGB)
}

// ApplyNodeTotals sets the node CPU total from its core count and clock when
// both are known, then recalculates availability.
func ApplyNodeTotals(n *models.Node) {
	if n.PhysicalCores > 0 && n.ClockSpeedGHz > 0 {
		n.TotalCPUGHz = round(float64(n.PhysicalCores) * n.ClockSpeedGHz)
	}
	Recalculate(&n.Capacity)
}

// Rollup recomputes the cluster figures from its nodes. A cluster without
// nodes keeps its entered totals.
func Rollup(cluster *models.Cluster, nodes []*models.Node) {
	var sum models.Capacity
	vmCount := 0
	for _, n := range nodes {
		sum.TotalCPUGHz += n.TotalCPUGHz
		sum.TotalRAMGB += n.TotalRAMGB
		sum.TotalStorageGB += n.TotalStorageGB
		sum.AllocatedCPUGHz += n.AllocatedCPUGHz
		sum.AllocatedRAMGB += n.AllocatedRAMGB
		sum.AllocatedStorageGB += n.AllocatedStorageGB
		vmCount += n.VMCount
	}
	cluster.NodeCount = len(nodes)
	cluster.VMCount = vmCount
	if len(nodes) > 0 {
		cluster.TotalCPUGHz = round(sum.TotalCPUGHz)
		cluster.TotalRAMGB = round(sum.TotalRAMGB)
		cluster.TotalStorageGB = round(sum.TotalStorageGB)
	}
	cluster.AllocatedCPUGHz = round(sum.AllocatedCPUGHz)
	cluster.AllocatedRAMGB = round(sum.AllocatedRAMGB)
	cluster.AllocatedStorageGB = round(sum.AllocatedStorageGB)
	Recalculate(&cluster.Capacity)
}

// Utilization returns allocated/total per resource as percentages.
func Utilization(c models.Capacity) (cpu, ram, storage float64) {
	return percent(c.AllocatedCPUGHz, c.TotalCPUGHz),
		percent(c.AllocatedRAMGB, c.TotalRAMGB),
		percent(c.AllocatedStorageGB, c.TotalStorageGB)
}

func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round(part / total * 100)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return round(v)
}
