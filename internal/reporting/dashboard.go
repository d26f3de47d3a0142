package reporting

import (
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/models"
)

type ResourceTotals struct {
	CPUGHz    float64 `json:"cpu_ghz"`
	RAMGB     float64 `json:"ram_gb"`
	StorageGB float64 `json:"storage_gb"`
}

// Dashboard is the metric bundle shown on the landing page.
type Dashboard struct {
	Customers           int             `json:"customers"`
	Contacts            int             `json:"contacts"`
	VMs                 int             `json:"vms"`
	VMsByStatus         map[string]int  `json:"vms_by_status"`
	Clusters            int             `json:"clusters"`
	Nodes               int             `json:"nodes"`
	Contracts           int             `json:"contracts"`
	ContractsByStatus   map[string]int  `json:"contracts_by_status"`
	TotalContractValue  float64         `json:"total_contract_value"`
	ActiveContractValue float64         `json:"active_contract_value"`
	GPAccounts          int             `json:"gp_accounts"`
	VMResources         ResourceTotals  `json:"vm_resources"`
	Infrastructure      models.Capacity `json:"infrastructure"`
	Alerts              alerts.Counts   `json:"alerts"`
	OrphanVMs           int             `json:"orphan_vms"`
}

// BuildDashboard is a pure function of snap and now.
func BuildDashboard(snap *Snapshot, engine *alerts.Engine, now time.Time) Dashboard {
	d := Dashboard{
		Customers:         len(snap.Customers),
		Contacts:          len(snap.Contacts),
		VMs:               len(snap.VMs),
		VMsByStatus:       map[string]int{},
		Clusters:          len(snap.Clusters),
		Nodes:             len(snap.Nodes),
		Contracts:         len(snap.Contracts),
		ContractsByStatus: map[string]int{},
		GPAccounts:        len(snap.GPAccounts),
	}

	for _, vm := range snap.VMs {
		d.VMsByStatus[string(vm.Status)]++
	}
	for _, c := range snap.Contracts {
		d.ContractsByStatus[string(alerts.EffectiveContractStatus(c, now))]++
	}

	d.TotalContractValue = round2(lo.SumBy(snap.Contracts, func(c *models.Contract) float64 { return c.Value }))
	active := lo.Filter(snap.Contracts, func(c *models.Contract, _ int) bool {
		return alerts.EffectiveContractStatus(c, now) == models.ContractActive
	})
	d.ActiveContractValue = round2(lo.SumBy(active, func(c *models.Contract) float64 { return c.Value }))

	d.VMResources = ResourceTotals{
		CPUGHz:    round2(lo.SumBy(snap.VMs, func(vm *models.VM) float64 { return vm.CPUGHz })),
		RAMGB:     round2(lo.SumBy(snap.VMs, func(vm *models.VM) float64 { return vm.RAMGB })),
		StorageGB: round2(lo.SumBy(snap.VMs, func(vm *models.VM) float64 { return vm.StorageGB })),
	}

	for _, cl := range snap.Clusters {
		d.Infrastructure.TotalCPUGHz += cl.TotalCPUGHz
		d.Infrastructure.TotalRAMGB += cl.TotalRAMGB
		d.Infrastructure.TotalStorageGB += cl.TotalStorageGB
		d.Infrastructure.AllocatedCPUGHz += cl.AllocatedCPUGHz
		d.Infrastructure.AllocatedRAMGB += cl.AllocatedRAMGB
		d.Infrastructure.AllocatedStorageGB += cl.AllocatedStorageGB
		d.Infrastructure.AvailableCPUGHz += cl.AvailableCPUGHz
		d.Infrastructure.AvailableRAMGB += cl.AvailableRAMGB
		d.Infrastructure.AvailableStorageGB += cl.AvailableStorageGB
	}

	customerIDs := lo.SliceToMap(snap.Customers, func(c *models.Customer) (string, struct{}) {
		return c.ID, struct{}{}
	})
	d.OrphanVMs = lo.CountBy(snap.VMs, func(vm *models.VM) bool {
		if vm.CustomerID == "" {
			return false
		}
		_, ok := customerIDs[vm.CustomerID]
		return !ok
	})

	_, d.Alerts = engine.Evaluate(AlertInput(snap), now)
	return d
}

// AlertInput adapts a snapshot for the alert engine.
func AlertInput(snap *Snapshot) alerts.Input {
	return alerts.Input{
		VMs:        snap.VMs,
		GPAccounts: snap.GPAccounts,
		Contracts:  snap.Contracts,
		Customers:  snap.Customers,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
