package reporting

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/models"
)

type CustomerSummary struct {
	CustomerID          string  `json:"customer_id"`
	DepartmentName      string  `json:"department_name"`
	VMs                 int     `json:"vms"`
	Contacts            int     `json:"contacts"`
	Contracts           int     `json:"contracts"`
	ActiveContractValue float64 `json:"active_contract_value"`
	GPAccounts          int     `json:"gp_accounts"`
}

// CustomerSummaries returns one row per customer, largest active contract
// value first.
func CustomerSummaries(snap *Snapshot, now time.Time) []CustomerSummary {
	vms := lo.GroupBy(snap.VMs, func(vm *models.VM) string { return vm.CustomerID })
	contacts := lo.GroupBy(snap.Contacts, func(c *models.Contact) string { return c.CustomerID })
	contracts := lo.GroupBy(snap.Contracts, func(c *models.Contract) string { return c.CustomerID })
	accounts := lo.GroupBy(snap.GPAccounts, func(a *models.GPAccount) string { return a.CustomerID })

	out := lo.Map(snap.Customers, func(c *models.Customer, _ int) CustomerSummary {
		owned := contracts[c.ID]
		active := lo.Filter(owned, func(k *models.Contract, _ int) bool {
			return alerts.EffectiveContractStatus(k, now) == models.ContractActive
		})
		return CustomerSummary{
			CustomerID:          c.ID,
			DepartmentName:      c.DepartmentName,
			VMs:                 len(vms[c.ID]),
			Contacts:            len(contacts[c.ID]),
			Contracts:           len(owned),
			ActiveContractValue: round2(lo.SumBy(active, func(k *models.Contract) float64 { return k.Value })),
			GPAccounts:          len(accounts[c.ID]),
		}
	})

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActiveContractValue != out[j].ActiveContractValue {
			return out[i].ActiveContractValue > out[j].ActiveContractValue
		}
		return out[i].DepartmentName < out[j].DepartmentName
	})
	return out
}
