package reporting

import (
	"time"

	"github.com/samber/lo"

	"github.com/why-xn/infradesk/internal/models"
)

const (
	DefaultGrowthMonths = 6
	MaxGrowthMonths     = 36
)

type GrowthPoint struct {
	Month           string  `json:"month"`
	VMs             int     `json:"vms"`
	Customers       int     `json:"customers"`
	Revenue         float64 `json:"revenue"`
	ProratedRevenue float64 `json:"prorated_revenue"`
}

// Growth returns one point per month for the last months months, ending with
// the month containing now. VM and customer figures are cumulative. Revenue
// attributes the full value of every Active contract overlapping the month;
// ProratedRevenue spreads each contract's value evenly over its duration.
func Growth(snap *Snapshot, now time.Time, months int) []GrowthPoint {
	if months <= 0 {
		months = DefaultGrowthMonths
	}
	if months > MaxGrowthMonths {
		months = MaxGrowthMonths
	}
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	active := lo.Filter(snap.Contracts, func(c *models.Contract, _ int) bool {
		return c.Status == models.ContractActive
	})

	points := make([]GrowthPoint, 0, months)
	for i := months - 1; i >= 0; i-- {
		start := current.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, 0)

		p := GrowthPoint{Month: start.Format("2006-01")}
		p.VMs = lo.CountBy(snap.VMs, func(vm *models.VM) bool { return vm.CreatedAt.Before(end) })
		p.Customers = lo.CountBy(snap.Customers, func(c *models.Customer) bool { return c.CreatedAt.Before(end) })

		for _, c := range active {
			if !overlaps(c, start, end) {
				continue
			}
			p.Revenue += c.Value
			p.ProratedRevenue += prorate(c, start, end)
		}
		p.Revenue = round2(p.Revenue)
		p.ProratedRevenue = round2(p.ProratedRevenue)
		points = append(points, p)
	}
	return points
}

// overlaps reports whether the contract's service period touches [start, end).
// A missing end date means the contract is open-ended.
func overlaps(c *models.Contract, start, end time.Time) bool {
	if !c.ServiceStartDate.IsZero() && !c.ServiceStartDate.Before(end) {
		return false
	}
	if !c.ServiceEndDate.IsZero() && c.ServiceEndDate.Before(start) {
		return false
	}
	return true
}

func prorate(c *models.Contract, start, end time.Time) float64 {
	if c.ServiceStartDate.IsZero() || c.ServiceEndDate.IsZero() {
		return 0
	}
	total := c.ServiceEndDate.Sub(c.ServiceStartDate)
	if total <= 0 {
		// Zero-length contracts count in full in the month they start.
		if !c.ServiceStartDate.Before(start) && c.ServiceStartDate.Before(end) {
			return c.Value
		}
		return 0
	}
	from := c.ServiceStartDate
	if start.After(from) {
		from = start
	}
	to := c.ServiceEndDate
	if end.Before(to) {
		to = end
	}
	if !to.After(from) {
		return 0
	}
	return c.Value * float64(to.Sub(from)) / float64(total)
}
