// Package reporting computes dashboards, growth series, summaries and CSV
// exports from a point-in-time copy of every collection.
package reporting

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

// Snapshot holds every collection the reducers read.
type Snapshot struct {
	Customers  []*models.Customer
	Contacts   []*models.Contact
	Contracts  []*models.Contract
	GPAccounts []*models.GPAccount
	Clusters   []*models.Cluster
	Nodes      []*models.Node
	VMs        []*models.VM
}

// LoadSnapshot reads all collections concurrently.
func LoadSnapshot(ctx context.Context, s store.Store) (*Snapshot, error) {
	snap := &Snapshot{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.Customers, err = s.ListCustomers(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Contacts, err = s.ListContacts(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		snap.Contracts, err = s.ListContracts(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		snap.GPAccounts, err = s.ListGPAccounts(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		snap.Clusters, err = s.ListClusters(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Nodes, err = s.ListNodes(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		snap.VMs, err = s.ListVMs(ctx, models.VMFilter{})
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}
