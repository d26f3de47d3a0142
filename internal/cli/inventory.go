package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/why-xn/infradesk/internal/models"
)

var (
	nodesCluster string

	vmsCustomer string
	vmsCluster  string
	vmsNode     string
	vmsStatus   string

	vmDeleteYes bool
)

var customersCmd = &cobra.Command{
	Use:     "customers",
	Aliases: []string{"customer"},
	Short:   "List or show customers",
}

var customersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List customers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		customers, err := client.ListCustomers()
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), customers, func() *table {
			t := newTable("customers", "ID", "DEPARTMENT", "CREATED")
			for _, c := range customers {
				t.add(c.ID, c.DepartmentName, day(c.CreatedAt))
			}
			return t
		})
	},
}

var customersGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		c, err := client.GetCustomer(args[0])
		if err != nil {
			return err
		}
		if outputFormat == formatTable {
			return writeYAML(cmd.OutOrStdout(), c)
		}
		return render(cmd.OutOrStdout(), c, nil)
	},
}

var clustersCmd = &cobra.Command{
	Use:     "clusters",
	Aliases: []string{"cluster"},
	Short:   "List clusters with their capacity",
}

var clustersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clusters",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		clusters, err := client.ListClusters()
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), clusters, func() *table {
			t := newTable("clusters", "ID", "NAME", "CODE", "PURPOSE", "STATUS", "NODES", "VMS",
				"CPU FREE", "RAM FREE", "STORAGE FREE")
			for _, c := range clusters {
				t.add(c.ID, c.ClusterName, c.ClusterCode, orDash(string(c.ClusterPurpose)), string(c.Status),
					strconv.Itoa(c.NodeCount), strconv.Itoa(c.VMCount),
					usage(ghz(c.AvailableCPUGHz), ghz(c.TotalCPUGHz)),
					usage(gb(c.AvailableRAMGB), gb(c.TotalRAMGB)),
					usage(gb(c.AvailableStorageGB), gb(c.TotalStorageGB)))
			}
			return t
		})
	},
}

var nodesCmd = &cobra.Command{
	Use:     "nodes",
	Aliases: []string{"node"},
	Short:   "List nodes with their capacity",
}

var nodesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List nodes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		nodes, err := client.ListNodes(nodesCluster)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), nodes, func() *table {
			t := newTable("nodes", "ID", "NAME", "CLUSTER", "STATUS", "VMS",
				"CPU FREE", "RAM FREE", "STORAGE FREE")
			for _, n := range nodes {
				t.add(n.ID, n.NodeName, n.ClusterID, string(n.Status), strconv.Itoa(n.VMCount),
					usage(ghz(n.AvailableCPUGHz), ghz(n.TotalCPUGHz)),
					usage(gb(n.AvailableRAMGB), gb(n.TotalRAMGB)),
					usage(gb(n.AvailableStorageGB), gb(n.TotalStorageGB)))
			}
			return t
		})
	},
}

func usage(free, total string) string {
	return free + " / " + total
}

var vmsCmd = &cobra.Command{
	Use:     "vms",
	Aliases: []string{"vm"},
	Short:   "List, show or delete VMs",
}

var vmsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List VMs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		query := url.Values{}
		for key, val := range map[string]string{
			"customer_id": vmsCustomer, "cluster_id": vmsCluster, "node_id": vmsNode, "status": vmsStatus,
		} {
			if val != "" {
				query.Set(key, val)
			}
		}
		vms, err := client.ListVMs(query)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), vms, func() *table {
			t := newTable("vms", "ID", "NAME", "STATUS", "CPU", "RAM", "STORAGE", "NODE", "PASSWORD DUE", "END")
			for _, vm := range vms {
				t.add(vm.ID, vm.VMName, string(vm.Status), vmCPU(vm), gb(vm.RAMGB), gb(vm.StorageGB),
					vm.NodeID, day(vm.NextPasswordDueDate), day(vm.ServiceEndDate))
			}
			return t
		})
	},
}

func vmCPU(vm *models.VM) string {
	if vm.CPU != "" {
		return vm.CPU
	}
	if vm.CPUGHz > 0 {
		return ghz(vm.CPUGHz)
	}
	return "-"
}

var vmsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a VM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		vm, err := client.GetVM(args[0])
		if err != nil {
			return err
		}
		if outputFormat != formatTable {
			return render(cmd.OutOrStdout(), vm, nil)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%s\n", vm.ID)
		fmt.Fprintf(w, "Name:\t%s\n", vm.VMName)
		fmt.Fprintf(w, "Status:\t%s\n", vm.Status)
		fmt.Fprintf(w, "Customer:\t%s\n", orDash(vm.CustomerID))
		fmt.Fprintf(w, "Cluster / node:\t%s / %s\n", orDash(vm.ClusterID), vm.NodeID)
		fmt.Fprintf(w, "CPU:\t%s\n", vmCPU(vm))
		fmt.Fprintf(w, "RAM:\t%s\n", gb(vm.RAMGB))
		fmt.Fprintf(w, "Storage:\t%s\n", gb(vm.StorageGB))
		fmt.Fprintf(w, "Service:\t%s to %s\n", day(vm.ServiceStartDate), day(vm.ServiceEndDate))
		fmt.Fprintf(w, "Password due:\t%s\n", day(vm.NextPasswordDueDate))
		fmt.Fprintf(w, "Public IP:\t%s\n", orDash(vm.PublicIP))
		fmt.Fprintf(w, "Management IP:\t%s\n", orDash(vm.ManagementIP))
		fmt.Fprintf(w, "Private IPs:\t%s\n", orDash(strings.Join(vm.PrivateIPs, ", ")))
		fmt.Fprintf(w, "Allowed ports:\t%s\n", orDash(strings.Join(vm.AllowedPorts, ", ")))
		if vm.Remarks != "" {
			fmt.Fprintf(w, "Remarks:\t%s\n", vm.Remarks)
		}
		return w.Flush()
	},
}

var vmsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a VM and release its capacity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !vmDeleteYes {
			return fmt.Errorf("refusing to delete vm %s without --yes", args[0])
		}
		client, err := newAuthenticatedClient()
		if err != nil {
			return err
		}
		if err := client.DeleteVM(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "vm %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	customersCmd.AddCommand(customersListCmd, customersGetCmd)
	clustersCmd.AddCommand(clustersListCmd)

	nodesListCmd.Flags().StringVar(&nodesCluster, "cluster", "", "only nodes of this cluster id")
	nodesCmd.AddCommand(nodesListCmd)

	vmsListCmd.Flags().StringVar(&vmsCustomer, "customer", "", "filter by customer id")
	vmsListCmd.Flags().StringVar(&vmsCluster, "cluster", "", "filter by cluster id")
	vmsListCmd.Flags().StringVar(&vmsNode, "node", "", "filter by node id")
	vmsListCmd.Flags().StringVar(&vmsStatus, "status", "", "filter by status, e.g. Active")
	vmsDeleteCmd.Flags().BoolVarP(&vmDeleteYes, "yes", "y", false, "confirm deletion")
	vmsCmd.AddCommand(vmsListCmd, vmsGetCmd, vmsDeleteCmd)

	rootCmd.AddCommand(customersCmd, clustersCmd, nodesCmd, vmsCmd)
}
