package cli

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	notifPriority string
	notifKind     string

	auditTable string
	auditDays  int
	auditPage  int
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show inventory totals, capacity and alert counts",
	RunE:  runDashboard,
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"alerts"},
	Short:   "List password rotation and contract expiry alerts",
	RunE:    runNotifications,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent audit log entries",
	RunE:  runAudit,
}

func init() {
	notificationsCmd.Flags().StringVar(&notifPriority, "priority", "", "filter by priority: high, medium or low")
	notificationsCmd.Flags().StringVar(&notifKind, "kind", "", "filter by kind, e.g. vm_password_overdue")

	auditCmd.Flags().StringVar(&auditTable, "table", "", "filter by table, e.g. vms")
	auditCmd.Flags().IntVar(&auditDays, "days", 0, "days to look back (default preferences.default_date_range)")
	auditCmd.Flags().IntVar(&auditPage, "page", 1, "page number")

	rootCmd.AddCommand(dashboardCmd, notificationsCmd, auditCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	client, err := newAuthenticatedClient()
	if err != nil {
		return err
	}
	d, err := client.Dashboard()
	if err != nil {
		return err
	}
	if outputFormat != formatTable {
		return render(cmd.OutOrStdout(), d, nil)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Customers:\t%d\n", d.Customers)
	fmt.Fprintf(w, "Contacts:\t%d\n", d.Contacts)
	fmt.Fprintf(w, "VMs:\t%d%s\n", d.VMs, breakdown(d.VMsByStatus))
	fmt.Fprintf(w, "Orphan VMs:\t%d\n", d.OrphanVMs)
	fmt.Fprintf(w, "Clusters:\t%d\n", d.Clusters)
	fmt.Fprintf(w, "Nodes:\t%d\n", d.Nodes)
	fmt.Fprintf(w, "Contracts:\t%d%s\n", d.Contracts, breakdown(d.ContractsByStatus))
	fmt.Fprintf(w, "Contract value:\t%.2f (active %.2f)\n", d.TotalContractValue, d.ActiveContractValue)
	fmt.Fprintf(w, "GP accounts:\t%d\n", d.GPAccounts)
	fmt.Fprintln(w)

	inf := d.Infrastructure
	fmt.Fprintln(w, "RESOURCE\tTOTAL\tALLOCATED\tAVAILABLE\tVM DEMAND")
	fmt.Fprintf(w, "CPU\t%s\t%s\t%s\t%s\n",
		ghz(inf.TotalCPUGHz), ghz(inf.AllocatedCPUGHz), ghz(inf.AvailableCPUGHz), ghz(d.VMResources.CPUGHz))
	fmt.Fprintf(w, "RAM\t%s\t%s\t%s\t%s\n",
		gb(inf.TotalRAMGB), gb(inf.AllocatedRAMGB), gb(inf.AvailableRAMGB), gb(d.VMResources.RAMGB))
	fmt.Fprintf(w, "Storage\t%s\t%s\t%s\t%s\n",
		gb(inf.TotalStorageGB), gb(inf.AllocatedStorageGB), gb(inf.AvailableStorageGB), gb(d.VMResources.StorageGB))
	fmt.Fprintln(w)

	a := d.Alerts
	fmt.Fprintf(w, "Alerts:\t%d\n", a.Total())
	fmt.Fprintf(w, "  VM passwords:\t%d overdue, %d due soon\n", a.VMPasswordOverdue, a.VMPasswordDueSoon)
	fmt.Fprintf(w, "  GP passwords:\t%d overdue, %d due soon\n", a.GPPasswordOverdue, a.GPPasswordDueSoon)
	fmt.Fprintf(w, "  Contracts:\t%d expired, %d expiring soon\n", a.ContractsExpired, a.ContractsExpiringSoon)
	return w.Flush()
}

// breakdown renders a status count map as " (Active 3, Inactive 1)".
func breakdown(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := " ("
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %d", k, m[k])
	}
	return s + ")"
}

func runNotifications(cmd *cobra.Command, args []string) error {
	client, err := newAuthenticatedClient()
	if err != nil {
		return err
	}
	query := url.Values{}
	if notifPriority != "" {
		query.Set("priority", notifPriority)
	}
	if notifKind != "" {
		query.Set("kind", notifKind)
	}
	resp, err := client.Notifications(query)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), resp, func() *table {
		t := newTable("notifications", "PRIORITY", "KIND", "ENTITY", "DUE", "MESSAGE")
		for _, n := range resp.Notifications {
			t.add(string(n.Priority), string(n.Kind), n.EntityName, day(n.DueDate), n.Message)
		}
		return t
	})
}

func runAudit(cmd *cobra.Command, args []string) error {
	client, err := newAuthenticatedClient()
	if err != nil {
		return err
	}
	days := auditDays
	if days <= 0 {
		days = viper.GetInt(PrefDefaultDateRange)
	}
	query := url.Values{
		"page":     {strconv.Itoa(auditPage)},
		"per_page": {strconv.Itoa(viper.GetInt(PrefItemsPerPage))},
	}
	if days > 0 {
		query.Set("from", time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02"))
	}
	if auditTable != "" {
		query.Set("table", auditTable)
	}
	resp, err := client.AuditLogs(query)
	if err != nil {
		return err
	}
	err = render(cmd.OutOrStdout(), resp, func() *table {
		t := newTable("audit_logs", "TIME", "TABLE", "OPERATION", "RECORD", "BY", "DESCRIPTION")
		for _, l := range resp.AuditLogs {
			t.add(l.Timestamp.Local().Format("2006-01-02 15:04"), l.TableName, string(l.Operation),
				l.RecordID, l.ChangedBy, l.Description)
		}
		return t
	})
	if err != nil || outputFormat != formatTable || len(resp.AuditLogs) == 0 {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Page %d, %d entries total.\n", resp.Page, resp.Total)
	return err
}
