package central

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/auth"
	"github.com/why-xn/infradesk/internal/inventory"
	"github.com/why-xn/infradesk/internal/models"
)

const maxBodyBytes = 10 << 20

// contractView adds the status the contract has today, which differs from
// the stored one once the service end date has passed.
type contractView struct {
	*models.Contract
	EffectiveStatus models.ContractStatus `json:"effective_status"`
}

func (s *HTTPServer) viewContract(ct *models.Contract) contractView {
	return contractView{Contract: ct, EffectiveStatus: alerts.EffectiveContractStatus(ct, s.now())}
}

// --- generic helpers ---

func getByID[T any](c *gin.Context, get func(context.Context, string) (T, error)) {
	v, err := get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func create[T any](c *gin.Context, fn func(context.Context, string, *T) error) {
	var v T
	if err := c.ShouldBindJSON(&v); err != nil {
		respondError(c, badRequest(err))
		return
	}
	if err := fn(c.Request.Context(), auth.Actor(c), &v); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, &v)
}

func update[T any](c *gin.Context, fn func(context.Context, string, string, []byte) (T, error)) {
	patch, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		respondError(c, badRequest(err))
		return
	}
	v, err := fn(c.Request.Context(), auth.Actor(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func remove(c *gin.Context, fn func(context.Context, string, string) error) {
	if err := fn(c.Request.Context(), auth.Actor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// emptyIfNil keeps list responses as [] rather than null.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// --- Customers ---

func (s *HTTPServer) handleListCustomers(c *gin.Context) {
	customers, err := s.svc.ListCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": emptyIfNil(customers)})
}

func (s *HTTPServer) handleGetCustomer(c *gin.Context) {
	getByID(c, s.svc.GetCustomer)
}

func (s *HTTPServer) handleCreateCustomer(c *gin.Context) {
	var req inventory.NewCustomer
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(err))
		return
	}
	detail, err := s.svc.CreateCustomer(c.Request.Context(), auth.Actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func (s *HTTPServer) handleUpdateCustomer(c *gin.Context) {
	update(c, s.svc.UpdateCustomer)
}

func (s *HTTPServer) handleDeleteCustomer(c *gin.Context) {
	remove(c, s.svc.DeleteCustomer)
}

// --- Contacts ---

func (s *HTTPServer) handleListCustomerContacts(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.svc.GetCustomer(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	contacts, err := s.svc.ListContacts(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": emptyIfNil(contacts)})
}

func (s *HTTPServer) handleCreateCustomerContact(c *gin.Context) {
	create(c, func(ctx context.Context, actor string, ct *models.Contact) error {
		ct.CustomerID = c.Param("id")
		return s.svc.CreateContact(ctx, actor, ct)
	})
}

func (s *HTTPServer) handleListContacts(c *gin.Context) {
	contacts, err := s.svc.ListContacts(c.Request.Context(), c.Query("customer_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": emptyIfNil(contacts)})
}

func (s *HTTPServer) handleGetContact(c *gin.Context) {
	getByID(c, s.svc.GetContact)
}

func (s *HTTPServer) handleUpdateContact(c *gin.Context) {
	update(c, s.svc.UpdateContact)
}

func (s *HTTPServer) handleDeleteContact(c *gin.Context) {
	remove(c, s.svc.DeleteContact)
}

// --- Contracts ---

func (s *HTTPServer) handleListContracts(c *gin.Context) {
	contracts, err := s.svc.ListContracts(c.Request.Context(), c.Query("customer_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]contractView, 0, len(contracts))
	for _, ct := range contracts {
		views = append(views, s.viewContract(ct))
	}
	c.JSON(http.StatusOK, gin.H{"contracts": views})
}

func (s *HTTPServer) handleGetContract(c *gin.Context) {
	ct, err := s.svc.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.viewContract(ct))
}

func (s *HTTPServer) handleCreateContract(c *gin.Context) {
	create(c, s.svc.CreateContract)
}

func (s *HTTPServer) handleUpdateContract(c *gin.Context) {
	update(c, s.svc.UpdateContract)
}

func (s *HTTPServer) handleDeleteContract(c *gin.Context) {
	remove(c, s.svc.DeleteContract)
}

// --- GP Accounts ---

func (s *HTTPServer) handleListGPAccounts(c *gin.Context) {
	accounts, err := s.svc.ListGPAccounts(c.Request.Context(), c.Query("customer_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gp_accounts": emptyIfNil(accounts)})
}

func (s *HTTPServer) handleGetGPAccount(c *gin.Context) {
	getByID(c, s.svc.GetGPAccount)
}

func (s *HTTPServer) handleCreateGPAccount(c *gin.Context) {
	create(c, s.svc.CreateGPAccount)
}

func (s *HTTPServer) handleUpdateGPAccount(c *gin.Context) {
	update(c, s.svc.UpdateGPAccount)
}

func (s *HTTPServer) handleDeleteGPAccount(c *gin.Context) {
	remove(c, s.svc.DeleteGPAccount)
}

// --- Clusters ---

func (s *HTTPServer) handleListClusters(c *gin.Context) {
	clusters, err := s.svc.ListClusters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": emptyIfNil(clusters)})
}

func (s *HTTPServer) handleGetCluster(c *gin.Context) {
	getByID(c, s.svc.GetCluster)
}

func (s *HTTPServer) handleCreateCluster(c *gin.Context) {
	create(c, s.svc.CreateCluster)
}

func (s *HTTPServer) handleUpdateCluster(c *gin.Context) {
	update(c, s.svc.UpdateCluster)
}

func (s *HTTPServer) handleDeleteCluster(c *gin.Context) {
	remove(c, s.svc.DeleteCluster)
}

// --- Nodes ---

func (s *HTTPServer) handleListNodes(c *gin.Context) {
	nodes, err := s.svc.ListNodes(c.Request.Context(), c.Query("cluster_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": emptyIfNil(nodes)})
}

func (s *HTTPServer) handleGetNode(c *gin.Context) {
	getByID(c, s.svc.GetNode)
}

func (s *HTTPServer) handleCreateNode(c *gin.Context) {
	create(c, s.svc.CreateNode)
}

func (s *HTTPServer) handleUpdateNode(c *gin.Context) {
	update(c, s.svc.UpdateNode)
}

func (s *HTTPServer) handleDeleteNode(c *gin.Context) {
	remove(c, s.svc.DeleteNode)
}

// --- VMs ---

func (s *HTTPServer) handleListVMs(c *gin.Context) {
	filter := models.VMFilter{
		CustomerID: c.Query("customer_id"),
		ClusterID:  c.Query("cluster_id"),
		NodeID:     c.Query("node_id"),
		Status:     models.VMStatus(c.Query("status")),
	}
	vms, err := s.svc.ListVMs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vms": emptyIfNil(vms)})
}

func (s *HTTPServer) handleGetVM(c *gin.Context) {
	getByID(c, s.svc.GetVM)
}

func (s *HTTPServer) handleCreateVM(c *gin.Context) {
	create(c, s.svc.CreateVM)
}

func (s *HTTPServer) handleUpdateVM(c *gin.Context) {
	update(c, s.svc.UpdateVM)
}

func (s *HTTPServer) handleDeleteVM(c *gin.Context) {
	remove(c, s.svc.DeleteVM)
}

func unknownEntity(entity string) error {
	return fmt.Errorf("unknown entity %q: %w", entity, inventory.ErrNotFound)
}
