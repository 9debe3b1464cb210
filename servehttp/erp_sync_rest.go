package servehttp

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"shopfloor/bizerror"
	"shopfloor/config"
	"shopfloor/erpsync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathErpSyncRequests = "/v1/erp-sync-requests"
	PathErpSyncStates   = "/v1/erp-sync-states"
)

type ErpSyncService interface {
	SyncTenant(ctx context.Context, tenant config.Tenant, opts erpsync.Options) erpsync.TenantResult
	SyncAll(ctx context.Context, tenants []config.Tenant, opts erpsync.Options) []erpsync.TenantResult
	States() []erpsync.TenantState
}

// TenantLister lists the tenants of the current config snapshot.
type TenantLister func() []config.Tenant

type SyncRequest struct {
	Tenant   string `json:"tenant"`
	Limit    int    `json:"limit" binding:"gte=0"`
	AutoMode bool   `json:"autoMode"`
}

func RegisterErpSyncRestAPI(r *gin.Engine, service ErpSyncService, tenants TenantLister, middleWares ...gin.HandlerFunc) {
	r.POST(PathErpSyncRequests, append(middleWares, func(c *gin.Context) {
		req := SyncRequest{}
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil && err != io.EOF {
			badParam(err)
		}
		opts := erpsync.Options{Limit: req.Limit, AutoMode: req.AutoMode}
		all := tenants()
		if req.Tenant == "" {
			results := service.SyncAll(c.Request.Context(), all, opts)
			c.JSON(http.StatusOK, gin.H{"results": results, "exitCode": erpsync.ExitCode(results)})
			return
		}
		for _, t := range all {
			if t.Code == req.Tenant {
				result := service.SyncTenant(c.Request.Context(), t, opts)
				results := []erpsync.TenantResult{result}
				c.JSON(http.StatusOK, gin.H{"results": results, "exitCode": erpsync.ExitCode(results)})
				return
			}
		}
		panic(&bizerror.ErrBadParam{Cause: fmt.Errorf("unknown tenant %q", req.Tenant)})
	})...)

	r.GET(PathErpSyncStates, append(middleWares, func(c *gin.Context) {
		c.JSON(http.StatusOK, service.States())
	})...)
}
