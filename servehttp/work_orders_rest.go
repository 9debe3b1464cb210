package servehttp

import (
	"context"
	"net/http"

	"shopfloor/domain"
	"shopfloor/domain/completion"
	"shopfloor/domain/transfer"

	"github.com/gin-gonic/gin"
)

var PathWorkOrders = "/v1/work-orders"

type CompletionService interface {
	CheckByKey(ctx context.Context, key domain.WorkOrderKey, method domain.CompletionMethod) (*completion.Result, error)
}

type TransferService interface {
	TransferByKey(ctx context.Context, key domain.WorkOrderKey, method domain.CompletionMethod) (*transfer.Result, error)
}

type methodQuery struct {
	Method string `form:"method" binding:"omitempty,oneof=process report both"`
}

// RegisterWorkOrdersRestAPI serves completion checks and transfers. The key is COMPANY/ORDER/PRODUCT, url encoded.
func RegisterWorkOrdersRestAPI(r *gin.Engine, judge CompletionService, transferService TransferService, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkOrders, middleWares...)
	g.GET("/:key/completion", func(c *gin.Context) {
		key, method := workOrderKeyAndMethod(c)
		result, err := judge.CheckByKey(c.Request.Context(), key, method)
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, result)
	})
	g.POST("/:key/transfers", func(c *gin.Context) {
		key, method := workOrderKeyAndMethod(c)
		result, err := transferService.TransferByKey(c.Request.Context(), key, method)
		if err != nil {
			panic(err)
		}
		status := http.StatusCreated
		if result.AlreadyTransferred {
			status = http.StatusOK
		}
		c.JSON(status, result)
	})
}

func workOrderKeyAndMethod(c *gin.Context) (domain.WorkOrderKey, domain.CompletionMethod) {
	key, err := domain.ParseWorkOrderKey(c.Param("key"))
	if err != nil {
		badParam(err)
	}
	q := methodQuery{}
	if err := c.ShouldBindQuery(&q); err != nil {
		badParam(err)
	}
	method, err := completion.ParseMethod(q.Method)
	if err != nil {
		badParam(err)
	}
	return key, method
}
