package servehttp

import (
	"context"
	"net/http"

	"shopfloor/domain"
	"shopfloor/domain/onsite"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var PathOnsiteEvents = "/v1/onsite-events"

type OnsiteService interface {
	Report(ctx context.Context, e *onsite.Event) (*domain.OnsiteReport, error)
}

func RegisterOnsiteRestAPI(r *gin.Engine, service OnsiteService, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathOnsiteEvents, middleWares...)
	g.POST("", func(c *gin.Context) {
		e := onsite.Event{}
		if err := c.ShouldBindBodyWith(&e, binding.JSON); err != nil {
			badParam(err)
		}
		report, err := service.Report(c.Request.Context(), &e)
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusCreated, report)
	})
}
