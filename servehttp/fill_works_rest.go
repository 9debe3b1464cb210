package servehttp

import (
	"context"
	"fmt"
	"net/http"

	"shopfloor/domain"
	"shopfloor/domain/fillwork"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathFillWorks      = "/v1/fill-works"
	PathFillWorkSplits = "/v1/fill-work-splits"
)

type FillWorkService interface {
	Submit(ctx context.Context, s *fillwork.Submission) (*domain.FillWork, error)
	Update(ctx context.Context, id types.ID, s *fillwork.Submission) (*domain.FillWork, error)
	Decide(ctx context.Context, id types.ID, d *fillwork.Decision) (*domain.FillWork, error)
	SubmitSplit(ctx context.Context, split *fillwork.SplitSubmission, actor string) (*fillwork.SplitResult, error)
}

func RegisterFillWorksRestAPI(r *gin.Engine, service FillWorkService, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathFillWorks, middleWares...)
	g.POST("", func(c *gin.Context) {
		s := fillwork.Submission{}
		if err := c.ShouldBindBodyWith(&s, binding.JSON); err != nil {
			badParam(err)
		}
		fw, err := service.Submit(c.Request.Context(), &s)
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusCreated, fw)
	})
	g.PUT("/:id", func(c *gin.Context) {
		id := pathID(c)
		s := fillwork.Submission{}
		if err := c.ShouldBindBodyWith(&s, binding.JSON); err != nil {
			badParam(err)
		}
		fw, err := service.Update(c.Request.Context(), id, &s)
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, fw)
	})
	g.POST("/:id/decisions", func(c *gin.Context) {
		id := pathID(c)
		d := fillwork.Decision{}
		if err := c.ShouldBindBodyWith(&d, binding.JSON); err != nil {
			badParam(err)
		}
		fw, err := service.Decide(c.Request.Context(), id, &d)
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, fw)
	})

	r.POST(PathFillWorkSplits, append(middleWares, func(c *gin.Context) {
		split := fillwork.SplitSubmission{}
		if err := c.ShouldBindBodyWith(&split, binding.JSON); err != nil {
			badParam(err)
		}
		actor := c.GetHeader("X-Actor")
		if actor == "" {
			actor = split.Operator
		}
		result, err := service.SubmitSplit(c.Request.Context(), &split, actor)
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusCreated, result)
	})...)
}

func pathID(c *gin.Context) types.ID {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		badParam(fmt.Errorf("invalid id '%s'", c.Param("id")))
	}
	return id
}
