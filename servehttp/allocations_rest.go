package servehttp

import (
	"net/http"

	"shopfloor/allocation"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var PathAllocations = "/v1/allocations"

// AllocationPreview previews a split without storing anything. Actual enables the accuracy report.
type AllocationPreview struct {
	Rows          []allocation.Row          `json:"rows" binding:"required,min=1"`
	TotalQuantity int64                     `json:"totalQuantity" binding:"gte=0"`
	Policy        string                    `json:"policy" binding:"omitempty,oneof=time process efficiency hybrid"`
	Hybrid        *allocation.HybridWeights `json:"hybrid"`
	Actual        []int64                   `json:"actual"`
}

type AllocationPreviewResult struct {
	*allocation.Result
	Accuracy *allocation.Accuracy `json:"accuracy,omitempty"`
}

func RegisterAllocationsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	r.POST(PathAllocations, append(middleWares, func(c *gin.Context) {
		preview := AllocationPreview{}
		if err := c.ShouldBindBodyWith(&preview, binding.JSON); err != nil {
			badParam(err)
		}
		policy, err := allocation.ParsePolicy(preview.Policy)
		if err != nil {
			badParam(err)
		}
		cfg := allocation.Config{Policy: policy, Hybrid: allocation.DefaultHybridWeights}
		if preview.Hybrid != nil {
			cfg.Hybrid = *preview.Hybrid
		}
		result, err := allocation.Allocate(preview.Rows, preview.TotalQuantity, cfg)
		if err != nil {
			panic(err)
		}
		out := AllocationPreviewResult{Result: result}
		if len(preview.Actual) > 0 {
			accuracy := allocation.MeasureAccuracy(result.Quantities, preview.Actual)
			out.Accuracy = &accuracy
		}
		c.JSON(http.StatusOK, out)
	})...)
}
