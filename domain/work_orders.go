package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
)

// WorkOrderKey is the semantic identity of a work order.
type WorkOrderKey struct {
	CompanyCode string `json:"companyCode"`
	OrderNumber string `json:"orderNumber"`
	ProductCode string `json:"productCode"`
}

func (k WorkOrderKey) String() string {
	return k.CompanyCode + "/" + k.OrderNumber + "/" + k.ProductCode
}

// ParseWorkOrderKey parses COMPANY/ORDER/PRODUCT. The order number may itself contain slashes.
func ParseWorkOrderKey(s string) (WorkOrderKey, error) {
	first := strings.Index(s, "/")
	last := strings.LastIndex(s, "/")
	if first <= 0 || last == first || last == len(s)-1 {
		return WorkOrderKey{}, fmt.Errorf("invalid work order key %q, expect COMPANY/ORDER/PRODUCT", s)
	}
	return WorkOrderKey{CompanyCode: s[:first], OrderNumber: s[first+1 : last], ProductCode: s[last+1:]}, nil
}

type WorkOrder struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	CompanyCode string `json:"companyCode" gorm:"size:32;unique_index:uni_work_order_key"`
	OrderNumber string `json:"orderNumber" gorm:"size:64;unique_index:uni_work_order_key"`
	ProductCode string `json:"productCode" gorm:"size:64;unique_index:uni_work_order_key"`

	PlannedQuantity   int64       `json:"plannedQuantity"`
	CompletedQuantity int64       `json:"completedQuantity"`
	Status            Status      `json:"status" gorm:"size:16;index"`
	OrderSource       OrderSource `json:"orderSource" gorm:"size:24"`

	PlannedStartDate *time.Time `json:"plannedStartDate"`
	PlannedEndDate   *time.Time `json:"plannedEndDate"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

func (w *WorkOrder) Key() WorkOrderKey {
	return WorkOrderKey{CompanyCode: w.CompanyCode, OrderNumber: w.OrderNumber, ProductCode: w.ProductCode}
}

type WorkOrderProcess struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	WorkOrderID types.ID `json:"workOrderId" gorm:"unique_index:uni_work_order_step"`
	StepOrder   int      `json:"stepOrder" gorm:"unique_index:uni_work_order_step"`
	ProcessName string   `json:"processName" gorm:"size:64"`
	AdHoc       bool     `json:"adHoc"`

	PlannedQuantity   int64  `json:"plannedQuantity"`
	CompletedQuantity int64  `json:"completedQuantity"`
	Status            Status `json:"status" gorm:"size:16"`

	ActualStartTime *time.Time `json:"actualStartTime"`
	ActualEndTime   *time.Time `json:"actualEndTime"`
}

// WorkOrderDetail is a work order together with its ordered processes.
type WorkOrderDetail struct {
	WorkOrder
	Processes []WorkOrderProcess `json:"processes"`
}

// ProcessDefinition is a known process of a company; an empty company code applies to all companies.
type ProcessDefinition struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	CompanyCode string   `json:"companyCode" gorm:"size:32;unique_index:uni_process_definition"`
	Name        string   `json:"name" gorm:"size:64;unique_index:uni_process_definition"`
	Complexity  float64  `json:"complexity"`
}
