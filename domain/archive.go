package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// CompletedWorkOrder is the immutable archive head of a finished work order.
type CompletedWorkOrder struct {
	ID                types.ID `json:"id" gorm:"primary_key"`
	SourceWorkOrderID types.ID `json:"sourceWorkOrderId" gorm:"unique_index:uni_completed_source"`

	CompanyCode string `json:"companyCode" gorm:"size:32;unique_index:uni_completed_key"`
	OrderNumber string `json:"orderNumber" gorm:"size:64;unique_index:uni_completed_key"`
	ProductCode string `json:"productCode" gorm:"size:64;unique_index:uni_completed_key"`

	OrderSource      OrderSource      `json:"orderSource" gorm:"size:24"`
	CompletionMethod CompletionMethod `json:"completionMethod" gorm:"size:16"`

	PlannedQuantity int64   `json:"plannedQuantity"`
	GoodQuantity    int64   `json:"goodQuantity"`
	DefectQuantity  int64   `json:"defectQuantity"`
	TotalWorkHours  float64 `json:"totalWorkHours"`
	OvertimeHours   float64 `json:"overtimeHours"`
	ProcessCount    int     `json:"processCount"`
	ReportCount     int     `json:"reportCount"`

	SourceCreatedAt time.Time  `json:"sourceCreatedAt"`
	StartedAt       *time.Time `json:"startedAt"`
	CompletedAt     time.Time  `json:"completedAt"`
	ArchivedAt      time.Time  `json:"archivedAt"`
}

func (c *CompletedWorkOrder) Key() WorkOrderKey {
	return WorkOrderKey{CompanyCode: c.CompanyCode, OrderNumber: c.OrderNumber, ProductCode: c.ProductCode}
}

type CompletedProcess struct {
	ID                   types.ID `json:"id" gorm:"primary_key"`
	CompletedWorkOrderID types.ID `json:"completedWorkOrderId" gorm:"index"`
	StepOrder            int      `json:"stepOrder"`
	ProcessName          string   `json:"processName" gorm:"size:64"`
	Status               Status   `json:"status" gorm:"size:16"`

	PlannedQuantity int64     `json:"plannedQuantity"`
	GoodQuantity    int64     `json:"goodQuantity"`
	DefectQuantity  int64     `json:"defectQuantity"`
	WorkHours       float64   `json:"workHours"`
	OvertimeHours   float64   `json:"overtimeHours"`
	Operators       StringSet `json:"operators" sql:"type:TEXT"`
	Equipment       StringSet `json:"equipment" sql:"type:TEXT"`

	FirstReportDate *time.Time `json:"firstReportDate"`
	LastReportDate  *time.Time `json:"lastReportDate"`
	ActualStartTime *time.Time `json:"actualStartTime"`
	ActualEndTime   *time.Time `json:"actualEndTime"`
}

type CompletedReport struct {
	ID                   types.ID `json:"id" gorm:"primary_key"`
	CompletedWorkOrderID types.ID `json:"completedWorkOrderId" gorm:"index"`
	CompletedProcessID   types.ID `json:"completedProcessId"`
	SourceFillWorkID     types.ID `json:"sourceFillWorkId"`

	Operator       string     `json:"operator" gorm:"size:64"`
	ProcessName    string     `json:"processName" gorm:"size:64"`
	WorkDate       time.Time  `json:"workDate"`
	StartTime      string     `json:"startTime" gorm:"size:5"`
	EndTime        string     `json:"endTime" gorm:"size:5"`
	WorkQuantity   int64      `json:"workQuantity"`
	DefectQuantity int64      `json:"defectQuantity"`
	WorkHours      float64    `json:"workHours"`
	OvertimeHours  float64    `json:"overtimeHours"`
	BreakHours     float64    `json:"breakHours"`
	Equipment      string     `json:"equipment" gorm:"size:64"`
	Approver       string     `json:"approver" gorm:"size:64"`
	ApprovedAt     *time.Time `json:"approvedAt"`
	Remarks        string     `json:"remarks" sql:"type:TEXT"`
	AbnormalNotes  string     `json:"abnormalNotes" sql:"type:TEXT"`
}

// CompletedWorkOrderDetail is the whole archived aggregate.
type CompletedWorkOrderDetail struct {
	CompletedWorkOrder
	Processes []CompletedProcess `json:"processes"`
	Reports   []CompletedReport  `json:"reports"`
}

// Models lists every entity migrated by the service.
func Models() []interface{} {
	return []interface{}{
		&CompanyOrder{}, &WorkOrder{}, &WorkOrderProcess{}, &ProcessDefinition{},
		&FillWork{}, &OnsiteReport{}, &AllocationLog{},
		&CompletedWorkOrder{}, &CompletedProcess{}, &CompletedReport{},
	}
}
