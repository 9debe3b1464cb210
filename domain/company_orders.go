package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// CompanyOrder mirrors one ERP manufacturing order row.
type CompanyOrder struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	CompanyCode string `json:"companyCode" gorm:"size:32;unique_index:uni_company_order_key"`
	ErpOrderNo  string `json:"erpOrderNo" gorm:"size:64;unique_index:uni_company_order_key"`
	ProductID   string `json:"productId" gorm:"size:64;unique_index:uni_company_order_key"`

	PlannedQty       int64  `json:"plannedQty"`
	OrderDate        string `json:"orderDate" gorm:"size:32"`
	PlannedStartDate string `json:"plannedStartDate" gorm:"size:32"`
	PlannedShipDate  string `json:"plannedShipDate" gorm:"size:32"`
	CompletionStatus int    `json:"completionStatus"`
	BillStatus       int    `json:"billStatus"`

	IsConverted  bool      `json:"isConverted" gorm:"index"`
	LastSyncTime time.Time `json:"lastSyncTime"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
