package erpsync

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/config"
	"shopfloor/domain"

	"github.com/jinzhu/gorm"
	otgorm "github.com/smacker/opentracing-gorm"
	"github.com/sirupsen/logrus"
)

// ErpOrderRow is one row of the tenant manufacturing order view.
type ErpOrderRow struct {
	Flag            int     `gorm:"column:Flag"`
	MKOrdNO         string  `gorm:"column:MKOrdNO"`
	MKOrdDate       string  `gorm:"column:MKOrdDate"`
	ProductID       string  `gorm:"column:ProductID"`
	ProdtQty        float64 `gorm:"column:ProdtQty"`
	EstTakeMatDate  string  `gorm:"column:EstTakeMatDate"`
	EstStockOutDate string  `gorm:"column:EstStockOutDate"`
	CompleteStatus  int     `gorm:"column:CompleteStatus"`
	BillStatus      *int    `gorm:"column:BillStatus"`
}

type Source interface {
	Fetch(ctx context.Context, tenant config.Tenant, limit int) ([]ErpOrderRow, error)
}

const selectOpenOrders = "SELECT Flag, MKOrdNO, MKOrdDate, ProductID, ProdtQty, EstTakeMatDate, EstStockOutDate, " +
	"CompleteStatus, BillStatus FROM %s WHERE Flag IN (1, 3) AND CompleteStatus = 2 " +
	"AND (BillStatus IS NULL OR BillStatus <> 1) ORDER BY MKOrdDate, MKOrdNO"

// GormSource reads tenant views through gorm, one pooled connection per tenant DSN.
type GormSource struct {
	lock  sync.Mutex
	conns map[string]*gorm.DB
}

func NewGormSource() *GormSource {
	return &GormSource{conns: map[string]*gorm.DB{}}
}

func (s *GormSource) Fetch(ctx context.Context, tenant config.Tenant, limit int) ([]ErpOrderRow, error) {
	db, err := s.open(tenant)
	if err != nil {
		return nil, &bizerror.SourceError{Tenant: tenant.Code, Cause: err}
	}
	db = otgorm.SetSpanToGorm(ctx, db)

	query := fmt.Sprintf(selectOpenOrders, tenant.View)
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &bizerror.SourceError{Tenant: tenant.Code, Cause: err}
	}
	defer rows.Close()

	var result []ErpOrderRow
	for rows.Next() {
		row := ErpOrderRow{}
		if err := db.ScanRows(rows, &row); err != nil {
			return nil, &bizerror.SourceError{Tenant: tenant.Code, Cause: err}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &bizerror.SourceError{Tenant: tenant.Code, Cause: err}
	}
	return result, nil
}

func (s *GormSource) open(tenant config.Tenant) (*gorm.DB, error) {
	key := tenant.Driver + "|" + tenant.DSN()
	s.lock.Lock()
	defer s.lock.Unlock()
	if db, ok := s.conns[key]; ok {
		return db, nil
	}
	db, err := gorm.Open(tenant.Driver, tenant.DSN())
	if err != nil {
		return nil, err
	}
	db.DB().SetMaxOpenConns(2)
	otgorm.AddGormCallbacks(db)
	s.conns[key] = db
	return db, nil
}

func (s *GormSource) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for key, db := range s.conns {
		if err := db.Close(); err != nil {
			logrus.Warnf("failed to close erp connection: %v", err)
		}
		delete(s.conns, key)
	}
}

// Filter drops rows of excluded product families and rows ordered before the date floor.
type Filter struct {
	ExcludedFamilies []string
	DateFloor        int
}

func (f Filter) Accept(row *ErpOrderRow) bool {
	family := common.LeftRunes(strings.TrimSpace(row.MKOrdNO), 4)
	for _, excluded := range f.ExcludedFamilies {
		if family == excluded {
			return false
		}
	}
	date, ok := numericDate(row.MKOrdDate)
	return ok && date >= f.DateFloor
}

// numericDate reads the leading yyyymmdd digits of an ERP date string such as 20240315 or 2024-03-15 08:00.
func numericDate(s string) (int, bool) {
	digits := make([]byte, 0, 8)
	for i := 0; i < len(s) && len(digits) < 8; i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == '-' || c == '/' || c == ' ':
		default:
			return 0, false
		}
	}
	if len(digits) != 8 {
		return 0, false
	}
	n, err := strconv.Atoi(string(digits))
	return n, err == nil
}

// toCompanyOrder maps an accepted row of tenant into the company order store shape.
func toCompanyOrder(tenant string, row *ErpOrderRow) (*domain.CompanyOrder, error) {
	orderNo := strings.TrimSpace(row.MKOrdNO)
	productID := strings.TrimSpace(row.ProductID)
	key := orderNo + "/" + productID
	if orderNo == "" || productID == "" {
		return nil, &bizerror.SourceError{Tenant: tenant, Key: key, Cause: fmt.Errorf("order number and product id are required")}
	}
	if row.ProdtQty < 0 {
		return nil, &bizerror.SourceError{Tenant: tenant, Key: key, Cause: fmt.Errorf("negative planned quantity %v", row.ProdtQty)}
	}
	billStatus := 0
	if row.BillStatus != nil {
		billStatus = *row.BillStatus
	}
	return &domain.CompanyOrder{
		CompanyCode:      tenant,
		ErpOrderNo:       orderNo,
		ProductID:        productID,
		PlannedQty:       int64(math.Round(row.ProdtQty)),
		OrderDate:        strings.TrimSpace(row.MKOrdDate),
		PlannedStartDate: strings.TrimSpace(row.EstTakeMatDate),
		PlannedShipDate:  strings.TrimSpace(row.EstStockOutDate),
		CompletionStatus: row.CompleteStatus,
		BillStatus:       billStatus,
	}, nil
}
