package workorder

import (
	"strings"
	"time"

	"shopfloor/allocation"
	"shopfloor/common"
	"shopfloor/domain"

	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
)

const DefaultCatalogTTL = 5 * time.Minute

// Catalog resolves known process definitions per company. Definitions without company code apply to every company.
type Catalog struct {
	cache *cache.Cache
}

func NewCatalog(ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &Catalog{cache: cache.New(ttl, 2*ttl)}
}

func (c *Catalog) Definitions(db *gorm.DB, companyCode string) ([]domain.ProcessDefinition, error) {
	if cached, found := c.cache.Get(companyCode); found {
		return cached.([]domain.ProcessDefinition), nil
	}
	var defs []domain.ProcessDefinition
	if err := db.Where("company_code = ? OR company_code = ?", companyCode, "").
		Order("company_code DESC, name ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	c.cache.SetDefault(companyCode, defs)
	return defs, nil
}

// Lookup finds a definition by name, a company specific one shadows the shared one.
func (c *Catalog) Lookup(db *gorm.DB, companyCode, name string) (*domain.ProcessDefinition, bool, error) {
	defs, err := c.Definitions(db, companyCode)
	if err != nil {
		return nil, false, err
	}
	name = strings.TrimSpace(name)
	for i := range defs {
		if defs[i].Name == name {
			return &defs[i], true, nil
		}
	}
	return nil, false, nil
}

// Complexity returns a lookup preferring defined complexity factors over the keyword table.
func (c *Catalog) Complexity(db *gorm.DB, companyCode string) (func(processName string) float64, error) {
	defs, err := c.Definitions(db, companyCode)
	if err != nil {
		return nil, err
	}
	factors := map[string]float64{}
	for _, d := range defs {
		if _, exists := factors[d.Name]; !exists && d.Complexity > 0 {
			factors[d.Name] = d.Complexity
		}
	}
	return func(processName string) float64 {
		if f, ok := factors[strings.TrimSpace(processName)]; ok {
			return f
		}
		return allocation.ComplexityOf(processName)
	}, nil
}

func (c *Catalog) Invalidate(companyCode string) {
	c.cache.Delete(companyCode)
}

// Define adds or updates a process definition and drops the cached definitions.
func (c *Catalog) Define(db *gorm.DB, def *domain.ProcessDefinition) error {
	existing := domain.ProcessDefinition{}
	err := db.Where("company_code = ? AND name = ?", def.CompanyCode, def.Name).First(&existing).Error
	switch {
	case err == nil:
		if err := db.Model(&domain.ProcessDefinition{}).Where("id = ?", existing.ID).
			Update("complexity", def.Complexity).Error; err != nil {
			return err
		}
		def.ID = existing.ID
	case gorm.IsRecordNotFoundError(err):
		def.ID = common.NextId(idWorker)
		if err := db.Create(def).Error; err != nil {
			return err
		}
	default:
		return err
	}
	if def.CompanyCode == "" {
		c.cache.Flush()
	} else {
		c.Invalidate(def.CompanyCode)
	}
	return nil
}
