package conversion

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is a process route applied to converted orders matching its prefixes.
type Template struct {
	Company       string   `yaml:"company"`
	OrderPrefix   string   `yaml:"order_prefix"`
	ProductPrefix string   `yaml:"product_prefix"`
	Processes     []string `yaml:"processes"`
}

type Templates []Template

// LoadTemplates reads a YAML list of templates. An empty path yields no templates.
func LoadTemplates(path string) (Templates, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var templates Templates
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse process templates %s: %w", path, err)
	}
	for i, t := range templates {
		if len(t.Processes) == 0 {
			return nil, fmt.Errorf("process template #%d of %s has no processes", i+1, path)
		}
	}
	return templates, nil
}

// Route returns the processes of the first matching template, nil when none matches.
func (ts Templates) Route(company, orderNumber, productID string) []string {
	for _, t := range ts {
		if t.Company != "" && !strings.EqualFold(t.Company, company) {
			continue
		}
		if !strings.HasPrefix(orderNumber, t.OrderPrefix) || !strings.HasPrefix(productID, t.ProductPrefix) {
			continue
		}
		return t.Processes
	}
	return nil
}
