package allocation

import "strings"

type complexityEntry struct {
	Category string
	Factor   float64
	Keywords []string
}

// matched in order, the first entry with a keyword contained in the process name wins
var complexityTable = []complexityEntry{
	{Category: "heat-treatment", Factor: 3.0, Keywords: []string{"熱處理", "热处理", "heat"}},
	{Category: "welding", Factor: 2.5, Keywords: []string{"焊", "weld"}},
	{Category: "machining", Factor: 2.0, Keywords: []string{"加工", "車削", "车削", "銑", "铣", "machin", "cnc"}},
	{Category: "inspection", Factor: 1.8, Keywords: []string{"檢驗", "检验", "檢查", "检查", "inspect", "qc"}},
	{Category: "testing", Factor: 1.5, Keywords: []string{"測試", "测试", "test"}},
	{Category: "painting", Factor: 1.3, Keywords: []string{"噴漆", "喷漆", "塗裝", "涂装", "paint"}},
	{Category: "assembly", Factor: 1.2, Keywords: []string{"組裝", "组装", "assembl"}},
	{Category: "packaging", Factor: 1.0, Keywords: []string{"包裝", "包装", "pack"}},
}

const DefaultComplexity = 1.0

// ComplexityOf returns the complexity factor of a process by its name.
func ComplexityOf(processName string) float64 {
	_, factor := Classify(processName)
	return factor
}

func Classify(processName string) (string, float64) {
	name := strings.ToLower(processName)
	for _, entry := range complexityTable {
		for _, keyword := range entry.Keywords {
			if strings.Contains(name, keyword) {
				return entry.Category, entry.Factor
			}
		}
	}
	return "default", DefaultComplexity
}
