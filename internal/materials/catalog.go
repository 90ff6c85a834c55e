package materials

import (
	"fmt"
	"strings"
)

// CatalogItem is a material a company's set offers for selection.
type CatalogItem struct {
	Name    string `json:"name"`
	Unit    string `json:"unit"`
	Company string `json:"company,omitempty"`
}

// MaterialSet is a company's list of materials.
type MaterialSet struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Materials   []CatalogItem `json:"materials"`
}

// Category groups the companies working in one line of business.
type Category struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Companies   []string `json:"companies"`
}

var telecomCommon = []CatalogItem{
	{Name: "Fiber Optic Cable", Unit: "m"},
	{Name: "Copper Wire", Unit: "m"},
	{Name: "RJ45 Connectors", Unit: "pieces"},
	{Name: "Network Switches", Unit: "units"},
	{Name: "Cable Ties", Unit: "pieces"},
	{Name: "Cable Trays", Unit: "m"},
	{Name: "Patch Panels", Unit: "units"},
	{Name: "Cable Testers", Unit: "units"},
	{Name: "Crimping Tools", Unit: "units"},
	{Name: "Cable Markers", Unit: "pieces"},
}

var telecomAccessories = []CatalogItem{
	{Name: "Power Adapter", Unit: "units"},
	{Name: "Ethernet Cable", Unit: "m"},
	{Name: "Splitter", Unit: "pieces"},
	{Name: "Coupler", Unit: "pieces"},
	{Name: "Terminal Block", Unit: "pieces"},
	{Name: "Distribution Box", Unit: "units"},
	{Name: "Grounding Wire", Unit: "m"},
}

var pipelineCommon = []CatalogItem{
	{Name: "Steel Pipes", Unit: "m"},
	{Name: "Pipe Fittings", Unit: "pieces"},
	{Name: "Valves", Unit: "units"},
	{Name: "Gaskets", Unit: "pieces"},
	{Name: "Pipe Wraps", Unit: "m"},
	{Name: "Cathodic Protection", Unit: "units"},
	{Name: "Pipe Insulation", Unit: "m"},
	{Name: "Welding Rods", Unit: "kg"},
	{Name: "Pipe Supports", Unit: "pieces"},
	{Name: "Pressure Gauges", Unit: "units"},
}

func telecomSet(id, brand string) MaterialSet {
	items := append([]CatalogItem{}, telecomCommon...)
	items = append(items,
		CatalogItem{Name: brand + " Router", Unit: "units"},
		CatalogItem{Name: brand + " Modem", Unit: "units"},
		CatalogItem{Name: brand + " Antenna", Unit: "units"},
	)
	items = append(items, telecomAccessories...)
	return MaterialSet{
		ID:          id,
		Name:        brand,
		Description: brand + " telecommunications equipment and materials",
		Materials:   items,
	}
}

func pipelineSet(id, brand string) MaterialSet {
	items := append([]CatalogItem{}, pipelineCommon...)
	for _, part := range []string{"Compressor", "Meter", "Regulator", "Filter", "Control Valve"} {
		items = append(items, CatalogItem{Name: brand + " " + part, Unit: "units"})
	}
	return MaterialSet{
		ID:          id,
		Name:        brand,
		Description: brand + " gas pipeline equipment and materials",
		Materials:   items,
	}
}

var materialSets = []MaterialSet{
	telecomSet("airtel", "Airtel"),
	telecomSet("jio", "Jio"),
	pipelineSet("adani", "Adani"),
	pipelineSet("reliance", "Reliance"),
}

var categories = []Category{
	{
		ID:          "telecom",
		Name:        "Telecom",
		Description: "Telecommunications equipment and materials",
		Companies:   []string{"airtel", "jio"},
	},
	{
		ID:          "gaspipeline",
		Name:        "Gas Pipeline",
		Description: "Gas pipeline construction and maintenance materials",
		Companies:   []string{"adani", "reliance"},
	},
}

// Catalog is the static list of material sets and categories.
type Catalog struct {
	Sets       []MaterialSet `json:"sets"`
	Categories []Category    `json:"categories"`
}

// DefaultCatalog returns a copy of the built in catalog.
func DefaultCatalog() Catalog {
	sets := make([]MaterialSet, len(materialSets))
	for i, set := range materialSets {
		set.Materials = append([]CatalogItem(nil), set.Materials...)
		sets[i] = set
	}
	cats := make([]Category, len(categories))
	for i, cat := range categories {
		cat.Companies = append([]string(nil), cat.Companies...)
		cats[i] = cat
	}
	return Catalog{Sets: sets, Categories: cats}
}

// Set looks up a material set by id.
func (c Catalog) Set(id string) (MaterialSet, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, set := range c.Sets {
		if set.ID == id {
			return set, true
		}
	}
	return MaterialSet{}, false
}

// Category looks up a category by id.
func (c Catalog) Category(id string) (Category, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// ValidateSelection checks that every company exists and, when a category is
// given, belongs to it. At least one company is required.
func (c Catalog) ValidateSelection(category string, companies []string) error {
	if len(companies) == 0 {
		return fmt.Errorf("at least one company is required")
	}
	var allowed map[string]bool
	if strings.TrimSpace(category) != "" {
		cat, ok := c.Category(category)
		if !ok {
			return fmt.Errorf("unknown category %q", category)
		}
		allowed = make(map[string]bool, len(cat.Companies))
		for _, id := range cat.Companies {
			allowed[id] = true
		}
	}
	for _, company := range companies {
		set, ok := c.Set(company)
		if !ok {
			return fmt.Errorf("unknown company %q", company)
		}
		if allowed != nil && !allowed[set.ID] {
			return fmt.Errorf("company %q is not part of category %q", company, category)
		}
	}
	return nil
}

// Items returns the union of the selected companies' materials, deduplicated
// by (name, unit). The first company offering an item is reported on it.
func (c Catalog) Items(companies []string) []CatalogItem {
	seen := map[[2]string]bool{}
	out := []CatalogItem{}
	for _, company := range companies {
		set, ok := c.Set(company)
		if !ok {
			continue
		}
		for _, item := range set.Materials {
			key := [2]string{item.Name, item.Unit}
			if seen[key] {
				continue
			}
			seen[key] = true
			item.Company = set.ID
			out = append(out, item)
		}
	}
	return out
}
