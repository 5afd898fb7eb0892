package matrix

import (
	"fmt"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/models"
)

// Generate expands the declared matrix configuration into the full flat list
// of TestSpecs. Pure function: the same configuration always yields identical
// specs, in identical order, with collision-free ids.
//
// For each category the parameter axes are cross-producted as
// scenario x viewport x browser, and ids are assigned as
// PREFIX-NNN in generation order. When a category declares a planned count,
// a disagreement with the generated count is a *models.ConfigMismatchError,
// fatal before any browser is launched.
func Generate(cfg *common.MatrixConfig) ([]models.TestSpec, error) {
	var specs []models.TestSpec
	seen := make(map[string]bool)

	for i := range cfg.Categories {
		cat := &cfg.Categories[i]

		catSpecs, err := generateCategory(cat)
		if err != nil {
			return nil, err
		}

		if cat.Planned > 0 && len(catSpecs) != cat.Planned {
			return nil, &models.ConfigMismatchError{
				Category:  cat.Name,
				Declared:  cat.Planned,
				Generated: len(catSpecs),
			}
		}

		for _, spec := range catSpecs {
			if seen[spec.ID] {
				return nil, fmt.Errorf("duplicate test id %q in generated matrix", spec.ID)
			}
			seen[spec.ID] = true
		}

		specs = append(specs, catSpecs...)
	}

	return specs, nil
}

// generateCategory cross-products one category's axes
func generateCategory(cat *common.CategoryConfig) ([]models.TestSpec, error) {
	if len(cat.Scenarios) == 0 {
		return nil, fmt.Errorf("category %q declares no scenarios", cat.Name)
	}

	browsers := cat.Browsers
	if len(browsers) == 0 {
		browsers = []string{""}
	}
	viewports := cat.Viewports
	if len(viewports) == 0 {
		viewports = []common.ViewportConfig{{}}
	}

	testType := cat.CategoryTestType()
	category := models.TestCategory(cat.Name)

	var specs []models.TestSpec
	seq := 0
	for _, sc := range cat.Scenarios {
		for _, vp := range viewports {
			for _, br := range browsers {
				seq++
				spec := models.TestSpec{
					ID:          fmt.Sprintf("%s-%03d", cat.Prefix, seq),
					Name:        specName(cat.Name, sc.Name, vp, br),
					Category:    category,
					Type:        testType,
					Path:        sc.Path,
					Query:       sc.Query,
					Browser:     br,
					Concurrency: sc.Concurrency,
					LongRunning: cat.LongRunning,
				}
				if vp.Width > 0 && vp.Height > 0 {
					spec.Viewport = &models.Viewport{
						Label:  vp.Label,
						Width:  vp.Width,
						Height: vp.Height,
					}
				}
				specs = append(specs, spec)
			}
		}
	}

	return specs, nil
}

// specName builds a human-legible display name from the axis values
func specName(category, scenario string, vp common.ViewportConfig, browser string) string {
	name := fmt.Sprintf("%s: %s", category, scenario)
	if vp.Label != "" {
		name += " @ " + vp.Label
	} else if vp.Width > 0 && vp.Height > 0 {
		name += fmt.Sprintf(" @ %dx%d", vp.Width, vp.Height)
	}
	if browser != "" {
		name += " [" + browser + "]"
	}
	return name
}

// PlannedTotal sums the declared per-category plan. Categories without a
// declared count contribute their derived axis product.
func PlannedTotal(cfg *common.MatrixConfig) int {
	total := 0
	for i := range cfg.Categories {
		cat := &cfg.Categories[i]
		if cat.Planned > 0 {
			total += cat.Planned
			continue
		}
		browsers := len(cat.Browsers)
		if browsers == 0 {
			browsers = 1
		}
		viewports := len(cat.Viewports)
		if viewports == 0 {
			viewports = 1
		}
		total += len(cat.Scenarios) * viewports * browsers
	}
	return total
}

// SplitByCategory partitions specs into per-category groups, preserving
// generation order both across and within groups
func SplitByCategory(specs []models.TestSpec) [][]models.TestSpec {
	var groups [][]models.TestSpec
	index := make(map[models.TestCategory]int)

	for _, spec := range specs {
		i, ok := index[spec.Category]
		if !ok {
			i = len(groups)
			index[spec.Category] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], spec)
	}

	return groups
}
