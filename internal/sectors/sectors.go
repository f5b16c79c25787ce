// Package sectors holds the fixed sector list and imports industry to sector
// assignments from a spreadsheet.
package sectors

import (
	_ "embed"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/marketdata-cli/internal/fetcher"
	"github.com/sells-group/marketdata-cli/internal/model"
	"github.com/sells-group/marketdata-cli/internal/store"
)

//go:embed sectors.yaml
var seedYAML []byte

type seedFile struct {
	Sectors []model.Sector `yaml:"sectors"`
}

// Seed returns the embedded sector list.
func Seed() ([]model.Sector, error) {
	var f seedFile
	if err := yaml.Unmarshal(seedYAML, &f); err != nil {
		return nil, eris.Wrap(err, "sectors: parse seed")
	}
	if len(f.Sectors) == 0 {
		return nil, eris.New("sectors: empty seed")
	}
	return f.Sectors, nil
}

// ImportOptions configures ImportXLSX.
type ImportOptions struct {
	SheetName string
	// HeaderRows are skipped. Defaults to 1.
	HeaderRows int
}

// ImportXLSX reads assignment rows laid out as (industry id, industry name,
// sector). The industry is matched by id when the id cell holds one, by name
// otherwise. The sector cell holds a sector id or a sector name from known.
// Rows that resolve neither are logged and skipped.
func ImportXLSX(path string, known []model.Sector, opts ImportOptions) ([]store.SectorAssignment, error) {
	if opts.HeaderRows == 0 {
		opts.HeaderRows = 1
	}
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.SheetName, SkipRows: opts.HeaderRows, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "sectors: read sheet")
	}

	byName := make(map[string]int64, len(known))
	ids := make(map[int64]bool, len(known))
	for _, s := range known {
		byName[model.FoldName(s.Name)] = s.ID
		ids[s.ID] = true
	}

	log := zap.L().With(zap.String("component", "sectors.import"))
	var out []store.SectorAssignment
	for i, row := range rows {
		line := i + opts.HeaderRows + 1
		if len(row) < 3 {
			if len(row) > 0 && strings.TrimSpace(strings.Join(row, "")) != "" {
				log.Warn("short row", zap.Int("row", line))
			}
			continue
		}

		a := store.SectorAssignment{IndustryName: strings.TrimSpace(row[1])}
		if id, err := parseID(row[0]); err == nil {
			a.IndustryID = id
		}
		if a.IndustryID == 0 && a.IndustryName == "" {
			log.Warn("row has no industry", zap.Int("row", line))
			continue
		}

		cell := strings.TrimSpace(row[2])
		if id, err := parseID(cell); err == nil && ids[id] {
			a.SectorID = id
		} else if id, ok := byName[model.FoldName(cell)]; ok {
			a.SectorID = id
		} else {
			log.Warn("unknown sector", zap.Int("row", line), zap.String("sector", cell))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// parseID accepts "12" and the "12.0" spreadsheets produce for numeric cells.
func parseID(s string) (int64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	return strconv.ParseInt(s, 10, 64)
}
