package sectors

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/marketdata-cli/internal/store"
)

func TestSeed(t *testing.T) {
	got, err := Seed()
	require.NoError(t, err)
	require.Len(t, got, 15)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "Agronegócio", got[0].Name)
	assert.Equal(t, "Utilidade Pública", got[14].Name)
}

func writeSheet(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sectors")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "Sectors.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestImportXLSX(t *testing.T) {
	known, err := Seed()
	require.NoError(t, err)
	path := writeSheet(t, [][]string{
		{"IndustryId", "Industry", "SectorId"},
		{"3", "Bancos", "7"},
		{"", "Exploração. Refino e Distribuição", "commodities"},
		{"12.0", "Mineração", "10"},
		{"4", "Seguros", "99"},
		{"", "", "7"},
		{"5"},
	})

	got, err := ImportXLSX(path, known, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []store.SectorAssignment{
		{IndustryID: 3, IndustryName: "Bancos", SectorID: 7},
		{IndustryName: "Exploração. Refino e Distribuição", SectorID: 3},
		{IndustryID: 12, IndustryName: "Mineração", SectorID: 10},
	}, got)
}

func TestImportXLSX_MissingFile(t *testing.T) {
	_, err := ImportXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), nil, ImportOptions{})
	assert.Error(t, err)
}
