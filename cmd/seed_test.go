package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `
assets:
  - id: A001
    tag: PMP-101
    type: pump
    criticality: critical
    location:
      plant: P1
      area: North
      line: L1
parts:
  - id: BRG-6308
    part_number: 6308-2RS
    quantity_on_hand: 8
    min_stock: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := loadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Assets, 1)
	assert.Equal(t, model.CriticalityCritical, c.Assets[0].Criticality)
	assert.Equal(t, "North", c.Assets[0].Location.Area)
	require.Len(t, c.Parts, 1)
	assert.Equal(t, 8, c.Parts[0].QuantityOnHand)
	assert.Equal(t, "6308-2RS", c.Parts[0].PartNumber)

	_, err = loadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
