package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
orders:
  - id: SO-1
    product: Spa Cover 84
    order_date: "2026-10-01"
    due_date: "2026-10-20"
    features:
      heavy_fill: true
      lop_length: "24"
  - id: SO-2
    product: lid
    order_date: "2026-10-02"
molds:
  - id: M1
    name: Main cover mold
    products: [spa-cover-84, lid]
    multiplier: 2
  - id: M2
    products: [lid]
    multiplier: 1
    active: false
workers:
  - id: W1
    name: Ana
    department: molding
    rate: "1.5"
    hours_per_day: "8"
`

func TestParseAndRecords(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	orders, molds, workers, err := f.Records(now)
	require.NoError(t, err)

	require.Len(t, orders, 2)
	require.NotNil(t, orders[0].DueDate)
	assert.Equal(t, "2026-10-20", orders[0].DueDate.Format("2006-01-02"))
	assert.JSONEq(t, `{"heavy_fill":true,"lop_length":"24"}`, orders[0].FeaturesJSON)
	assert.Nil(t, orders[1].DueDate)
	assert.Empty(t, orders[1].FeaturesJSON)
	assert.Equal(t, "2026-10-16T09:00:00Z", orders[1].CreatedAt)

	require.Len(t, molds, 2)
	assert.True(t, molds[0].Active)
	assert.False(t, molds[1].Active)
	assert.Equal(t, "M2", molds[1].Name)

	require.Len(t, workers, 1)
	assert.Equal(t, "12", workers[0].Rate.Mul(workers[0].HoursPerDay).String())
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"missing product":  "orders:\n  - id: a\n    order_date: \"2026-10-01\"\n",
		"bad date":         "orders:\n  - id: a\n    product: x\n    order_date: \"10/01/2026\"\n",
		"negative mult":    "molds:\n  - id: m\n    multiplier: -1\n",
		"bad rate":         "workers:\n  - id: w\n    department: d\n    rate: fast\n    hours_per_day: \"8\"\n",
		"negative hours":   "workers:\n  - id: w\n    department: d\n    rate: \"1\"\n    hours_per_day: \"-8\"\n",
		"duplicate mold":   "molds:\n  - id: m\n  - id: m\n",
		"not yaml mapping": "- just\n- a list\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Orders, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
