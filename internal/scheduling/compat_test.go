package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"moldline/internal/domain"
)

func TestNormalizeProduct(t *testing.T) {
	cases := map[string]string{
		"Model X":          "model-x",
		"  model-x  ":      "model-x",
		"MODEL - - X":      "model-x",
		"model\t\nx":       "model-x",
		"Stock  Pro-Lite ": "stock-pro-lite",
		"--x--":            "x",
		"":                 "",
		"   ":              "",
		"model_x":          "model_x",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeProduct(in), "input %q", in)
	}
}

func TestResolverExactAfterNormalization(t *testing.T) {
	molds := []domain.Mold{
		{ID: "m1", Name: "M1", Products: []string{"Model X", "Model Y"}, Multiplier: 2, Active: true},
		{ID: "m2", Name: "M2", Products: []string{"model-x"}, Multiplier: 1, Active: true},
		{ID: "m3", Name: "M3", Products: []string{"model x"}, Multiplier: 4, Active: false},
	}
	r := NewResolver(molds)

	got := r.Compatible("MODEL   X")
	if assert.Len(t, got, 2) {
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, "m2", got[1].ID)
	}
	assert.Len(t, r.Compatible("model-y"), 1)
	// near misses never match
	assert.Empty(t, r.Compatible("model x2"))
	assert.Empty(t, r.Compatible("modelx"))
	assert.Empty(t, r.Compatible(""))
}

func TestResolverIgnoresDuplicateProductsOnOneMold(t *testing.T) {
	r := NewResolver([]domain.Mold{
		{ID: "m1", Products: []string{"A-1", "a 1", "A  1"}, Multiplier: 1, Active: true},
	})
	assert.Len(t, r.Compatible("a-1"), 1)
}
