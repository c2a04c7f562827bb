package scheduling

import (
	"strings"
	"unicode"

	"moldline/internal/domain"
)

// NormalizeProduct folds case and collapses every run of whitespace and
// hyphens into a single "-". Matching on the result is exact.
func NormalizeProduct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) || r == '-' {
			pendingSep = true
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingSep = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Resolver maps a product to the molds able to produce it.
type Resolver struct {
	byProduct map[string][]domain.Mold
}

// NewResolver indexes active molds by normalized product. Roster order is
// preserved within each product so allocation is deterministic.
func NewResolver(molds []domain.Mold) *Resolver {
	r := &Resolver{byProduct: map[string][]domain.Mold{}}
	for _, m := range molds {
		if !m.Active {
			continue
		}
		seen := map[string]bool{}
		for _, p := range m.Products {
			key := NormalizeProduct(p)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			r.byProduct[key] = append(r.byProduct[key], m)
		}
	}
	return r
}

// Compatible returns the molds whose product list matches product after
// normalization, or nil when none does.
func (r *Resolver) Compatible(product string) []domain.Mold {
	key := NormalizeProduct(product)
	if key == "" {
		return nil
	}
	return r.byProduct[key]
}
