package scheduling

import (
	"strings"

	"github.com/shopspring/decimal"

	"moldline/internal/domain"
)

// Capacity is the labor-derived number of orders a single work day can take.
type Capacity struct {
	Daily   int             `json:"daily"`
	Raw     decimal.Decimal `json:"raw"`
	Workers int             `json:"workers"`
	// Degraded is set when the roster produced less than one unit per day
	// and Daily was raised to the floor of 1.
	Degraded bool `json:"degraded"`
}

// AggregateCapacity sums rate x hours over active workers of department
// (all departments when empty), floors the sum and never returns below 1.
func AggregateCapacity(workers []domain.Worker, department string) Capacity {
	total := decimal.Zero
	count := 0
	for _, w := range workers {
		if !w.Active {
			continue
		}
		if department != "" && !strings.EqualFold(strings.TrimSpace(w.Department), strings.TrimSpace(department)) {
			continue
		}
		total = total.Add(w.Rate.Mul(w.HoursPerDay))
		count++
	}
	daily := int(total.Floor().IntPart())
	c := Capacity{Daily: daily, Raw: total, Workers: count}
	if daily < 1 {
		c.Daily = 1
		c.Degraded = true
	}
	return c
}
