package scheduling

import (
	"sort"
	"time"

	"moldline/internal/domain"
)

// Priority bands, lower is more urgent.
const (
	PriorityOverdue = 1
	PriorityUrgent  = 2
	PrioritySoon    = 3
	PriorityLater   = 4
)

// Bands holds the day thresholds separating the urgent and soon bands.
type Bands struct {
	UrgentDays int
	SoonDays   int
}

// DefaultBands are 7 and 30 days.
var DefaultBands = Bands{UrgentDays: 7, SoonDays: 30}

// Band maps a due date to its priority band relative to today. A missing due
// date is never urgent.
func (b Bands) Band(due *time.Time, today time.Time) int {
	if due == nil {
		return PriorityLater
	}
	d := DateOf(*due)
	t := DateOf(today)
	switch {
	case d.Before(t):
		return PriorityOverdue
	case !d.After(t.AddDate(0, 0, b.UrgentDays)):
		return PriorityUrgent
	case !d.After(t.AddDate(0, 0, b.SoonDays)):
		return PrioritySoon
	default:
		return PriorityLater
	}
}

// Ranked is a backlog order with its computed band.
type Ranked struct {
	Order    domain.Order
	Priority int
}

// Rank orders the backlog by band, then due date (missing last), then order
// date, then order ID. The input slice is not modified.
func (b Bands) Rank(orders []domain.Order, today time.Time) []Ranked {
	ranked := make([]Ranked, len(orders))
	for i, o := range orders {
		ranked[i] = Ranked{Order: o, Priority: b.Band(o.DueDate, today)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, c := ranked[i], ranked[j]
		if a.Priority != c.Priority {
			return a.Priority < c.Priority
		}
		if cmp := compareDue(a.Order.DueDate, c.Order.DueDate); cmp != 0 {
			return cmp < 0
		}
		if !a.Order.OrderDate.Equal(c.Order.OrderDate) {
			return a.Order.OrderDate.Before(c.Order.OrderDate)
		}
		return a.Order.ID < c.Order.ID
	})
	return ranked
}

func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}
