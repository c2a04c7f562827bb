package scheduling

import (
	"time"

	"moldline/internal/domain"
)

// Input is everything one allocation pass needs. Orders must already be
// ranked and Days must be work days in ascending order.
type Input struct {
	Orders        []Ranked
	Days          []time.Time
	Resolver      *Resolver
	DailyCapacity int
	Scope         string
	RunID         string
	// Reserved are persisted allocations the pass must work around. Every
	// reserved row occupies its mold for the day; rows of Scope also count
	// against DailyCapacity.
	Reserved []domain.Allocation
}

// Unscheduled records why an order received no allocation.
type Unscheduled struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// Result is the outcome of Allocate. Orders appear in exactly one of
// Allocations or Unscheduled.
type Result struct {
	Allocations []domain.Allocation
	Unscheduled []Unscheduled
	// MalformedFeatures lists orders whose features could not be decoded;
	// they were allocated with default features.
	MalformedFeatures []string
	Considered        int
}

type moldDay struct {
	day  time.Time
	mold string
}

// usage is owned by a single Allocate call.
type usage struct {
	perMold map[moldDay]int
	perDay  map[time.Time]int
}

func newUsage(reserved []domain.Allocation, scope string) *usage {
	u := &usage{perMold: map[moldDay]int{}, perDay: map[time.Time]int{}}
	for _, a := range reserved {
		day := DateOf(a.WorkDay)
		u.perMold[moldDay{day, a.MoldID}]++
		if a.Scope == scope {
			u.perDay[day]++
		}
	}
	return u
}

func (u *usage) fits(day time.Time, m domain.Mold, daily int) bool {
	return u.perMold[moldDay{day, m.ID}] < m.Multiplier && u.perDay[day] < daily
}

func (u *usage) take(day time.Time, m domain.Mold) {
	u.perMold[moldDay{day, m.ID}]++
	u.perDay[day]++
}

// Allocate assigns each order, in rank order, to the earliest day and the
// first compatible mold that still has room on that day. It never revisits
// a placement. Cost is O(orders x days x molds) in the worst case.
func Allocate(in Input) Result {
	res := Result{Considered: len(in.Orders)}
	u := newUsage(in.Reserved, in.Scope)
	days := make([]time.Time, len(in.Days))
	for i, d := range in.Days {
		days[i] = DateOf(d)
	}

	for _, r := range in.Orders {
		o := r.Order
		var molds []domain.Mold
		if in.Resolver != nil {
			molds = in.Resolver.Compatible(o.Product)
		}
		if len(molds) == 0 {
			res.Unscheduled = append(res.Unscheduled, Unscheduled{OrderID: o.ID, Reason: domain.FailNoCompatibleMold})
			continue
		}

		placed := false
	search:
		for _, day := range days {
			if u.perDay[day] >= in.DailyCapacity {
				continue
			}
			for _, m := range molds {
				if !u.fits(day, m, in.DailyCapacity) {
					continue
				}
				u.take(day, m)
				feat, err := o.ParseFeatures()
				if err != nil {
					res.MalformedFeatures = append(res.MalformedFeatures, o.ID)
				}
				res.Allocations = append(res.Allocations, domain.Allocation{
					OrderID:   o.ID,
					MoldID:    m.ID,
					MoldName:  m.Name,
					WorkDay:   day,
					Product:   o.Product,
					HeavyFill: feat.HeavyFill,
					LOPAdjust: feat.LOPAdjust,
					LOPLength: feat.LOPLength,
					Priority:  r.Priority,
					Scope:     in.Scope,
					RunID:     in.RunID,
				})
				placed = true
				break search
			}
		}
		if !placed {
			res.Unscheduled = append(res.Unscheduled, Unscheduled{OrderID: o.ID, Reason: domain.FailCapacityExhausted})
		}
	}
	return res
}
