package scheduling

import (
	"fmt"
	"math"
	"strings"

	"moldline/internal/domain"
)

// ReportContext carries the run parameters echoed into a report.
type ReportContext struct {
	WorkDays     int
	Capacity     Capacity
	CapacityHint *int
	// HeldElsewhere lists backlog orders skipped because another scope
	// already allocated them.
	HeldElsewhere []string
}

// BuildReport summarizes an allocation pass. It is always produced, even
// when nothing was scheduled.
func BuildReport(res Result, rc ReportContext) domain.Report {
	rep := domain.Report{
		TotalOrders:       res.Considered,
		ScheduledOrders:   len(res.Allocations),
		UnscheduledOrders: len(res.Unscheduled),
		WorkDays:          rc.WorkDays,
		DailyCapacity:     rc.Capacity.Daily,
		CapacityHint:      rc.CapacityHint,
		MaterialBreakdown: map[string]int{},
		MoldUtilization:   map[string]int{},
		Failures: domain.Failures{
			NoCompatibleMold:  []string{},
			CapacityExhausted: []string{},
		},
	}
	if rc.CapacityHint != nil && *rc.CapacityHint != rc.Capacity.Daily {
		rep.HintOverridden = true
	}
	if res.Considered > 0 {
		rep.Efficiency = math.Round(float64(len(res.Allocations))/float64(res.Considered)*10000) / 100
	}
	for _, a := range res.Allocations {
		rep.MaterialBreakdown[NormalizeProduct(a.Product)]++
		rep.MoldUtilization[a.MoldID]++
	}
	for _, u := range res.Unscheduled {
		switch u.Reason {
		case domain.FailNoCompatibleMold:
			rep.Failures.NoCompatibleMold = append(rep.Failures.NoCompatibleMold, u.OrderID)
		case domain.FailCapacityExhausted:
			rep.Failures.CapacityExhausted = append(rep.Failures.CapacityExhausted, u.OrderID)
		}
	}
	if rc.Capacity.Degraded {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("labor capacity %s below one order per day across %d active workers; using 1", rc.Capacity.Raw.String(), rc.Capacity.Workers))
	}
	if rep.HintOverridden {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("requested maxOrdersPerDay %d ignored; labor capacity is %d", *rc.CapacityHint, rc.Capacity.Daily))
	}
	if n := len(rc.HeldElsewhere); n > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d backlog orders already allocated in another scope; skipped: %s", n, strings.Join(rc.HeldElsewhere, ", ")))
	}
	for _, id := range res.MalformedFeatures {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("order %s has malformed features; defaults used", id))
	}
	return rep
}
