package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

type Order struct {
	ID           string     `json:"id"`
	Product      string     `json:"product"`
	OrderDate    time.Time  `json:"order_date" format:"date-time"`
	DueDate      *time.Time `json:"due_date,omitempty" format:"date-time"`
	FeaturesJSON string     `json:"features_json,omitempty"`
	Stage        string     `json:"stage,omitempty"`
	CreatedAt    string     `json:"created_at" format:"date-time"`
	UpdatedAt    string     `json:"updated_at" format:"date-time"`
}

// Features are the routing attributes carried by an order. The scheduler
// copies them onto allocations without interpreting them.
type Features struct {
	HeavyFill bool   `json:"heavy_fill"`
	LOPAdjust bool   `json:"lop_adjust"`
	LOPLength string `json:"lop_length,omitempty"`
}

// ParseFeatures decodes FeaturesJSON. Empty input yields the zero value.
// Malformed input yields the zero value together with the decode error.
func (o Order) ParseFeatures() (Features, error) {
	var f Features
	if strings.TrimSpace(o.FeaturesJSON) == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(o.FeaturesJSON), &f); err != nil {
		return Features{}, err
	}
	return f, nil
}

type Mold struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Products   []string `json:"products"`
	Multiplier int      `json:"multiplier"`
	Active     bool     `json:"active"`
}

type Worker struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Department  string          `json:"department"`
	Rate        decimal.Decimal `json:"rate"`
	HoursPerDay decimal.Decimal `json:"hours_per_day"`
	Active      bool            `json:"active"`
}

type Allocation struct {
	OrderID   string    `json:"order_id"`
	MoldID    string    `json:"mold_id"`
	MoldName  string    `json:"mold_name"`
	WorkDay   time.Time `json:"work_day" format:"date"`
	Product   string    `json:"product"`
	HeavyFill bool      `json:"heavy_fill"`
	LOPAdjust bool      `json:"lop_adjust"`
	LOPLength string    `json:"lop_length,omitempty"`
	Priority  int       `json:"priority"`
	Scope     string    `json:"scope"`
	RunID     string    `json:"run_id"`
}

// Failure classes for orders left unscheduled by a run.
const (
	FailNoCompatibleMold  = "no_compatible_mold"
	FailCapacityExhausted = "capacity_exhausted"
)

type Failures struct {
	NoCompatibleMold  []string `json:"no_compatible_mold"`
	CapacityExhausted []string `json:"capacity_exhausted"`
}

type Report struct {
	TotalOrders       int            `json:"totalOrders"`
	ScheduledOrders   int            `json:"scheduledOrders"`
	UnscheduledOrders int            `json:"unscheduledOrders"`
	Efficiency        float64        `json:"efficiency"`
	WorkDays          int            `json:"workDays"`
	DailyCapacity     int            `json:"dailyCapacity"`
	CapacityHint      *int           `json:"capacityHint,omitempty"`
	HintOverridden    bool           `json:"hintOverridden"`
	MaterialBreakdown map[string]int `json:"materialBreakdown"`
	MoldUtilization   map[string]int `json:"moldUtilization"`
	Failures          Failures       `json:"failures"`
	Warnings          []string       `json:"warnings,omitempty"`
}

type Run struct {
	ID            string `json:"id"`
	Scope         string `json:"scope"`
	StartDate     string `json:"start_date" format:"date"`
	Days          int    `json:"days"`
	CapacityHint  *int   `json:"capacity_hint,omitempty"`
	DailyCapacity int    `json:"daily_capacity"`
	ActorID       string `json:"actor_id"`
	Report        Report `json:"report"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Scope      string `json:"scope,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
