package server

import (
	"encoding/json"

	"moldline/internal/domain"
	"moldline/internal/engine"
)

// Request payloads

type GenerateScheduleRequest struct {
	MaxOrdersPerDay *int   `json:"maxOrdersPerDay,omitempty" minimum:"1" doc:"Advisory ceiling; labor capacity wins"`
	ScheduleDays    int    `json:"scheduleDays" minimum:"1" doc:"Horizon in work days, at most scheduling.max_days"`
	StartDate       string `json:"startDate,omitempty" format:"date" doc:"First candidate day, defaults to today"`
}

type AdvanceOrdersRequest struct {
	OrderIDs []string `json:"order_ids" minItems:"1"`
}

// Response payloads

type AllocationResponse struct {
	OrderID   string `json:"orderId"`
	MoldID    string `json:"moldId"`
	MoldName  string `json:"moldName"`
	WorkDay   string `json:"workDay" format:"date"`
	Product   string `json:"product"`
	HeavyFill bool   `json:"heavyFill"`
	LOPAdjust bool   `json:"lopAdjust"`
	LOPLength string `json:"lopLength,omitempty"`
	Priority  int    `json:"priority"`
	RunID     string `json:"runId"`
}

type GenerateScheduleResponse struct {
	RunID       string               `json:"runId"`
	Allocations []AllocationResponse `json:"allocations"`
	Analytics   domain.Report        `json:"analytics"`
}

type ScheduleResponse struct {
	Scope       string               `json:"scope"`
	Allocations []AllocationResponse `json:"allocations"`
}

type RunResponse struct {
	ID            string        `json:"id"`
	Scope         string        `json:"scope"`
	StartDate     string        `json:"startDate" format:"date"`
	Days          int           `json:"days"`
	CapacityHint  *int          `json:"capacityHint,omitempty"`
	DailyCapacity int           `json:"dailyCapacity"`
	ActorID       string        `json:"actorId"`
	Report        domain.Report `json:"report"`
	CreatedAt     string        `json:"createdAt" format:"date-time"`
}

type OrderResponse struct {
	ID        string         `json:"id"`
	Product   string         `json:"product"`
	OrderDate string         `json:"order_date" format:"date"`
	DueDate   string         `json:"due_date,omitempty" format:"date"`
	Stage     string         `json:"stage"`
	Features  map[string]any `json:"features,omitempty"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type MoldResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Products   []string `json:"products"`
	Multiplier int      `json:"multiplier"`
	Active     bool     `json:"active"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	Scope      string         `json:"scope,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ApiError struct {
	Error apiErrorBody `json:"error"`
}

// Conversion helpers

func allocationResponse(a domain.Allocation) AllocationResponse {
	return AllocationResponse{
		OrderID:   a.OrderID,
		MoldID:    a.MoldID,
		MoldName:  a.MoldName,
		WorkDay:   a.WorkDay.Format(domain.DateLayout),
		Product:   a.Product,
		HeavyFill: a.HeavyFill,
		LOPAdjust: a.LOPAdjust,
		LOPLength: a.LOPLength,
		Priority:  a.Priority,
		RunID:     a.RunID,
	}
}

func mapAllocations(items []domain.Allocation) []AllocationResponse {
	out := make([]AllocationResponse, 0, len(items))
	for _, a := range items {
		out = append(out, allocationResponse(a))
	}
	return out
}

func generateResponse(res engine.ScheduleResult) GenerateScheduleResponse {
	return GenerateScheduleResponse{
		RunID:       res.RunID,
		Allocations: mapAllocations(res.Allocations),
		Analytics:   res.Report,
	}
}

func runResponse(r domain.Run) RunResponse {
	return RunResponse(r)
}

func orderResponse(o domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		Product:   o.Product,
		OrderDate: o.OrderDate.Format(domain.DateLayout),
		Stage:     o.Stage,
		Features:  decodeJSONMap(o.FeaturesJSON),
		UpdatedAt: o.UpdatedAt,
	}
	if o.DueDate != nil {
		resp.DueDate = o.DueDate.Format(domain.DateLayout)
	}
	return resp
}

func mapOrders(items []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(items))
	for _, o := range items {
		out = append(out, orderResponse(o))
	}
	return out
}

func moldResponse(m domain.Mold) MoldResponse {
	return MoldResponse(m)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		Scope:      e.Scope,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// decodeJSONMap returns nil for empty or malformed input.
func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
