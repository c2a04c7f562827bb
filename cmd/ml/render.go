package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"moldline/internal/domain"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func renderAllocations(items []domain.Allocation) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Day", "Order", "Product", "Mold", "Priority", "Heavy fill", "LOP adjust", "LOP length"})
	for _, a := range items {
		tw.AppendRow(table.Row{
			a.WorkDay.Format(domain.DateLayout), a.OrderID, a.Product, a.MoldName,
			a.Priority, yesNo(a.HeavyFill), yesNo(a.LOPAdjust), a.LOPLength,
		})
	}
	tw.Render()
	fmt.Fprintf(stdout, "%d allocations\n", len(items))
}

func renderOrders(items []domain.Order) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Product", "Order date", "Due", "Stage"})
	for _, o := range items {
		due := ""
		if o.DueDate != nil {
			due = o.DueDate.Format(domain.DateLayout)
		}
		stage := o.Stage
		if stage == "" {
			stage = "backlog"
		}
		tw.AppendRow(table.Row{o.ID, o.Product, o.OrderDate.Format(domain.DateLayout), due, stage})
	}
	tw.Render()
}

func renderReport(runID string, r domain.Report) {
	fmt.Fprintf(stdout, "run %s: %d/%d scheduled (%.2f%%) over %d work days at %d orders/day\n",
		runID, r.ScheduledOrders, r.TotalOrders, r.Efficiency, r.WorkDays, r.DailyCapacity)
	if r.HintOverridden && r.CapacityHint != nil {
		fmt.Fprintf(stdout, "capacity hint %d overridden by labor capacity %d\n", *r.CapacityHint, r.DailyCapacity)
	}
	if len(r.MoldUtilization) > 0 {
		tw := newTable()
		tw.AppendHeader(table.Row{"Mold", "Allocations"})
		for _, k := range sortedKeys(r.MoldUtilization) {
			tw.AppendRow(table.Row{k, r.MoldUtilization[k]})
		}
		tw.Render()
	}
	if n := len(r.Failures.NoCompatibleMold); n > 0 {
		fmt.Fprintf(stdout, "no compatible mold (%d): %s\n", n, strings.Join(r.Failures.NoCompatibleMold, ", "))
	}
	if n := len(r.Failures.CapacityExhausted); n > 0 {
		fmt.Fprintf(stdout, "capacity exhausted (%d): %s\n", n, strings.Join(r.Failures.CapacityExhausted, ", "))
	}
	for _, w := range r.Warnings {
		fmt.Fprintln(stdout, "warning:", w)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
