package visual

import (
	"fmt"
	"log"
	"math"
	"sort"

	"routeops/internal/models"
)

// loadTolerance absorbs float noise when comparing reported and computed loads
const loadTolerance = 1e-6

// IntegrityReport lists the ways a solve response disagrees with the dataset
// it was computed from. Every dataset stop other than the depot must appear in
// exactly one route or in the unserved list.
type IntegrityReport struct {
	// Missing are dataset stops found neither in a route nor unserved
	Missing []string `json:"missing,omitempty"`
	// ServedAndUnserved are stops listed in a route and as unserved
	ServedAndUnserved []string `json:"servedAndUnserved,omitempty"`
	// MultiplyServed are stops that appear in more than one route or twice in one
	MultiplyServed []string `json:"multiplyServed,omitempty"`
	// Unknown are ids in the response that are not in the dataset
	Unknown []string `json:"unknown,omitempty"`
	// LoadMismatches describe routes whose load differs from the sum of demands
	LoadMismatches []string `json:"loadMismatches,omitempty"`
}

// OK reports whether no violation was found
func (r IntegrityReport) OK() bool {
	return len(r.Missing) == 0 &&
		len(r.ServedAndUnserved) == 0 &&
		len(r.MultiplyServed) == 0 &&
		len(r.Unknown) == 0 &&
		len(r.LoadMismatches) == 0
}

// Problems flattens the report into readable lines
func (r IntegrityReport) Problems() []string {
	var out []string
	for _, id := range r.Missing {
		out = append(out, fmt.Sprintf("stop %q is neither routed nor unserved", id))
	}
	for _, id := range r.ServedAndUnserved {
		out = append(out, fmt.Sprintf("stop %q is both routed and unserved", id))
	}
	for _, id := range r.MultiplyServed {
		out = append(out, fmt.Sprintf("stop %q is routed more than once", id))
	}
	for _, id := range r.Unknown {
		out = append(out, fmt.Sprintf("unknown stop id %q in result", id))
	}
	out = append(out, r.LoadMismatches...)
	return out
}

// CheckIntegrity compares resp against the stops it was solved for. The depot
// heads every route, so it is exempt from the exactly-once rule.
func CheckIntegrity(stops []models.Stop, depotID string, resp *models.SolveResponse) IntegrityReport {
	var report IntegrityReport
	if resp == nil {
		return report
	}

	idx := models.NewStopIndex(stops)
	served := make(map[string]int)
	unknown := make(map[string]bool)

	for _, r := range resp.Routes {
		var load float64
		for _, id := range r.StopIDs {
			s, ok := idx.Resolve(id)
			if !ok {
				unknown[id] = true
				continue
			}
			load += s.Demand
			if id != depotID {
				served[id]++
			}
		}
		if math.Abs(load-r.Load) > loadTolerance {
			report.LoadMismatches = append(report.LoadMismatches,
				fmt.Sprintf("route %d reports load %g but its stops sum to %g", r.RouteID, r.Load, load))
		}
	}

	unserved := make(map[string]bool, len(resp.UnservedStopIDs))
	for _, id := range resp.UnservedStopIDs {
		if _, ok := idx.Resolve(id); !ok {
			unknown[id] = true
			continue
		}
		unserved[id] = true
		if served[id] > 0 {
			report.ServedAndUnserved = append(report.ServedAndUnserved, id)
		}
	}

	for _, s := range stops {
		if s.ID == depotID {
			continue
		}
		if served[s.ID] > 1 {
			report.MultiplyServed = append(report.MultiplyServed, s.ID)
		}
		if served[s.ID] == 0 && !unserved[s.ID] {
			report.Missing = append(report.Missing, s.ID)
		}
	}

	for id := range unknown {
		report.Unknown = append(report.Unknown, id)
	}
	sort.Strings(report.Unknown)
	sort.Strings(report.ServedAndUnserved)

	// unknown ids were already reported by Resolve
	logged := report
	logged.Unknown = nil
	for _, p := range logged.Problems() {
		log.Printf("[INTEGRITY] %s", p)
	}
	return report
}
