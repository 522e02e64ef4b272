package dataset

import (
	"fmt"
	"log"

	"routeops/internal/csvcodec"
	"routeops/internal/models"
	"routeops/internal/validation"
)

// ImportResult is the outcome of reading stops from CSV text. Rows with errors
// are dropped and described in Errors; the valid rows are kept in input order.
type ImportResult struct {
	Stops          []models.Stop `json:"stops"`
	Errors         []string      `json:"errors"`
	HeaderWarnings []string      `json:"headerWarnings,omitempty"`
}

// ParseStops runs the import pipeline: tokenize, validate every row, then
// reject ids already seen earlier in the batch. Error labels use the line the
// row starts on, so the first data row is "Row 2".
func ParseStops(text string) ImportResult {
	table := csvcodec.ParseTable(text)
	result := ImportResult{
		Stops:  make([]models.Stop, 0, len(table.Records)),
		Errors: []string{},
	}

	if len(table.Records) == 0 {
		return result
	}

	result.HeaderWarnings = csvcodec.CheckHeader(table.Header, csvcodec.StopColumns)
	for _, w := range result.HeaderWarnings {
		log.Printf("[IMPORT] Header warning: %s", w)
	}

	seen := make(map[string]bool, len(table.Records))
	for _, rec := range table.Records {
		stop, msg := validation.CoerceRow(rec.Fields)
		if msg != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", rec.Line, msg))
			continue
		}
		if seen[stop.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: duplicate id %q", rec.Line, stop.ID))
			continue
		}
		seen[stop.ID] = true
		result.Stops = append(result.Stops, stop)
	}

	log.Printf("[IMPORT] Parsed CSV: rows=%d stops=%d errors=%d", len(table.Records), len(result.Stops), len(result.Errors))
	return result
}

// Notice is the short status line shown after an import
func (r ImportResult) Notice() string {
	if len(r.Errors) > 0 {
		return fmt.Sprintf("%d validation error(s)", len(r.Errors))
	}
	if len(r.Stops) > 0 {
		return fmt.Sprintf("Loaded %d stops", len(r.Stops))
	}
	return ""
}
