// Package csvcodec converts between stop collections or route results and CSV text.
//
// Parsing follows the workbench's lenient rules rather than RFC 4180: a double quote
// anywhere in a field toggles quoted mode, separators and line breaks inside quotes are
// literal, and surrounding whitespace is trimmed from every field. A doubled quote inside
// a quoted field is read back as one literal quote so exported names survive a round trip.
package csvcodec

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Record is one data row keyed by lower-cased header name
type Record struct {
	// Line is the line on which the row starts, counting the header line as 1.
	// Blank lines before the header are not counted.
	Line   int
	Fields map[string]string
}

// Table is the parsed form of a CSV body
type Table struct {
	Header  []string
	Records []Record
}

// StopColumns are the columns a stop import needs
var StopColumns = []string{"id", "name", "lat", "lng", "demand"}

// maxSuggestionDistance bounds how far a header may be from a required column to be suggested
const maxSuggestionDistance = 2

// Parse splits text into string-keyed rows. The first row is the header.
// A body without at least one data row yields an empty result.
func Parse(text string) []map[string]string {
	table := ParseTable(text)
	rows := make([]map[string]string, len(table.Records))
	for i, rec := range table.Records {
		rows[i] = rec.Fields
	}
	return rows
}

// ParseTable is Parse keeping the header and the source line of every row
func ParseTable(text string) Table {
	raw := tokenize(text)
	if len(raw) < 2 {
		return Table{Header: headerOf(raw), Records: []Record{}}
	}

	header := headerOf(raw)
	offset := raw[0].line - 1
	records := make([]Record, 0, len(raw)-1)
	for _, r := range raw[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(r.values) {
				fields[h] = r.values[j]
			} else {
				fields[h] = ""
			}
		}
		records = append(records, Record{Line: r.line - offset, Fields: fields})
	}

	return Table{Header: header, Records: records}
}

// CheckHeader reports required columns missing from header, suggesting a
// near-miss column name when one exists
func CheckHeader(header []string, required []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	wanted := make(map[string]bool, len(required))
	for _, col := range required {
		wanted[col] = true
	}

	var warnings []string
	for _, col := range required {
		if present[col] {
			continue
		}

		best, bestDist := "", maxSuggestionDistance+1
		for _, h := range header {
			if wanted[h] {
				continue
			}
			if d := levenshtein.ComputeDistance(col, h); d < bestDist {
				best, bestDist = h, d
			}
		}

		if best != "" {
			warnings = append(warnings, fmt.Sprintf("missing column %q (did you mean %q?)", col, best))
		} else {
			warnings = append(warnings, fmt.Sprintf("missing column %q", col))
		}
	}

	return warnings
}

type rawRecord struct {
	line   int
	values []string
}

func headerOf(raw []rawRecord) []string {
	if len(raw) == 0 {
		return []string{}
	}
	header := make([]string, len(raw[0].values))
	for i, v := range raw[0].values {
		header[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return header
}

// tokenize walks the whole body once so quoted line breaks stay inside their field.
// Blank lines produce no record.
func tokenize(text string) []rawRecord {
	var (
		records  []rawRecord
		values   []string
		current  strings.Builder
		inQuotes bool
		line     = 1
		start    = 1
	)

	flush := func() {
		values = append(values, strings.TrimSpace(current.String()))
		current.Reset()
	}
	endRecord := func() {
		flush()
		if !(len(values) == 1 && values[0] == "") {
			records = append(records, rawRecord{line: start, values: values})
		}
		values = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(text) && text[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			flush()
		case (c == '\n' || c == '\r') && !inQuotes:
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			endRecord()
			line++
			start = line
		default:
			if c == '\n' {
				line++
			}
			current.WriteByte(c)
		}
	}
	endRecord()

	return records
}
