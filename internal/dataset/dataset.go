// Package dataset holds the ordered stop collection a session works on and the
// CSV import pipeline that builds it.
package dataset

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"

	"routeops/internal/models"
	"routeops/internal/validation"
)

var (
	ErrStopNotFound = errors.New("stop not found")
	ErrDuplicateID  = errors.New("duplicate stop id")
)

// Dataset is an ordered sequence of stops plus the depot selection.
// It is not safe for concurrent use; the session serializes access.
type Dataset struct {
	stops    []models.Stop
	selected string
}

// StopPatch carries a partial update of a stop. Nil fields are left unchanged.
type StopPatch struct {
	ID     *string  `json:"id,omitempty"`
	Name   *string  `json:"name,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Demand *float64 `json:"demand,omitempty"`
}

// New creates a dataset holding a copy of stops
func New(stops ...models.Stop) *Dataset {
	return &Dataset{stops: slices.Clone(stops)}
}

// Stops returns a copy of the stops in insertion order
func (d *Dataset) Stops() []models.Stop {
	out := slices.Clone(d.stops)
	if out == nil {
		out = []models.Stop{}
	}
	return out
}

func (d *Dataset) Len() int {
	return len(d.stops)
}

func (d *Dataset) Has(id string) bool {
	return d.indexOf(id) >= 0
}

// Get returns the stop with the given id
func (d *Dataset) Get(id string) (models.Stop, bool) {
	i := d.indexOf(id)
	if i < 0 {
		return models.Stop{}, false
	}
	return d.stops[i], true
}

// Index builds an id lookup over the current stops
func (d *Dataset) Index() models.StopIndex {
	return models.NewStopIndex(d.stops)
}

// DepotID returns the effective depot: the selected stop when it is still
// present, otherwise the first stop, otherwise "".
func (d *Dataset) DepotID() string {
	if d.selected != "" && d.Has(d.selected) {
		return d.selected
	}
	if len(d.stops) > 0 {
		return d.stops[0].ID
	}
	return ""
}

// SetDepot selects the depot. An empty id clears the selection so the
// first stop is used.
func (d *Dataset) SetDepot(id string) error {
	if id != "" && !d.Has(id) {
		return fmt.Errorf("%w: %s", ErrStopNotFound, id)
	}
	d.selected = id
	return nil
}

// TotalDemand sums the demand of every stop
func (d *Dataset) TotalDemand() float64 {
	return lo.SumBy(d.stops, func(s models.Stop) float64 { return s.Demand })
}

// Add appends a stop after checking its fields and id uniqueness
func (d *Dataset) Add(s models.Stop) error {
	if err := validation.ValidateDraft(s); err != nil {
		return err
	}
	if d.Has(s.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
	}
	d.stops = append(d.stops, s)
	return nil
}

// AddBlank appends an empty row for manual entry with an id derived from now
func (d *Dataset) AddBlank(now time.Time) models.Stop {
	base := "stop-" + strconv.FormatInt(now.UnixMilli(), 10)
	id := base
	for n := 2; d.Has(id); n++ {
		id = base + "-" + strconv.Itoa(n)
	}

	s := models.Stop{ID: id}
	d.stops = append(d.stops, s)
	return s
}

// Update applies patch to the stop with the given id. Renaming the selected
// depot keeps it selected under the new id.
func (d *Dataset) Update(id string, patch StopPatch) (models.Stop, error) {
	i := d.indexOf(id)
	if i < 0 {
		return models.Stop{}, fmt.Errorf("%w: %s", ErrStopNotFound, id)
	}

	next := d.stops[i]
	if patch.ID != nil {
		next.ID = *patch.ID
	}
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Lat != nil {
		next.Lat = *patch.Lat
	}
	if patch.Lng != nil {
		next.Lng = *patch.Lng
	}
	if patch.Demand != nil {
		next.Demand = *patch.Demand
	}

	if err := validation.ValidateDraft(next); err != nil {
		return models.Stop{}, err
	}
	if next.ID != id && d.Has(next.ID) {
		return models.Stop{}, fmt.Errorf("%w: %s", ErrDuplicateID, next.ID)
	}

	d.stops[i] = next
	if d.selected == id && next.ID != id {
		d.selected = next.ID
	}
	return next, nil
}

// Remove deletes the stop with the given id. Removing the selected depot
// clears the selection, so the depot falls back to the first remaining stop.
func (d *Dataset) Remove(id string) error {
	i := d.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStopNotFound, id)
	}
	d.stops = slices.Delete(d.stops, i, i+1)
	if d.selected == id {
		d.selected = ""
		log.Printf("[SESSION] Depot stop removed, falling back to first stop: removed=%s depot=%s", id, d.DepotID())
	}
	return nil
}

// Replace swaps in a new stop list, as after a CSV import. The depot
// selection is cleared.
func (d *Dataset) Replace(stops []models.Stop) {
	d.stops = slices.Clone(stops)
	d.selected = ""
}

// Merge appends the stops whose ids are not already present and returns the
// ones that were added
func (d *Dataset) Merge(stops []models.Stop) []models.Stop {
	existing := lo.SliceToMap(d.stops, func(s models.Stop) (string, bool) { return s.ID, true })
	added := lo.Filter(stops, func(s models.Stop, _ int) bool {
		if existing[s.ID] {
			return false
		}
		existing[s.ID] = true
		return true
	})
	d.stops = append(d.stops, added...)
	return added
}

// Reset clears the stops and the depot together
func (d *Dataset) Reset() {
	d.stops = nil
	d.selected = ""
}

func (d *Dataset) indexOf(id string) int {
	return slices.IndexFunc(d.stops, func(s models.Stop) bool { return s.ID == id })
}
