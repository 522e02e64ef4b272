package dataset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeops/internal/models"
)

func threeStops() []models.Stop {
	return []models.Stop{
		{ID: "A", Name: "Stop A", Lat: 1, Lng: 1, Demand: 5},
		{ID: "B", Name: "Stop B", Lat: 2, Lng: 2, Demand: 7},
		{ID: "C", Name: "Stop C", Lat: 3, Lng: 3, Demand: 1},
	}
}

func TestParseStopsLatitudeBound(t *testing.T) {
	result := ParseStops("id,name,lat,lng,demand\nA,Stop A,10,20,5\nB,Stop B,91,20,5")

	require.Len(t, result.Stops, 1)
	assert.Equal(t, "A", result.Stops[0].ID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Row 3: lat must be in [-90, 90]", result.Errors[0])
	assert.Equal(t, "1 validation error(s)", result.Notice())
}

func TestParseStopsLeadingBlankLinesKeepRowLabels(t *testing.T) {
	result := ParseStops("\n\nid,name,lat,lng,demand\nA,Stop A,10,20,5\nB,Stop B,91,20,5")

	require.Len(t, result.Stops, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Row 3: lat must be in [-90, 90]", result.Errors[0])
}

func TestParseStopsDuplicateID(t *testing.T) {
	result := ParseStops("id,name,lat,lng,demand\nA,First,1,1,1\nA,Second,2,2,2\nB,Other,3,3,3")

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "duplicate id")
	assert.Equal(t, `Row 3: duplicate id "A"`, result.Errors[0])

	require.Len(t, result.Stops, 2)
	assert.Equal(t, "First", result.Stops[0].Name)
	assert.Equal(t, "B", result.Stops[1].ID)
}

func TestParseStopsInvalidRowDoesNotReserveID(t *testing.T) {
	result := ParseStops("id,name,lat,lng,demand\nA,Bad,x,1,1\nA,Good,1,1,1")

	require.Len(t, result.Stops, 1)
	assert.Equal(t, "Good", result.Stops[0].Name)
	assert.Equal(t, []string{"Row 2: lat must be a number"}, result.Errors)
}

func TestParseStopsEmptyAndHeaderOnly(t *testing.T) {
	for _, text := range []string{"", "id,name,lat,lng,demand", "id,name,lat,lng,demand\n"} {
		result := ParseStops(text)
		assert.Empty(t, result.Stops)
		assert.Empty(t, result.Errors)
		assert.Equal(t, "", result.Notice())
	}
}

func TestParseStopsHeaderWarnings(t *testing.T) {
	result := ParseStops("id,name,lat,lon,demand\nA,Stop A,1,2,3")

	assert.Equal(t, []string{`missing column "lng" (did you mean "lon"?)`}, result.HeaderWarnings)
	assert.Equal(t, []string{"Row 2: lng must be a number"}, result.Errors)
}

func TestParseStopsNotice(t *testing.T) {
	result := ParseStops("id,name,lat,lng,demand\nA,Stop A,1,2,3\nB,Stop B,1,2,3")
	assert.Equal(t, "Loaded 2 stops", result.Notice())
}

func TestDepotDerivation(t *testing.T) {
	d := New()
	assert.Equal(t, "", d.DepotID())

	d = New(threeStops()...)
	assert.Equal(t, "A", d.DepotID())

	require.NoError(t, d.SetDepot("B"))
	assert.Equal(t, "B", d.DepotID())

	err := d.SetDepot("missing")
	assert.True(t, errors.Is(err, ErrStopNotFound))
	assert.Equal(t, "B", d.DepotID())

	require.NoError(t, d.SetDepot(""))
	assert.Equal(t, "A", d.DepotID())
}

func TestRemoveDepotFallsBackToFirstRemaining(t *testing.T) {
	d := New(threeStops()...)
	require.NoError(t, d.SetDepot("A"))

	require.NoError(t, d.Remove("A"))
	assert.Equal(t, "B", d.DepotID())
	assert.Equal(t, 2, d.Len())

	require.NoError(t, d.Remove("B"))
	require.NoError(t, d.Remove("C"))
	assert.Equal(t, "", d.DepotID())

	assert.ErrorIs(t, d.Remove("C"), ErrStopNotFound)
}

func TestRemoveNonDepotKeepsSelection(t *testing.T) {
	d := New(threeStops()...)
	require.NoError(t, d.SetDepot("C"))
	require.NoError(t, d.Remove("A"))
	assert.Equal(t, "C", d.DepotID())
}

func TestAdd(t *testing.T) {
	d := New(threeStops()...)

	require.NoError(t, d.Add(models.Stop{ID: "D", Name: "Stop D", Lat: 4, Lng: 4, Demand: 2}))
	assert.Equal(t, 4, d.Len())

	assert.ErrorIs(t, d.Add(models.Stop{ID: "A", Name: "Again"}), ErrDuplicateID)
	assert.Error(t, d.Add(models.Stop{ID: "E", Name: "E", Lat: 100}))
	assert.Equal(t, 4, d.Len())
}

func TestAddBlank(t *testing.T) {
	d := New()
	now := time.UnixMilli(1700000000000)

	first := d.AddBlank(now)
	second := d.AddBlank(now)

	assert.Equal(t, "stop-1700000000000", first.ID)
	assert.Equal(t, "stop-1700000000000-2", second.ID)
	assert.Equal(t, "", first.Name)
	assert.Equal(t, 2, d.Len())
}

func TestUpdate(t *testing.T) {
	d := New(threeStops()...)
	require.NoError(t, d.SetDepot("B"))

	name := "Renamed"
	demand := 9.0
	s, err := d.Update("A", StopPatch{Name: &name, Demand: &demand})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Name)
	assert.Equal(t, 9.0, s.Demand)
	assert.Equal(t, 1.0, s.Lat)

	newID := "B2"
	_, err = d.Update("B", StopPatch{ID: &newID})
	require.NoError(t, err)
	assert.Equal(t, "B2", d.DepotID())

	dup := "C"
	_, err = d.Update("A", StopPatch{ID: &dup})
	assert.ErrorIs(t, err, ErrDuplicateID)

	bad := 181.0
	_, err = d.Update("A", StopPatch{Lng: &bad})
	require.Error(t, err)
	assert.Equal(t, "lng must be in [-180, 180]", err.Error())
	got, _ := d.Get("A")
	assert.Equal(t, 1.0, got.Lng)

	_, err = d.Update("nope", StopPatch{Name: &name})
	assert.ErrorIs(t, err, ErrStopNotFound)
}

func TestMergeFiltersExistingIDs(t *testing.T) {
	d := New(threeStops()...)

	added := d.Merge([]models.Stop{
		{ID: "B", Name: "dup"},
		{ID: "X", Name: "new"},
		{ID: "X", Name: "dup in batch"},
	})

	require.Len(t, added, 1)
	assert.Equal(t, "X", added[0].ID)
	assert.Equal(t, 4, d.Len())
	got, _ := d.Get("B")
	assert.Equal(t, "Stop B", got.Name)
}

func TestReplaceAndReset(t *testing.T) {
	d := New(threeStops()...)
	require.NoError(t, d.SetDepot("C"))

	d.Replace([]models.Stop{{ID: "Z", Name: "Zed"}})
	assert.Equal(t, "Z", d.DepotID())
	assert.Equal(t, 1, d.Len())

	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, "", d.DepotID())
	assert.NotNil(t, d.Stops())
}

func TestTotalDemandAndStopsCopy(t *testing.T) {
	d := New(threeStops()...)
	assert.Equal(t, 13.0, d.TotalDemand())

	stops := d.Stops()
	stops[0].Name = "mutated"
	got, _ := d.Get("A")
	assert.Equal(t, "Stop A", got.Name)
}
