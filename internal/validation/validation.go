// Package validation checks untrusted stop rows and problem settings.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"routeops/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// stopRow is a row after numeric coercion, checked with struct tags
type stopRow struct {
	ID     string  `json:"id" validate:"required"`
	Name   string  `json:"name" validate:"required"`
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng    float64 `json:"lng" validate:"gte=-180,lte=180"`
	Demand float64 `json:"demand" validate:"gte=0"`
}

var rangeMessages = map[string]string{
	"id":     "id is required",
	"name":   "name is required",
	"lat":    "lat must be in [-90, 90]",
	"lng":    "lng must be in [-180, 180]",
	"demand": "demand must be >= 0",
}

var fieldOrder = []string{"id", "name", "lat", "lng", "demand"}

// ValidateRow checks a raw row of string fields. It returns "" when the row is
// valid, otherwise every violation found joined by "; ". A field that cannot be
// read as a number suppresses the range checks for the row.
func ValidateRow(row map[string]string) string {
	_, msg := CoerceRow(row)
	return msg
}

// CoerceRow converts a raw row into a Stop, returning the stop and "" on success
// or a zero Stop and the combined violation message
func CoerceRow(row map[string]string) (models.Stop, string) {
	r := stopRow{
		ID:   strings.TrimSpace(row["id"]),
		Name: strings.TrimSpace(row["name"]),
	}

	var problems []string
	if r.ID == "" {
		problems = append(problems, rangeMessages["id"])
	}
	if r.Name == "" {
		problems = append(problems, rangeMessages["name"])
	}

	coerced := true
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"lat", &r.Lat},
		{"lng", &r.Lng},
		{"demand", &r.Demand},
	} {
		v, ok := parseNumber(row[f.name])
		if !ok {
			problems = append(problems, fmt.Sprintf("%s must be a number", f.name))
			coerced = false
			continue
		}
		*f.dst = v
	}

	if coerced {
		problems = append(problems, rangeProblems(r)...)
	}

	if len(problems) > 0 {
		return models.Stop{}, strings.Join(dedupe(problems), "; ")
	}

	return models.Stop{ID: r.ID, Name: r.Name, Lat: r.Lat, Lng: r.Lng, Demand: r.Demand}, ""
}

// ValidateStop checks an already-typed stop, as produced by manual edits
func ValidateStop(s models.Stop) error {
	problems := rangeProblems(stopRow{
		ID:     strings.TrimSpace(s.ID),
		Name:   strings.TrimSpace(s.Name),
		Lat:    s.Lat,
		Lng:    s.Lng,
		Demand: s.Demand,
	})
	for _, v := range []float64{s.Lat, s.Lng, s.Demand} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, "coordinates and demand must be finite numbers")
			break
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ValidateDraft is ValidateStop for a row still being edited by hand, which may
// not have a name yet
func ValidateDraft(s models.Stop) error {
	if strings.TrimSpace(s.Name) == "" {
		s.Name = "draft"
	}
	return ValidateStop(s)
}

// ValidateSettings checks that settings are structurally usable for a solve.
// The depot is resolved against the dataset elsewhere.
func ValidateSettings(s models.ProblemSettings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, settingsMessage(fe))
	}
	return errors.New(strings.Join(problems, "; "))
}

func settingsMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func rangeProblems(r stopRow) []string {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	failed := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		failed[fe.Field()] = true
	}

	var problems []string
	for _, f := range fieldOrder {
		if failed[f] {
			problems = append(problems, rangeMessages[f])
		}
	}
	return problems
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
