// Package clinic provides the read-only business-data directory used by the
// workflow engine: locations, procedures with per-location pricing, accepted
// insurances and business hours. It also hosts the patient record service
// that Action nodes operate through.
package clinic

import (
	"log/slog"
	"strings"
)

// Location is one physical unit of the business.
type Location struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Phone   string   `json:"phone"`
	MapsURL string   `json:"mapsUrl"`
	Aliases []string `json:"aliases,omitempty"`
}

// Package is a multi-session bundle price for a procedure.
type Package struct {
	Sessions int     `json:"sessions"`
	Price    float64 `json:"price"`
}

// Procedure describes a bookable service with per-location prices.
type Procedure struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Duration    int                  `json:"duration"` // minutes
	Keywords    []string             `json:"keywords,omitempty"`
	Prices      map[string]float64   `json:"prices,omitempty"`
	Packages    map[string][]Package `json:"packages,omitempty"`
	// Locations restricts availability; empty means offered everywhere.
	Locations []string `json:"locations,omitempty"`
}

// Hours is the business operating schedule.
type Hours struct {
	Weekdays string `json:"weekdays"`
	Saturday string `json:"saturday"`
	Sunday   string `json:"sunday"`
}

// Data is the full static dataset backing a Directory.
type Data struct {
	Name               string      `json:"name"`
	Locations          []Location  `json:"locations"`
	Procedures         []Procedure `json:"procedures"`
	Insurances         []string    `json:"insurances"`
	DiscountInsurances []string    `json:"discountInsurances,omitempty"`
	Hours              Hours       `json:"hours"`
}

// Directory exposes read-only business data to executors and interpolation.
// It is safe for concurrent use: the backing data is never mutated after
// construction.
type Directory struct {
	data Data
}

// NewDirectory builds a Directory over the given dataset.
func NewDirectory(data Data) *Directory {
	slog.Debug("clinic.NewDirectory", "name", data.Name, "locations", len(data.Locations), "procedures", len(data.Procedures))
	return &Directory{data: data}
}

// Name returns the business name.
func (d *Directory) Name() string { return d.data.Name }

// Hours returns the business operating schedule.
func (d *Directory) Hours() Hours { return d.data.Hours }

// Locations returns all units in menu order.
func (d *Directory) Locations() []Location { return d.data.Locations }

// FindLocation resolves a location by id, tolerating dash/underscore
// variants. Falls back to the first unit when code is empty or unknown, so
// interpolation always has something to render.
func (d *Directory) FindLocation(code string) (Location, bool) {
	if len(d.data.Locations) == 0 {
		return Location{}, false
	}
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "_", "-")
	for _, loc := range d.data.Locations {
		if strings.ReplaceAll(strings.ToLower(loc.ID), "_", "-") == norm {
			return loc, true
		}
	}
	return d.data.Locations[0], false
}

// MatchLocation resolves free text (a menu number, a number word, a name or
// alias) to one of the units. Used by the location-selection condition.
func (d *Directory) MatchLocation(input string) (Location, bool) {
	norm := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if norm == "" {
		return Location{}, false
	}
	if idx, ok := menuIndex(norm); ok && idx <= len(d.data.Locations) {
		return d.data.Locations[idx-1], true
	}
	for _, loc := range d.data.Locations {
		if strings.Contains(norm, strings.ToLower(loc.Name)) {
			return loc, true
		}
		for _, alias := range loc.Aliases {
			if strings.Contains(norm, strings.ToLower(alias)) {
				return loc, true
			}
		}
	}
	return Location{}, false
}

// menuIndex maps a digit or Portuguese number word to a 1-based menu index.
func menuIndex(s string) (int, bool) {
	words := map[string]int{
		"1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6,
		"um": 1, "dois": 2, "tres": 3, "três": 3,
		"quatro": 4, "cinco": 5, "seis": 6,
	}
	idx, ok := words[s]
	return idx, ok
}

// MenuIndex exposes the shared digit/number-word mapping for selections.
func MenuIndex(s string) (int, bool) {
	return menuIndex(strings.TrimSpace(strings.ToLower(s)))
}

// Procedures returns the procedures offered at the given location.
func (d *Directory) Procedures(locationID string) []Procedure {
	var out []Procedure
	for _, p := range d.data.Procedures {
		if p.availableAt(locationID) {
			out = append(out, p)
		}
	}
	return out
}

func (p Procedure) availableAt(locationID string) bool {
	if len(p.Locations) == 0 {
		return true
	}
	norm := strings.ReplaceAll(strings.ToLower(locationID), "_", "-")
	for _, id := range p.Locations {
		if strings.ReplaceAll(strings.ToLower(id), "_", "-") == norm {
			return true
		}
	}
	return false
}

// Price returns the particular (out-of-pocket) price of p at the location.
func (p Procedure) Price(locationID string) (float64, bool) {
	v, ok := p.Prices[locationID]
	return v, ok
}

// DetectProcedure scans free text for procedure keywords and returns the
// first mentioned procedure available at the location.
func (d *Directory) DetectProcedure(text, locationID string) (Procedure, bool) {
	norm := strings.ToLower(text)
	for _, p := range d.data.Procedures {
		if !p.availableAt(locationID) {
			continue
		}
		for _, kw := range p.Keywords {
			if strings.Contains(norm, strings.ToLower(kw)) {
				return p, true
			}
		}
	}
	return Procedure{}, false
}

// FindProcedureByName resolves a procedure by exact or substring name match.
func (d *Directory) FindProcedureByName(name string) (Procedure, bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	for _, p := range d.data.Procedures {
		if strings.ToLower(p.Name) == norm {
			return p, true
		}
	}
	for _, p := range d.data.Procedures {
		if norm != "" && strings.Contains(strings.ToLower(p.Name), norm) {
			return p, true
		}
	}
	return Procedure{}, false
}

// Insurances returns all accepted insurance labels (full coverage first,
// then discount partners).
func (d *Directory) Insurances() []string {
	out := make([]string, 0, len(d.data.Insurances)+len(d.data.DiscountInsurances))
	out = append(out, d.data.Insurances...)
	out = append(out, d.data.DiscountInsurances...)
	return out
}

// AcceptsInsurance reports whether the label (after normalization) is an
// accepted insurance.
func (d *Directory) AcceptsInsurance(label string) bool {
	norm := NormalizeInsurance(label)
	for _, ins := range d.Insurances() {
		if strings.EqualFold(ins, norm) {
			return true
		}
	}
	return false
}
