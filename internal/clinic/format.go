package clinic

import (
	"fmt"
	"strings"
)

// FormatPrice renders a value in Brazilian currency notation.
func FormatPrice(v float64) string {
	s := fmt.Sprintf("R$ %.2f", v)
	return strings.Replace(s, ".", ",", 1)
}

// LocationsMenu renders the numbered unit list shown when asking the user
// to pick a location.
func (d *Directory) LocationsMenu() string {
	var b strings.Builder
	for i, loc := range d.data.Locations {
		fmt.Fprintf(&b, "%d️⃣ %s - %s\n", i+1, loc.Name, loc.Address)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ProceduresBlock renders the procedures available at a location with their
// particular prices and package options.
func (d *Directory) ProceduresBlock(locationID string) string {
	var b strings.Builder
	for _, p := range d.Procedures(locationID) {
		fmt.Fprintf(&b, "• *%s*", p.Name)
		if price, ok := p.Price(locationID); ok {
			fmt.Fprintf(&b, ": %s", FormatPrice(price))
		}
		b.WriteString("\n")
		if p.Description != "" {
			fmt.Fprintf(&b, "  %s\n", p.Description)
		}
		for _, pkg := range p.Packages[locationID] {
			fmt.Fprintf(&b, "  Pacote %d sessões: %s\n", pkg.Sessions, FormatPrice(pkg.Price))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ProcedureBlock renders a single procedure at a location, used when the
// user asked about something specific.
func (d *Directory) ProcedureBlock(p Procedure, locationID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s", p.Description)
	}
	if p.Duration > 0 {
		fmt.Fprintf(&b, "\nDuração: %d minutos", p.Duration)
	}
	if price, ok := p.Price(locationID); ok {
		fmt.Fprintf(&b, "\nValor particular: %s", FormatPrice(price))
	}
	for _, pkg := range p.Packages[locationID] {
		fmt.Fprintf(&b, "\nPacote %d sessões: %s", pkg.Sessions, FormatPrice(pkg.Price))
	}
	return b.String()
}

// InsurancesBlock renders the accepted insurance list, separating full
// coverage from discount partners.
func (d *Directory) InsurancesBlock() string {
	var b strings.Builder
	b.WriteString("Convênios aceitos: ")
	b.WriteString(strings.Join(d.data.Insurances, ", "))
	if len(d.data.DiscountInsurances) > 0 {
		b.WriteString("\nConvênios com desconto: ")
		b.WriteString(strings.Join(d.data.DiscountInsurances, ", "))
	}
	return b.String()
}

// LocationBlock renders a unit's address card.
func (d *Directory) LocationBlock(loc Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📍 *%s - %s*\n%s\n📞 %s", d.data.Name, loc.Name, loc.Address, loc.Phone)
	if loc.MapsURL != "" {
		fmt.Fprintf(&b, "\n🗺️ %s", loc.MapsURL)
	}
	return b.String()
}

// HoursBlock renders the operating schedule.
func (d *Directory) HoursBlock() string {
	h := d.data.Hours
	return fmt.Sprintf("Segunda a sexta: %s\nSábado: %s\nDomingo: %s", h.Weekdays, h.Saturday, h.Sunday)
}

// PromptContext renders a compact description of the business for use as
// grounding inside AI prompts. locationID may be empty, in which case data
// for every unit is included.
func (d *Directory) PromptContext(locationID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", d.data.Name)
	if loc, ok := d.FindLocation(locationID); ok {
		fmt.Fprintf(&b, "Unidade: %s, %s, tel %s\n", loc.Name, loc.Address, loc.Phone)
		fmt.Fprintf(&b, "\nProcedimentos:\n%s\n", d.ProceduresBlock(loc.ID))
	} else {
		for _, loc := range d.data.Locations {
			fmt.Fprintf(&b, "Unidade %s: %s, tel %s\n", loc.Name, loc.Address, loc.Phone)
		}
		if len(d.data.Locations) > 0 {
			fmt.Fprintf(&b, "\nProcedimentos:\n%s\n", d.ProceduresBlock(d.data.Locations[0].ID))
		}
	}
	fmt.Fprintf(&b, "\n%s\n", d.InsurancesBlock())
	fmt.Fprintf(&b, "\nHorários:\n%s", d.HoursBlock())
	return b.String()
}
