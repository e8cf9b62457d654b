package workflow

import (
	"regexp"
	"strings"

	"github.com/flowdesk/flowdesk/internal/clinic"
	"github.com/flowdesk/flowdesk/internal/models"
)

// Interpolator substitutes ${...} tokens in outbound messages with values
// from the execution context and the business directory. Unknown tokens pass
// through untouched so a typo in a flow shows up in the message instead of
// silently vanishing.
type Interpolator struct {
	dir *clinic.Directory
}

// NewInterpolator builds an interpolator over the given directory.
func NewInterpolator(dir *clinic.Directory) *Interpolator {
	return &Interpolator{dir: dir}
}

var tokenRe = regexp.MustCompile(`\$\{([a-zA-Z0-9_.]+)\}`)

// Render replaces every known token in text.
func (in *Interpolator) Render(text string, ec *models.ExecutionContext) string {
	if !strings.Contains(text, "${") {
		return text
	}
	return tokenRe.ReplaceAllStringFunc(text, func(match string) string {
		token := match[2 : len(match)-1]
		if v, ok := in.resolve(token, ec); ok {
			return v
		}
		return match
	})
}

func (in *Interpolator) resolve(token string, ec *models.ExecutionContext) (string, bool) {
	loc, _ := in.dir.FindLocation(ec.SelectedLocation)
	switch token {
	case "unidade_nome":
		return loc.Name, true
	case "endereco":
		return loc.Address, true
	case "telefone":
		return loc.Phone, true
	case "maps_url":
		return loc.MapsURL, true
	case "horario_atendimento":
		return in.dir.HoursBlock(), true
	case "unidades_menu":
		return in.dir.LocationsMenu(), true
	case "procedimentos_disponiveis":
		return in.dir.ProceduresBlock(loc.ID), true
	case "convenios_aceitos":
		return in.dir.InsurancesBlock(), true
	case "data_escolhida":
		return ec.Collect("data_escolhida"), true
	case "turno":
		return ec.Collect("turno"), true
	}
	if field, ok := strings.CutPrefix(token, "paciente."); ok {
		return in.resolvePatient(field, ec)
	}
	return "", false
}

// resolvePatient follows the collected value, then the known profile value,
// then a placeholder dash so summaries never render blank fields.
func (in *Interpolator) resolvePatient(field string, ec *models.ExecutionContext) (string, bool) {
	switch field {
	case "nome":
		if v := ec.Collect("nome"); v != "" {
			return v, true
		}
		return orDash(ec.PatientName), true
	case "cpf":
		return orDash(ec.Collect("cpf")), true
	case "data_nascimento", "nascimento":
		return orDash(ec.Collect("data_nascimento")), true
	case "email":
		return orDash(ec.Collect("email")), true
	case "convenio":
		if v := ec.Collect("convenio"); v != "" {
			return v, true
		}
		return orDash(ec.PatientInsurance), true
	case "telefone":
		if v := ec.Collect("telefone"); v != "" {
			return v, true
		}
		return orDash(ec.UserID), true
	}
	return "", false
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
