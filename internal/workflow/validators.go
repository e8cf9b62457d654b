package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/flowdesk/flowdesk/internal/clinic"
	"github.com/flowdesk/flowdesk/internal/models"
)

// ValidatorFunc checks one collected field and returns the normalized value
// on success or a user-facing error message on failure.
type ValidatorFunc func(input string) models.ValidationResult

// validatorFor resolves the validator for a field name. Unknown fields get a
// permissive non-empty check so new flow fields do not break collection.
func validatorFor(field string) ValidatorFunc {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "nome", "name", "nome_completo":
		return ValidateName
	case "cpf":
		return ValidateCPF
	case "data_nascimento", "nascimento", "birth_date":
		return ValidateBirthDate
	case "email", "e-mail":
		return ValidateEmail
	case "telefone", "phone", "celular":
		return ValidatePhone
	case "convenio", "convênio", "insurance":
		return ValidateInsurance
	case "data_escolhida", "preferred_date":
		return ValidatePreferredDate
	case "turno", "shift":
		return ValidateShift
	default:
		return validateNonEmpty
	}
}

func invalid(msg string) models.ValidationResult {
	return models.ValidationResult{Valid: false, Error: msg}
}

func valid(normalized string) models.ValidationResult {
	return models.ValidationResult{Valid: true, NormalizedValue: normalized}
}

func validateNonEmpty(input string) models.ValidationResult {
	v := strings.TrimSpace(input)
	if v == "" {
		return invalid("Por favor, envie uma resposta.")
	}
	return valid(v)
}

var nameWordRe = regexp.MustCompile(`^[\p{L}'-]{2,}$`)

// ValidateName requires at least two words of two or more letters each and
// normalizes to title case.
func ValidateName(input string) models.ValidationResult {
	words := strings.Fields(strings.TrimSpace(input))
	if len(words) < 2 {
		return invalid("Por favor, informe seu *nome completo* (nome e sobrenome).")
	}
	for _, w := range words {
		if !nameWordRe.MatchString(w) {
			return invalid("O nome deve conter apenas letras. Pode verificar e enviar novamente?")
		}
	}
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return valid(strings.Join(words, " "))
}

func titleCase(w string) string {
	runes := []rune(strings.ToLower(w))
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

// ValidateCPF checks the two mod-11 check digits and normalizes to the
// 123.456.789-01 presentation form.
func ValidateCPF(input string) models.ValidationResult {
	digits := onlyDigits(input)
	if len(digits) != 11 {
		return invalid("CPF inválido. Envie os 11 dígitos, com ou sem pontuação.")
	}
	allEqual := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return invalid("CPF inválido. Pode verificar os números e enviar novamente?")
	}
	if !cpfCheckDigit(digits, 9) || !cpfCheckDigit(digits, 10) {
		return invalid("CPF inválido. Pode verificar os números e enviar novamente?")
	}
	formatted := fmt.Sprintf("%s.%s.%s-%s", digits[0:3], digits[3:6], digits[6:9], digits[9:11])
	return valid(formatted)
}

// cpfCheckDigit verifies the check digit at position pos (9 or 10) using the
// standard descending weights.
func cpfCheckDigit(digits string, pos int) bool {
	sum := 0
	for i := 0; i < pos; i++ {
		d := int(digits[i] - '0')
		sum += d * (pos + 1 - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		rem = 0
	}
	return rem == int(digits[pos]-'0')
}

// ValidateBirthDate accepts DD/MM/YYYY, requires a real calendar date and an
// age between 1 and 150 years.
func ValidateBirthDate(input string) models.ValidationResult {
	v := strings.TrimSpace(input)
	t, err := time.Parse("02/01/2006", v)
	if err != nil {
		return invalid("Data inválida. Use o formato *DD/MM/AAAA*, por exemplo 25/03/1990.")
	}
	age := time.Since(t).Hours() / 24 / 365.25
	if age < 1 || age > 150 {
		return invalid("Essa data não parece correta. Pode conferir e enviar novamente?")
	}
	return valid(t.Format("02/01/2006"))
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail applies a single-@ shape check and lowercases the address.
func ValidateEmail(input string) models.ValidationResult {
	v := strings.TrimSpace(input)
	if !emailRe.MatchString(v) {
		return invalid("E-mail inválido. Envie no formato nome@exemplo.com.")
	}
	return valid(strings.ToLower(v))
}

// ValidatePhone accepts Brazilian numbers with 10 or 11 digits, or 12-13
// digits when prefixed with the country code 55. Formatting is stripped.
func ValidatePhone(input string) models.ValidationResult {
	digits := onlyDigits(input)
	switch {
	case len(digits) == 10 || len(digits) == 11:
		return valid(digits)
	case (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55"):
		return valid(digits)
	default:
		return invalid("Telefone inválido. Envie com DDD, por exemplo (92) 99999-0000.")
	}
}

// ValidateInsurance requires at least two characters and normalizes through
// the insurance alias table.
func ValidateInsurance(input string) models.ValidationResult {
	v := strings.TrimSpace(input)
	if len([]rune(v)) < 2 {
		return invalid("Não reconheci o convênio. Pode enviar o nome completo? Se não tiver, responda *particular*.")
	}
	return valid(clinic.NormalizeInsurance(v))
}

// ValidatePreferredDate accepts "hoje", "amanhã", a weekday name, a DD/MM
// day (resolved to its next occurrence) or a DD/MM/YYYY date that is not in
// the past.
func ValidatePreferredDate(input string) models.ValidationResult {
	norm := strings.ToLower(strings.TrimSpace(input))
	switch norm {
	case "hoje", "amanha", "amanhã":
		return valid(norm)
	}
	for name := range weekdayAliases {
		if norm == name {
			return valid(norm)
		}
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if t, err := time.Parse("02/01/2006", norm); err == nil {
		if t.Before(today) {
			return invalid("Essa data já passou. Pode escolher uma data a partir de hoje?")
		}
		return valid(t.Format("02/01/2006"))
	}
	if t, err := time.Parse("02/01", norm); err == nil {
		t = time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if t.Before(today) {
			t = t.AddDate(1, 0, 0)
		}
		return valid(t.Format("02/01/2006"))
	}
	return invalid("Não entendi a data. Envie *hoje*, *amanhã*, um dia da semana ou uma data como 25/03.")
}

var weekdayAliases = map[string]struct{}{
	"segunda": {}, "segunda-feira": {},
	"terca": {}, "terça": {}, "terca-feira": {}, "terça-feira": {},
	"quarta": {}, "quarta-feira": {},
	"quinta": {}, "quinta-feira": {},
	"sexta": {}, "sexta-feira": {},
	"sabado": {}, "sábado": {},
	"domingo": {},
}

// ValidateShift maps shift synonyms onto the canonical Manhã/Tarde/Noite.
func ValidateShift(input string) models.ValidationResult {
	norm := strings.ToLower(strings.TrimSpace(input))
	switch norm {
	case "manha", "manhã", "de manha", "de manhã", "cedo", "matutino", "1":
		return valid("Manhã")
	case "tarde", "de tarde", "a tarde", "à tarde", "vespertino", "2":
		return valid("Tarde")
	case "noite", "de noite", "a noite", "à noite", "noturno", "3":
		return valid("Noite")
	}
	return invalid("Qual turno prefere? Responda *manhã*, *tarde* ou *noite*.")
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseMenuChoice resolves a digit or Portuguese number word to an index.
func parseMenuChoice(s string) (int, bool) {
	norm := strings.TrimSpace(strings.ToLower(s))
	if idx, ok := clinic.MenuIndex(norm); ok {
		return idx, ok
	}
	if n, err := strconv.Atoi(norm); err == nil && n >= 1 && n <= 9 {
		return n, true
	}
	return 0, false
}
