package clinic

import "strings"

// insuranceAliases maps common misspellings and shorthand to canonical
// insurance labels. Entries are ordered most specific first so that a
// longer alias wins over a shorter one contained in it.
var insuranceAliases = []struct {
	alias     string
	canonical string
}{
	{"sul america", "SULAMÉRICA"},
	{"sulamerica", "SULAMÉRICA"},
	{"sula", "SULAMÉRICA"},
	{"bradesco saude", "BRADESCO"},
	{"bradisco", "BRADESCO"},
	{"bradesco", "BRADESCO"},
	{"medservice", "MEDISERVICE"},
	{"mediservice", "MEDISERVICE"},
	{"saude caixa", "SAÚDE CAIXA"},
	{"caixa", "SAÚDE CAIXA"},
	{"petrobras", "PETROBRAS"},
	{"petrobas", "PETROBRAS"},
	{"geap", "GEAP"},
	{"pro social", "PRO SOCIAL"},
	{"prosocial", "PRO SOCIAL"},
	{"postal saude", "POSTAL SAÚDE"},
	{"postal", "POSTAL SAÚDE"},
	{"correios", "POSTAL SAÚDE"},
	{"conab", "CONAB"},
	{"affeam", "AFFEAM"},
	{"ambep", "AMBEP"},
	{"gama saude", "GAMA SAÚDE"},
	{"gama", "GAMA SAÚDE"},
	{"life empresarial", "LIFE"},
	{"life", "LIFE"},
	{"particular", "Particular"},
	{"nenhum", "Particular"},
	{"nao tenho", "Particular"},
	{"sem convenio", "Particular"},
}

// NormalizeInsurance maps free-text insurance input to its canonical label.
// Matching is case and accent insensitive and tolerates common typos.
// Unrecognized input is returned trimmed and upper-cased so it still reads
// like a label downstream.
func NormalizeInsurance(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "Particular"
	}
	norm := foldAccents(strings.ToLower(trimmed))
	norm = strings.Join(strings.Fields(norm), " ")
	for _, entry := range insuranceAliases {
		if norm == entry.alias || strings.Contains(norm, entry.alias) {
			return entry.canonical
		}
	}
	return strings.ToUpper(trimmed)
}

// foldAccents strips the diacritics that appear in Portuguese insurance and
// location names. Deliberately small: full Unicode folding is not needed for
// this vocabulary.
func foldAccents(s string) string {
	return accentReplacer.Replace(s)
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)
