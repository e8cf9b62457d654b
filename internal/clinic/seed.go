package clinic

// DefaultData is the built-in dataset for the bundled scheduling flow. It
// describes a two-unit physiotherapy clinic and is used whenever no dataset
// is supplied at startup.
func DefaultData() Data {
	return Data{
		Name: "Clínica Reviva Fisioterapia",
		Locations: []Location{
			{
				ID:      "centro",
				Name:    "Centro",
				Address: "Av. Sete de Setembro, 1200 - Centro",
				Phone:   "(92) 3233-4100",
				MapsURL: "https://maps.google.com/?q=Clinica+Reviva+Centro",
				Aliases: []string{"unidade centro", "sete de setembro"},
			},
			{
				ID:      "ponta-negra",
				Name:    "Ponta Negra",
				Address: "Av. Coronel Teixeira, 5500 - Ponta Negra",
				Phone:   "(92) 3233-4200",
				MapsURL: "https://maps.google.com/?q=Clinica+Reviva+Ponta+Negra",
				Aliases: []string{"unidade ponta negra", "coronel teixeira", "ponta"},
			},
		},
		Procedures: []Procedure{
			{
				ID:          "fisioterapia",
				Name:        "Fisioterapia Ortopédica",
				Description: "Sessão individual com avaliação postural",
				Duration:    50,
				Keywords:    []string{"fisioterapia", "ortopedica", "ortopédica", "sessao", "sessão"},
				Prices:      map[string]float64{"centro": 120, "ponta-negra": 140},
				Packages: map[string][]Package{
					"centro":      {{Sessions: 10, Price: 1000}},
					"ponta-negra": {{Sessions: 10, Price: 1200}},
				},
			},
			{
				ID:          "pilates",
				Name:        "Pilates Clínico",
				Description: "Turmas de até 4 alunos com fisioterapeuta",
				Duration:    55,
				Keywords:    []string{"pilates"},
				Prices:      map[string]float64{"centro": 90, "ponta-negra": 110},
				Packages: map[string][]Package{
					"centro":      {{Sessions: 8, Price: 640}, {Sessions: 12, Price: 900}},
					"ponta-negra": {{Sessions: 8, Price: 800}, {Sessions: 12, Price: 1140}},
				},
			},
			{
				ID:          "acupuntura",
				Name:        "Acupuntura",
				Description: "Sessão de acupuntura para dor crônica",
				Duration:    40,
				Keywords:    []string{"acupuntura", "agulha"},
				Prices:      map[string]float64{"centro": 150},
				Locations:   []string{"centro"},
			},
			{
				ID:          "rpg",
				Name:        "RPG",
				Description: "Reeducação Postural Global",
				Duration:    50,
				Keywords:    []string{"rpg", "postural", "coluna"},
				Prices:      map[string]float64{"centro": 130, "ponta-negra": 150},
			},
			{
				ID:          "drenagem",
				Name:        "Drenagem Linfática",
				Description: "Drenagem manual pós-operatória",
				Duration:    60,
				Keywords:    []string{"drenagem", "linfatica", "linfática"},
				Prices:      map[string]float64{"ponta-negra": 160},
				Locations:   []string{"ponta-negra"},
			},
		},
		Insurances: []string{
			"BRADESCO", "SULAMÉRICA", "MEDISERVICE", "SAÚDE CAIXA",
			"PETROBRAS", "GEAP", "PRO SOCIAL", "POSTAL SAÚDE",
		},
		DiscountInsurances: []string{
			"CONAB", "AFFEAM", "AMBEP", "GAMA SAÚDE", "LIFE",
		},
		Hours: Hours{
			Weekdays: "07h às 19h",
			Saturday: "08h às 12h",
			Sunday:   "fechado",
		},
	}
}

// DefaultDirectory returns a Directory over the built-in dataset.
func DefaultDirectory() *Directory {
	return NewDirectory(DefaultData())
}
