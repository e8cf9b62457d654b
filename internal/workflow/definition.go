package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "embed"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowdesk/flowdesk/internal/models"
)

//go:embed definition_schema.json
var definitionSchema string

// ValidateDefinitionJSON checks raw definition JSON against the authoring
// schema. Structural checks (edge targets, start node) happen at engine
// build; the schema catches shape mistakes with readable messages.
func ValidateDefinitionJSON(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", models.ErrDefinitionInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// ParseDefinition validates and decodes a workflow definition document.
func ParseDefinition(raw []byte) (*models.Definition, error) {
	if err := ValidateDefinitionJSON(raw); err != nil {
		return nil, err
	}
	var def models.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &def, nil
}

// LoadDefinitionFile reads and parses a definition from disk.
func LoadDefinitionFile(path string) (*models.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	def, err := ParseDefinition(raw)
	if err != nil {
		return nil, fmt.Errorf("parse definition %s: %w", path, err)
	}
	return def, nil
}

func boolPtr(b bool) *bool { return &b }

// DefaultDefinition is the bundled scheduling flow: welcome, unit choice,
// patient lookup, a six-option service menu with an AI fallback, lookups,
// registration and appointment booking, plus human hand-off.
func DefaultDefinition() *models.Definition {
	menu := "Como posso ajudar? 😊\n\n" +
		"1️⃣ Preços e valores\n" +
		"2️⃣ Convênios\n" +
		"3️⃣ Endereço e horários\n" +
		"4️⃣ Informações sobre procedimentos\n" +
		"5️⃣ Agendar avaliação\n" +
		"6️⃣ Falar com atendente"

	nodes := []models.WorkflowNode{
		{ID: "start", Type: models.NodeStart},
		{ID: "welcome", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Olá! 👋 Bem-vindo(a) à Clínica Reviva Fisioterapia!",
			AwaitsReply: boolPtr(false),
		}},
		{ID: "ask_location", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Em qual unidade você prefere atendimento?\n\n${unidades_menu}",
			AwaitsReply: boolPtr(true),
		}},
		{ID: "pick_location", Type: models.NodeCondition, Content: models.NodeContent{
			Condition:    "location_selection",
			FalseMessage: "Não entendi 😅 Pode escolher a unidade respondendo *1* ou *2*?",
		}},
		{ID: "find_patient", Type: models.NodeAction, Content: models.NodeContent{
			Action: "search_patient_by_phone",
		}},
		{ID: "route_patient", Type: models.NodeCondition, Content: models.NodeContent{
			Condition: "patientFound",
		}},
		{ID: "greet_known", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Que bom te ver de novo, ${paciente.nome}! 😊",
			AwaitsReply: boolPtr(false),
		}},
		{ID: "menu_services", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     menu,
			AwaitsReply: boolPtr(true),
		}},
		{ID: "route_service", Type: models.NodeCondition, Content: models.NodeContent{
			Condition: "service_menu",
		}},
		{ID: "classify_intent", Type: models.NodeAIClassify, Content: models.NodeContent{
			SystemPrompt: "Você é a recepcionista virtual de uma clínica de fisioterapia.",
		}},
		{ID: "lookup_prices", Type: models.NodeExternalLookup, Content: models.NodeContent{Endpoint: "prices"}},
		{ID: "lookup_insurances", Type: models.NodeExternalLookup, Content: models.NodeContent{Endpoint: "insurances"}},
		{ID: "lookup_location", Type: models.NodeExternalLookup, Content: models.NodeContent{Endpoint: "location"}},
		{ID: "lookup_procedures", Type: models.NodeExternalLookup, Content: models.NodeContent{Endpoint: "procedures"}},
		{ID: "after_topic", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Posso ajudar com mais alguma coisa? Escolha uma opção do menu ou escreva sua dúvida.",
			AwaitsReply: boolPtr(false),
		}},
		{ID: "schedule_check", Type: models.NodeCondition, Content: models.NodeContent{
			Condition: "patientFound",
		}},
		{ID: "reg_intro", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Para agendar, preciso de alguns dados. 📋",
			AwaitsReply: boolPtr(false),
		}},
		{ID: "ask_name", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "nome",
			Prompt: "Qual é o seu *nome completo*?",
		}},
		{ID: "ask_cpf", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "cpf",
			Prompt: "Agora o seu *CPF*, por favor.",
		}},
		{ID: "ask_birth", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "data_nascimento",
			Prompt: "Sua *data de nascimento*? (DD/MM/AAAA)",
		}},
		{ID: "ask_email", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "email",
			Prompt: "Qual é o seu *e-mail*?",
		}},
		{ID: "ask_insurance", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "convenio",
			Prompt: "Você tem *convênio*? Envie o nome ou responda *particular*.",
		}},
		{ID: "ask_phone", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "telefone",
			Prompt: "Para finalizar, qual *telefone* de contato?",
		}},
		{ID: "create_profile", Type: models.NodeAction, Content: models.NodeContent{
			Action: "create_patient_profile",
		}},
		{ID: "reg_done", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Cadastro concluído, ${paciente.nome}! ✅",
			AwaitsReply: boolPtr(false),
		}},
		{ID: "ask_date", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "data_escolhida",
			Prompt: "Para qual dia você gostaria de agendar? Pode responder *hoje*, *amanhã*, um dia da semana ou uma data.",
		}},
		{ID: "ask_shift", Type: models.NodeDataCollection, Content: models.NodeContent{
			Field:  "turno",
			Prompt: "Qual turno prefere: *manhã*, *tarde* ou *noite*?",
		}},
		{ID: "confirm_booking", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Confirmando: ${data_escolhida}, turno ${turno}, na unidade ${unidade_nome}. Está correto? Responda *sim* para confirmar.",
			AwaitsReply: boolPtr(true),
		}},
		{ID: "check_confirm", Type: models.NodeCondition, Content: models.NodeContent{
			Condition: "sim|ok|confirmar|claro|isso",
		}},
		{ID: "book", Type: models.NodeAction, Content: models.NodeContent{
			Action: "book_appointment",
		}},
		{ID: "booked", Type: models.NodeMessage, Content: models.NodeContent{
			Message:     "Prontinho! 🎉 Sua solicitação foi registrada. Nossa equipe confirmará o horário em breve.",
			AwaitsReply: boolPtr(false),
		}},
		{ID: "transfer_human", Type: models.NodeTransferHuman, Content: models.NodeContent{
			Message: "Um momento, vou transferir você para um de nossos atendentes. 🧑‍💼",
		}},
		{ID: "end", Type: models.NodeEnd, Content: models.NodeContent{
			Message: "Obrigado pelo contato! Até breve. 👋",
		}},
	}

	edges := []models.Edge{
		{ID: "e01", Source: "start", Target: "welcome"},
		{ID: "e02", Source: "welcome", Target: "ask_location"},
		{ID: "e03", Source: "ask_location", Target: "pick_location"},
		{ID: "e04", Source: "pick_location", Target: "find_patient", Port: "centro"},
		{ID: "e05", Source: "pick_location", Target: "find_patient", Port: "ponta-negra"},
		{ID: "e06", Source: "find_patient", Target: "route_patient"},
		{ID: "e07", Source: "route_patient", Target: "greet_known", Port: "true"},
		{ID: "e08", Source: "route_patient", Target: "menu_services", Port: "false"},
		{ID: "e09", Source: "greet_known", Target: "menu_services"},
		{ID: "e10", Source: "menu_services", Target: "route_service"},
		{ID: "e11", Source: "route_service", Target: "lookup_prices", Port: "1"},
		{ID: "e12", Source: "route_service", Target: "lookup_insurances", Port: "2"},
		{ID: "e13", Source: "route_service", Target: "lookup_location", Port: "3"},
		{ID: "e14", Source: "route_service", Target: "lookup_procedures", Port: "4"},
		{ID: "e15", Source: "route_service", Target: "schedule_check", Port: "5"},
		{ID: "e16", Source: "route_service", Target: "transfer_human", Port: "6"},
		{ID: "e17", Source: "route_service", Target: "classify_intent", Port: "fallback"},
		{ID: "e18", Source: "classify_intent", Target: "lookup_prices", Port: "1"},
		{ID: "e19", Source: "classify_intent", Target: "lookup_insurances", Port: "2"},
		{ID: "e20", Source: "classify_intent", Target: "lookup_location", Port: "3"},
		{ID: "e21", Source: "classify_intent", Target: "lookup_procedures", Port: "4"},
		{ID: "e22", Source: "classify_intent", Target: "schedule_check", Port: "5"},
		{ID: "e23", Source: "classify_intent", Target: "transfer_human", Port: "6"},
		{ID: "e24", Source: "lookup_prices", Target: "after_topic"},
		{ID: "e25", Source: "lookup_insurances", Target: "after_topic"},
		{ID: "e26", Source: "lookup_location", Target: "after_topic"},
		{ID: "e27", Source: "lookup_procedures", Target: "after_topic"},
		{ID: "e28", Source: "after_topic", Target: "route_service"},
		{ID: "e29", Source: "schedule_check", Target: "ask_date", Port: "true"},
		{ID: "e30", Source: "schedule_check", Target: "reg_intro", Port: "false"},
		{ID: "e31", Source: "reg_intro", Target: "ask_name"},
		{ID: "e32", Source: "ask_name", Target: "ask_cpf"},
		{ID: "e33", Source: "ask_cpf", Target: "ask_birth"},
		{ID: "e34", Source: "ask_birth", Target: "ask_email"},
		{ID: "e35", Source: "ask_email", Target: "ask_insurance"},
		{ID: "e36", Source: "ask_insurance", Target: "ask_phone"},
		{ID: "e37", Source: "ask_phone", Target: "create_profile"},
		{ID: "e38", Source: "create_profile", Target: "reg_done"},
		{ID: "e39", Source: "reg_done", Target: "ask_date"},
		{ID: "e40", Source: "ask_date", Target: "ask_shift"},
		{ID: "e41", Source: "ask_shift", Target: "confirm_booking"},
		{ID: "e42", Source: "confirm_booking", Target: "check_confirm"},
		{ID: "e43", Source: "check_confirm", Target: "book", Port: "true"},
		{ID: "e44", Source: "check_confirm", Target: "ask_date", Port: "false"},
		{ID: "e45", Source: "book", Target: "booked"},
		{ID: "e46", Source: "booked", Target: "end"},
	}

	return &models.Definition{
		ID:          "clinic-scheduling",
		Name:        "Atendimento e Agendamento",
		Description: "Fluxo padrão de recepção, dúvidas e agendamento da clínica.",
		Active:      true,
		Nodes:       nodes,
		Edges:       edges,
	}
}
