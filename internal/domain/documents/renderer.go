package documents

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"isp-contracts/internal/domain/contracts"
)

// Anchor es la línea del BODY que el Embedder reemplaza por el bloque de firma.
const Anchor = "[[FIRMA_SUSCRIPTOR]]"

var bodyTemplate = template.Must(template.New("contract").Parse(`CONTRATO DE PRESTACIÓN DE SERVICIOS DE INTERNET
Número: {{.Number}}
Tipo de contrato: {{.Type}}
Estado: {{.State}}
Fecha de generación: {{.GeneratedAt}}

SUSCRIPTOR
Cliente: {{.ClientID}}

PLAN CONTRATADO
Plan: {{.PlanName}} ({{.PlanID}})
Cuota mensual: {{.MonthlyPrice}} {{.Currency}}
{{- if .InstallationFee}}
Cargo de instalación: {{.InstallationFee}} {{.Currency}}
{{- end}}
{{if .Permanence}}
CLÁUSULA DE PERMANENCIA
El suscriptor se obliga a mantener el servicio por un plazo mínimo de {{.TermMonths}} meses.
Penalidad por terminación anticipada: {{.Penalty}} {{.Currency}}
{{end}}
{{- if .Observations}}
OBSERVACIONES
{{- range .Observations}}
- {{.At}} [{{.State}}] {{.Text}}
{{- end}}
{{end}}
FIRMA DEL SUSCRIPTOR
` + Anchor + `
`))

type bodyView struct {
	Number          string
	Type            string
	State           string
	GeneratedAt     string
	ClientID        string
	PlanID          string
	PlanName        string
	Currency        string
	MonthlyPrice    string
	InstallationFee string
	Permanence      bool
	TermMonths      int
	Penalty         string
	Observations    []observationView
}

type observationView struct {
	At    string
	State string
	Text  string
}

type metaView struct {
	ContractID  string `json:"contract_id"`
	Number      string `json:"number"`
	Type        string `json:"type"`
	State       string `json:"state"`
	Fingerprint string `json:"fingerprint"`
	GeneratedAt string `json:"generated_at"`
}

// Renderer produce el contenedor sin firmar a partir de la plantilla fija.
// Es puro: mismo contrato, mismos bytes.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

func (r *Renderer) Render(c contracts.Contract) ([]byte, error) {
	if err := requireFields(c); err != nil {
		return nil, err
	}

	view := bodyView{
		Number:       c.Number,
		Type:         string(c.Type),
		State:        string(c.State),
		GeneratedAt:  formatDate(c.GeneratedAt),
		ClientID:     c.ClientID,
		PlanID:       c.PlanID,
		PlanName:     c.PlanName,
		Currency:     c.Terms.Currency,
		MonthlyPrice: c.Terms.MonthlyPrice.StringFixed(2),
		Permanence:   c.Permanence,
		TermMonths:   c.TermMonths,
	}
	if view.PlanName == "" {
		view.PlanName = c.PlanID
	}
	if c.Terms.InstallationFee != nil {
		view.InstallationFee = c.Terms.InstallationFee.StringFixed(2)
	}
	if c.Permanence {
		view.Penalty = c.Terms.EarlyTerminationPenalty.StringFixed(2)
	}
	for _, o := range c.Observations {
		view.Observations = append(view.Observations, observationView{
			At:    formatDate(o.At),
			State: string(o.State),
			Text:  oneLine(o.Text),
		})
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, view); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(metaView{
		ContractID:  c.ID,
		Number:      c.Number,
		Type:        string(c.Type),
		State:       string(c.State),
		Fingerprint: contracts.Fingerprint(c),
		GeneratedAt: formatDate(c.GeneratedAt),
	})
	if err != nil {
		return nil, err
	}

	return Encode(Document{Sections: []Section{
		{Kind: KindMeta, Payload: meta},
		{Kind: KindBody, Payload: body.Bytes()},
	}})
}

func requireFields(c contracts.Contract) error {
	switch {
	case strings.TrimSpace(c.Number) == "":
		return &contracts.RenderError{Field: "number"}
	case strings.TrimSpace(c.ClientID) == "":
		return &contracts.RenderError{Field: "client_id"}
	case strings.TrimSpace(c.PlanID) == "":
		return &contracts.RenderError{Field: "plan_id"}
	case strings.TrimSpace(c.Terms.Currency) == "":
		return &contracts.RenderError{Field: "currency"}
	case c.Terms.MonthlyPrice == nil:
		return &contracts.RenderError{Field: "monthly_price"}
	}
	if c.Permanence {
		if c.TermMonths <= 0 {
			return &contracts.RenderError{Field: "term_months"}
		}
		if c.Terms.EarlyTerminationPenalty == nil {
			return &contracts.RenderError{Field: "early_termination_penalty"}
		}
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// oneLine evita que una observación fabrique una línea ancla dentro del BODY.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, Anchor, "")
}
