package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// fingerprintView fija el orden de campos: json.Marshal de un struct es determinista.
type fingerprintView struct {
	Number      string            `json:"number"`
	Type        Type              `json:"type"`
	Permanence  bool              `json:"permanence"`
	TermMonths  int               `json:"term_months"`
	ClientID    string            `json:"client_id"`
	PlanID      string            `json:"plan_id"`
	PlanName    string            `json:"plan_name"`
	Currency    string            `json:"currency"`
	Monthly     string            `json:"monthly_price"`
	Install     string            `json:"installation_fee"`
	Penalty     string            `json:"early_termination_penalty"`
	GeneratedAt string            `json:"generated_at"`
	State       State             `json:"state"`
	Signature   *fingerprintSig   `json:"signature,omitempty"`
	Notes       []fingerprintNote `json:"observations"`
}

type fingerprintSig struct {
	Name     string `json:"name"`
	Document string `json:"id_document"`
	SignedAt string `json:"signed_at"`
	Place    string `json:"place"`
	Image    string `json:"image_sha256"`
}

type fingerprintNote struct {
	At    string `json:"at"`
	Actor string `json:"actor"`
	State State  `json:"state"`
	Text  string `json:"text"`
}

// Fingerprint es el hash de términos + estado que decide si el artefacto cacheado sigue vigente.
func Fingerprint(c Contract) string {
	v := fingerprintView{
		Number:      c.Number,
		Type:        c.Type,
		Permanence:  c.Permanence,
		TermMonths:  c.TermMonths,
		ClientID:    c.ClientID,
		PlanID:      c.PlanID,
		PlanName:    c.PlanName,
		Currency:    c.Terms.Currency,
		GeneratedAt: formatTime(c.GeneratedAt),
		State:       c.State,
		Notes:       make([]fingerprintNote, 0, len(c.Observations)),
	}
	if c.Terms.MonthlyPrice != nil {
		v.Monthly = c.Terms.MonthlyPrice.StringFixed(2)
	}
	if c.Terms.InstallationFee != nil {
		v.Install = c.Terms.InstallationFee.StringFixed(2)
	}
	if c.Terms.EarlyTerminationPenalty != nil {
		v.Penalty = c.Terms.EarlyTerminationPenalty.StringFixed(2)
	}
	if s := c.Signature; s != nil {
		v.Signature = &fingerprintSig{
			Name:     s.SignerName,
			Document: s.SignerIDDocument,
			SignedAt: formatTime(s.SignedAt),
			Place:    s.Place,
			Image:    s.ImageSHA256,
		}
	}
	for _, o := range c.Observations {
		v.Notes = append(v.Notes, fingerprintNote{
			At:    formatTime(o.At),
			Actor: o.ActorID,
			State: o.State,
			Text:  o.Text,
		})
	}

	b, _ := json.Marshal(v)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ArtifactKey es la clave en el ArtifactStore para un fingerprint dado.
func ArtifactKey(contractID, fingerprint string) string {
	return "contracts/" + contractID + "/" + fingerprint + ".ispdoc"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
