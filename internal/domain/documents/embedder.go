package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"isp-contracts/internal/domain/contracts"
)

type signView struct {
	Name        string `json:"name"`
	IDDocument  string `json:"id_document"`
	SignedAt    string `json:"signed_at"`
	Place       string `json:"place,omitempty"`
	ImageSHA256 string `json:"image_sha256"`
}

// Embedder incrusta la firma normalizada en el ancla del BODY. El ancla desaparece,
// así que un documento ya firmado no admite una segunda firma.
type Embedder struct{}

func NewEmbedder() *Embedder { return &Embedder{} }

func (e *Embedder) Embed(doc []byte, sig contracts.NormalizedSignature, meta contracts.SignerMetadata) ([]byte, error) {
	if len(sig.PNG) == 0 {
		return nil, &contracts.InvalidSignatureError{Cause: contracts.RuleSignatureMissing}
	}

	d, err := Decode(doc)
	if err != nil {
		return nil, err
	}
	body, ok := d.Section(KindBody)
	if !ok {
		return nil, &contracts.AnchorNotFoundError{Anchor: Anchor}
	}

	sum := sha256.Sum256(sig.PNG)
	imageHash := hex.EncodeToString(sum[:])
	signedAt := meta.SignedAt.UTC().Format(time.RFC3339)

	block := []string{
		"Firmado por: " + meta.Name,
		"Documento de identidad: " + meta.IDDocument,
		"Fecha de firma: " + signedAt,
	}
	if p := strings.TrimSpace(meta.Place); p != "" {
		block = append(block, "Lugar: "+p)
	}
	block = append(block, "Huella de la firma (SHA-256): "+imageHash)

	signed, ok := replaceAnchor(string(body), strings.Join(block, "\n"))
	if !ok {
		return nil, &contracts.AnchorNotFoundError{Anchor: Anchor}
	}

	sigMeta, err := json.Marshal(signView{
		Name:        meta.Name,
		IDDocument:  meta.IDDocument,
		SignedAt:    signedAt,
		Place:       strings.TrimSpace(meta.Place),
		ImageSHA256: imageHash,
	})
	if err != nil {
		return nil, err
	}

	d.replace(KindBody, []byte(signed))
	d.Sections = append(d.Sections,
		Section{Kind: KindSignature, Payload: sigMeta},
		Section{Kind: KindImage, Payload: append([]byte(nil), sig.PNG...)},
	)
	return Encode(d)
}

// replaceAnchor reemplaza la primera línea que es exactamente el ancla.
func replaceAnchor(body, block string) (string, bool) {
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == Anchor {
			lines[i] = block
			return strings.Join(lines, "\n"), true
		}
	}
	return "", false
}
