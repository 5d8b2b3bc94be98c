package contracts

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"isp-contracts/internal/middleware"
	"isp-contracts/internal/platform/logger"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// límite del body de firma: 2 MiB de imagen en base64 más el resto del JSON
const maxSignatureBody = 4 << 20

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/contracts", func(cr chi.Router) {
		cr.Post("/", createContractHandler(svc))

		cr.Route("/{contractID}", func(c chi.Router) {
			c.Get("/", getContractHandler(svc))
			c.Get("/document", getDocumentHandler(svc))
			c.Post("/signature", signContractHandler(svc))
			c.Put("/state", changeStateHandler(svc))
			c.Post("/observations", addObservationHandler(svc))
			c.Get("/transitions", listTransitionsHandler(svc))
		})
	})
}

type createContractRequest struct {
	Type       string `json:"type"`
	Permanence bool   `json:"permanence"`
	TermMonths int    `json:"term_months"`
	ClientID   string `json:"client_id"`
	PlanID     string `json:"plan_id"`
	PlanName   string `json:"plan_name"`

	Currency                string  `json:"currency"`
	MonthlyPrice            *string `json:"monthly_price"` // decimal como string, ej "25.00"
	InstallationFee         *string `json:"installation_fee"`
	EarlyTerminationPenalty *string `json:"early_termination_penalty"`
}

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type strokesRequest struct {
	Width   float64          `json:"width"`
	Height  float64          `json:"height"`
	Strokes [][]pointRequest `json:"strokes"`
}

type signatureRequest struct {
	SignerName       string `json:"signer_name"`
	SignerIDDocument string `json:"signer_id_document"`
	Place            string `json:"place"`
	Notes            string `json:"notes"`

	// Exactamente uno: imagen (base64 o data URL) o trazos del canvas.
	SignatureImage   string          `json:"signature_image"`
	SignatureStrokes *strokesRequest `json:"signature_strokes"`
}

type stateRequest struct {
	TargetState string `json:"target_state"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes"`
}

type observationRequest struct {
	Text string `json:"text"`
}

type termsResponse struct {
	Currency                string  `json:"currency"`
	MonthlyPrice            *string `json:"monthly_price"`
	InstallationFee         *string `json:"installation_fee"`
	EarlyTerminationPenalty *string `json:"early_termination_penalty"`
}

type signatureResponse struct {
	SignerName       string    `json:"signer_name"`
	SignerIDDocument string    `json:"signer_id_document"`
	SignedAt         time.Time `json:"signed_at"` // fecha_firma
	Place            string    `json:"place,omitempty"`
	ImageSHA256      string    `json:"image_sha256"`
}

type documentResponse struct {
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	RenderedAt  time.Time `json:"rendered_at"`
	// Current=false: el próximo GET del documento re-renderiza.
	Current bool `json:"current"`
}

type observationResponse struct {
	At      time.Time `json:"at"`
	ActorID string    `json:"actor_id"`
	State   State     `json:"state"`
	Text    string    `json:"text"`
}

type contractResponse struct {
	ID          string        `json:"id"`
	Number      string        `json:"number"`
	Type        Type          `json:"type"`
	Permanence  bool          `json:"permanence"`
	TermMonths  int           `json:"term_months"`
	ClientID    string        `json:"client_id"`
	PlanID      string        `json:"plan_id"`
	PlanName    string        `json:"plan_name"`
	Terms       termsResponse `json:"terms"`
	GeneratedAt time.Time     `json:"generated_at"`

	State              State   `json:"state"`
	AllowedTransitions []State `json:"allowed_transitions"`

	Signature    *signatureResponse    `json:"signature,omitempty"`
	Document     *documentResponse     `json:"document,omitempty"`
	Observations []observationResponse `json:"observations"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type transitionResponse struct {
	Seq     int64     `json:"seq"`
	ActorID string    `json:"actor_id"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	Reason  string    `json:"reason,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// @Summary Crear contrato (draft)
// @Description Registra un contrato en estado draft con número CT-<año>-<secuencia>. Los montos viajan como strings decimales; un monto ausente queda ausente.
// @Tags contracts
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body createContractRequest true "Datos del contrato"
// @Success 201 {object} contractResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /contracts [post]
func createContractHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorID(w, r); !ok {
			return
		}

		var req createContractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_json", "", "invalid json")
			return
		}

		terms := Terms{Currency: req.Currency}
		for _, f := range []struct {
			name string
			in   *string
			out  **decimal.Decimal
		}{
			{"monthly_price", req.MonthlyPrice, &terms.MonthlyPrice},
			{"installation_fee", req.InstallationFee, &terms.InstallationFee},
			{"early_termination_penalty", req.EarlyTerminationPenalty, &terms.EarlyTerminationPenalty},
		} {
			d, err := parseMoney(f.in)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "invalid_input", f.name, f.name+" must be a non-negative decimal")
				return
			}
			*f.out = d
		}

		c, err := svc.Create(r.Context(), CreateInput{
			Type:       Type(strings.TrimSpace(req.Type)),
			Permanence: req.Permanence,
			TermMonths: req.TermMonths,
			ClientID:   req.ClientID,
			PlanID:     req.PlanID,
			PlanName:   req.PlanName,
			Terms:      terms,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toContractResponse(c))
	}
}

// @Summary Obtener contrato
// @Description Snapshot actual: estado, términos, metadatos del firmante (signed_at = fecha de firma) y transiciones permitidas.
// @Tags contracts
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param contractID path string true "ID del contrato"
// @Success 200 {object} contractResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /contracts/{contractID} [get]
func getContractHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorID(w, r); !ok {
			return
		}

		c, err := svc.Get(r.Context(), chi.URLParam(r, "contractID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toContractResponse(c))
	}
}

// @Summary Descargar documento del contrato
// @Description Devuelve el documento vigente (.ispdoc). Si los términos o el estado cambiaron desde el último render, se re-renderiza. Un contrato terminal sirve siempre su artefacto congelado. X-Document-Stale=true indica que se sirvió el último documento válido porque el render falló.
// @Tags contracts
// @Produce octet-stream
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param contractID path string true "ID del contrato"
// @Success 200 {file} binary
// @Success 304 {string} string "not modified"
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "contrato terminal sin documento"
// @Failure 422 {object} errorResponse "faltan campos obligatorios"
// @Router /contracts/{contractID}/document [get]
func getDocumentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorID(w, r); !ok {
			return
		}

		a, err := svc.Document(r.Context(), chi.URLParam(r, "contractID"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		etag := `"` + a.Fingerprint + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("X-Document-Fingerprint", a.Fingerprint)
		if a.Stale {
			w.Header().Set("X-Document-Stale", "true")
		}
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(a.Bytes)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(a.Bytes)
	}
}

// @Summary Firmar contrato
// @Description Captura la firma (imagen base64/data URL o trazos del canvas), la incrusta en el documento y activa el contrato. Solo desde draft o pending_signature.
// @Tags contracts
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param contractID path string true "ID del contrato"
// @Param payload body signatureRequest true "Firma y datos del firmante"
// @Success 200 {object} contractResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "transición inválida, estado terminal o modificación concurrente"
// @Failure 413 {object} errorResponse
// @Failure 422 {object} errorResponse "firma inválida o documento no renderizable"
// @Router /contracts/{contractID}/signature [post]
func signContractHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}

		var req signatureRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignatureBody)).Decode(&req); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeProblem(w, http.StatusRequestEntityTooLarge, "payload_too_large", RuleImageTooLarge, "request body too large")
				return
			}
			writeProblem(w, http.StatusBadRequest, "invalid_json", "", "invalid json")
			return
		}

		payload := SignaturePayload{
			SignerName:       req.SignerName,
			SignerIDDocument: req.SignerIDDocument,
			Place:            req.Place,
			Notes:            req.Notes,
		}
		if s := req.SignatureStrokes; s != nil {
			canvas := &StrokeCanvas{Width: s.Width, Height: s.Height}
			for _, stroke := range s.Strokes {
				pts := make([]Point, 0, len(stroke))
				for _, p := range stroke {
					pts = append(pts, Point{X: p.X, Y: p.Y})
				}
				canvas.Strokes = append(canvas.Strokes, pts)
			}
			payload.Strokes = canvas
		}
		if strings.TrimSpace(req.SignatureImage) != "" {
			img, err := decodeImage(req.SignatureImage)
			if err != nil {
				writeError(w, r, &InvalidSignatureError{Cause: RuleImageUnreadable, Detail: "signature_image must be base64 or a data URL"})
				return
			}
			payload.Image = img
		}

		c, err := svc.RequestTransition(r.Context(), chi.URLParam(r, "contractID"), TransitionRequest{
			Target:    StateActive,
			ActorID:   actor,
			Notes:     req.Notes,
			Signature: &payload,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toContractResponse(c))
	}
}

// @Summary Cambiar estado del contrato
// @Description Transiciones sin firma: pending_signature, expired, terminated, voided. terminated y voided exigen reason. Pedir el estado actual es un no-op.
// @Tags contracts
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param contractID path string true "ID del contrato"
// @Param payload body stateRequest true "Estado destino y motivo"
// @Success 200 {object} contractResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "transición inválida, estado terminal o modificación concurrente"
// @Failure 422 {object} errorResponse "falta motivo o firma"
// @Router /contracts/{contractID}/state [put]
func changeStateHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}

		var req stateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_json", "", "invalid json")
			return
		}

		c, err := svc.RequestTransition(r.Context(), chi.URLParam(r, "contractID"), TransitionRequest{
			Target:  State(strings.TrimSpace(req.TargetState)),
			ActorID: actor,
			Reason:  req.Reason,
			Notes:   req.Notes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toContractResponse(c))
	}
}

// @Summary Agregar observación
// @Description Anota el contrato sin cambiar su estado. Cambia el fingerprint del documento. Rechazado en contratos terminales.
// @Tags contracts
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param contractID path string true "ID del contrato"
// @Param payload body observationRequest true "Texto de la observación"
// @Success 201 {object} contractResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /contracts/{contractID}/observations [post]
func addObservationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorID(w, r)
		if !ok {
			return
		}

		var req observationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_json", "", "invalid json")
			return
		}

		c, err := svc.AddObservation(r.Context(), chi.URLParam(r, "contractID"), actor, req.Text)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toContractResponse(c))
	}
}

// @Summary Historial de transiciones
// @Description Registro de auditoría en orden cronológico.
// @Tags contracts
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID del agente"
// @Param Authorization header string false "Bearer token en producción"
// @Param contractID path string true "ID del contrato"
// @Success 200 {array} transitionResponse
// @Failure 401 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /contracts/{contractID}/transitions [get]
func listTransitionsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorID(w, r); !ok {
			return
		}

		c, err := svc.Get(r.Context(), chi.URLParam(r, "contractID"))
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]transitionResponse, 0)
		for rec, err := range svc.Transitions(r.Context(), c.ID) {
			if err != nil {
				writeError(w, r, err)
				return
			}
			out = append(out, transitionResponse{
				Seq:     rec.Seq,
				ActorID: rec.ActorID,
				From:    rec.From,
				To:      rec.To,
				At:      rec.At,
				Reason:  rec.Reason,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func actorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "", "unauthorized")
		return "", false
	}
	return claims.UserID, true
}

func parseMoney(s *string) (*decimal.Decimal, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*s))
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, errors.New("negative amount")
	}
	return &d, nil
}

// decodeImage acepta base64 estándar o data URL (data:image/png;base64,...).
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.Contains(s[:i], ";base64") {
			return nil, errors.New("unsupported data url")
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func toContractResponse(c Contract) contractResponse {
	out := contractResponse{
		ID:         c.ID,
		Number:     c.Number,
		Type:       c.Type,
		Permanence: c.Permanence,
		TermMonths: c.TermMonths,
		ClientID:   c.ClientID,
		PlanID:     c.PlanID,
		PlanName:   c.PlanName,
		Terms: termsResponse{
			Currency:                c.Terms.Currency,
			MonthlyPrice:            moneyString(c.Terms.MonthlyPrice),
			InstallationFee:         moneyString(c.Terms.InstallationFee),
			EarlyTerminationPenalty: moneyString(c.Terms.EarlyTerminationPenalty),
		},
		GeneratedAt:        c.GeneratedAt,
		State:              c.State,
		AllowedTransitions: NextStates(c.State),
		Observations:       make([]observationResponse, 0, len(c.Observations)),
		Version:            c.Version,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if s := c.Signature; s != nil {
		out.Signature = &signatureResponse{
			SignerName:       s.SignerName,
			SignerIDDocument: s.SignerIDDocument,
			SignedAt:         s.SignedAt,
			Place:            s.Place,
			ImageSHA256:      s.ImageSHA256,
		}
	}
	if d := c.Document; d != nil {
		out.Document = &documentResponse{
			Fingerprint: d.Fingerprint,
			Size:        d.Size,
			RenderedAt:  d.RenderedAt,
			Current:     d.Fingerprint == Fingerprint(c),
		}
	}
	for _, o := range c.Observations {
		out.Observations = append(out.Observations, observationResponse(o))
	}
	return out
}

func moneyString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

// writeError traduce la taxonomía de errores a status + cuerpo estructurado.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "invalid_input", "", err.Error())
		return
	case errors.Is(err, ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", "", "contract not found")
		return
	}

	var re RuleError
	if errors.As(err, &re) {
		status := statusFor(err)
		if status == http.StatusConflict && Retryable(err) {
			w.Header().Set("Retry-After", "0")
		}
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context(), nil).Error("document pipeline failure", map[string]any{"error": err})
		}
		writeProblem(w, status, re.Code(), re.Rule(), err.Error())
		return
	}

	logger.FromContext(r.Context(), nil).Error("unhandled error", map[string]any{"error": err})
	writeProblem(w, http.StatusInternalServerError, "internal_error", "", "internal error")
}

func statusFor(err error) int {
	var (
		it *InvalidTransitionError
		cm *ConcurrentModificationError
		ts *TerminalStateError
		ms *MissingSignatureError
		is *InvalidSignatureError
		re *RenderError
	)
	switch {
	case errors.As(err, &cm), errors.As(err, &ts):
		return http.StatusConflict
	case errors.As(err, &it):
		if it.Cause == RuleReasonRequired || it.Cause == RuleSignatureNotApplicable {
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case errors.As(err, &ms), errors.As(err, &is), errors.As(err, &re):
		return http.StatusUnprocessableEntity
	default:
		// AnchorNotFound y SourceDocumentCorrupt: fallas internas del pipeline
		return http.StatusInternalServerError
	}
}

func writeProblem(w http.ResponseWriter, status int, code, rule, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Rule: rule, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
