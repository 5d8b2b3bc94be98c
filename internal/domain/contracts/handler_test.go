package contracts_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"isp-contracts/internal/domain/contracts"
	"isp-contracts/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t, nil)
	r := chi.NewRouter()
	r.Use(middleware.AuthContext(nil))
	contracts.RegisterRoutes(r, f.svc)
	return r, f
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.DebugUserHeader, "agent-1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Rule    string `json:"rule"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

type contractBody struct {
	ID                 string   `json:"id"`
	Number             string   `json:"number"`
	State              string   `json:"state"`
	AllowedTransitions []string `json:"allowed_transitions"`
	Version            int64    `json:"version"`
	Terms              struct {
		MonthlyPrice    *string `json:"monthly_price"`
		InstallationFee *string `json:"installation_fee"`
	} `json:"terms"`
	Signature *struct {
		SignerName string `json:"signer_name"`
		SignedAt   string `json:"signed_at"`
	} `json:"signature"`
	Document *struct {
		Fingerprint string `json:"fingerprint"`
		Current     bool   `json:"current"`
	} `json:"document"`
}

func createViaAPI(t *testing.T, h http.Handler) contractBody {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/contracts", map[string]any{
		"client_id":     "client-1",
		"plan_id":       "fibra-100",
		"plan_name":     "Fibra 100",
		"currency":      "USD",
		"monthly_price": "25",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c contractBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	return c
}

func signatureImage(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 300, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(20, 40, 280, 60), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHandler_RequiresIdentity(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/contracts/abc", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeErr(t, rec).Error.Code)
}

func TestHandler_CreateAndGet(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createViaAPI(t, h)

	assert.Equal(t, "draft", c.State)
	assert.ElementsMatch(t, []string{"pending_signature", "active", "voided"}, c.AllowedTransitions)
	require.NotNil(t, c.Terms.MonthlyPrice)
	assert.Equal(t, "25.00", *c.Terms.MonthlyPrice)
	assert.Nil(t, c.Terms.InstallationFee, "absent amounts stay absent")

	rec := do(t, h, http.MethodGet, "/contracts/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/contracts/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/contracts", map[string]any{"client_id": "c", "plan_id": "p", "monthly_price": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "monthly_price", decodeErr(t, rec).Error.Rule)
}

func TestHandler_SignWithImage(t *testing.T) {
	h, f := newTestRouter(t)
	c := createViaAPI(t, h)

	rec := do(t, h, http.MethodPost, "/contracts/"+c.ID+"/signature", map[string]any{
		"signer_name":        "Ana Pérez",
		"signer_id_document": "0102030405",
		"signature_image":    signatureImage(t),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got contractBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "active", got.State)
	require.NotNil(t, got.Signature)
	assert.Equal(t, "Ana Pérez", got.Signature.SignerName)
	assert.NotEmpty(t, got.Signature.SignedAt)
	require.NotNil(t, got.Document)
	assert.True(t, got.Document.Current)
	assert.Equal(t, 1, f.notifier.count())

	rec = do(t, h, http.MethodGet, "/contracts/"+c.ID+"/transitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, "draft", hist[0]["from"])
	assert.Equal(t, "active", hist[0]["to"])
	assert.Equal(t, "agent-1", hist[0]["actor_id"])
}

func TestHandler_SignatureErrors(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createViaAPI(t, h)
	path := "/contracts/" + c.ID + "/signature"

	rec := do(t, h, http.MethodPost, path, map[string]any{
		"signer_name":        "Ana",
		"signer_id_document": "01",
		"signature_image":    "%%%not-base64%%%",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, contracts.RuleImageUnreadable, decodeErr(t, rec).Error.Rule)

	rec = do(t, h, http.MethodPost, path, map[string]any{"signer_name": "Ana", "signer_id_document": "01"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, contracts.RuleSignatureMissing, decodeErr(t, rec).Error.Rule)

	huge := strings.Repeat("A", 5<<20)
	rec = do(t, h, http.MethodPost, path, map[string]any{"signer_name": "Ana", "signer_id_document": "01", "signature_image": huge})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandler_StateChanges(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createViaAPI(t, h)
	path := "/contracts/" + c.ID + "/state"

	rec := do(t, h, http.MethodPut, path, map[string]any{"target_state": "active"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "missing_signature", decodeErr(t, rec).Error.Code)

	rec = do(t, h, http.MethodPut, path, map[string]any{"target_state": "expired"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, contracts.RuleEdgeNotAllowed, decodeErr(t, rec).Error.Rule)

	rec = do(t, h, http.MethodPut, path, map[string]any{"target_state": "voided"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, contracts.RuleReasonRequired, decodeErr(t, rec).Error.Rule)

	rec = do(t, h, http.MethodPut, path, map[string]any{"target_state": "voided", "reason": "error de carga"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got contractBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "voided", got.State)
	assert.Empty(t, got.AllowedTransitions)

	rec = do(t, h, http.MethodPut, path, map[string]any{"target_state": "active"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "terminal_state", decodeErr(t, rec).Error.Code)

	rec = do(t, h, http.MethodPost, "/contracts/"+c.ID+"/observations", map[string]any{"text": "tarde"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Document(t *testing.T) {
	h, _ := newTestRouter(t)
	c := createViaAPI(t, h)
	path := "/contracts/" + c.ID + "/document"

	rec := do(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fp := rec.Header().Get("X-Document-Fingerprint")
	assert.Len(t, fp, 64)
	assert.Equal(t, `"`+fp+`"`, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Header().Get("X-Document-Stale"))
	assert.Equal(t, contracts.DocumentContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("ISPDOC")))

	rec = do(t, h, http.MethodGet, path, nil, "If-None-Match", `"`+fp+`"`)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = do(t, h, http.MethodPost, "/contracts/"+c.ID+"/observations", map[string]any{"text": "visita técnica"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var got contractBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Document)
	assert.False(t, got.Document.Current)

	rec = do(t, h, http.MethodGet, path, nil, "If-None-Match", `"`+fp+`"`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, fp, rec.Header().Get("X-Document-Fingerprint"))
}

func TestHandler_DocumentRenderError(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/contracts", map[string]any{"client_id": "c", "plan_id": "p", "currency": "USD"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c contractBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	rec = do(t, h, http.MethodGet, "/contracts/"+c.ID+"/document", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeErr(t, rec)
	assert.Equal(t, "render_error", e.Error.Code)
	assert.Equal(t, "missing_monthly_price", e.Error.Rule)
}
