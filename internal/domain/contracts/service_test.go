package contracts_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"isp-contracts/internal/adapters/storage/memory"
	"isp-contracts/internal/domain/contracts"
	"isp-contracts/internal/domain/documents"
	"isp-contracts/internal/domain/signatures"
	"isp-contracts/internal/ports/billing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []billing.ContractActivated
	err    error
}

func (n *recordingNotifier) ContractActivated(ctx context.Context, ev billing.ContractActivated) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// switchRenderer delega en el renderer real hasta que se activa fail.
type switchRenderer struct {
	inner *documents.Renderer
	fail  atomic.Bool
	calls atomic.Int32
}

func (r *switchRenderer) Render(c contracts.Contract) ([]byte, error) {
	r.calls.Add(1)
	if r.fail.Load() {
		return nil, errors.New("template engine down")
	}
	return r.inner.Render(c)
}

// barrierStore retiene a los primeros parties lectores hasta que todos leyeron,
// así todos parten de la misma revisión.
type barrierStore struct {
	contracts.Store
	parties int32
	arrived atomic.Int32
	release chan struct{}
}

func (s *barrierStore) GetByID(ctx context.Context, id string) (contracts.Contract, error) {
	c, err := s.Store.GetByID(ctx, id)
	if k := s.arrived.Add(1); k <= s.parties {
		if k == s.parties {
			close(s.release)
		}
		<-s.release
	}
	return c, err
}

type fixture struct {
	svc       *contracts.Service
	store     contracts.Store
	audit     contracts.AuditLog
	artifacts *memory.ArtifactStore
	renderer  *switchRenderer
	notifier  *recordingNotifier
}

func newFixture(t *testing.T, store contracts.Store) *fixture {
	t.Helper()
	if store == nil {
		store = memory.NewContractRepo()
	}
	f := &fixture{
		store:     store,
		audit:     memory.NewAuditLog(),
		artifacts: memory.NewArtifactStore(),
		renderer:  &switchRenderer{inner: documents.NewRenderer()},
		notifier:  &recordingNotifier{},
	}
	f.svc = contracts.NewService(contracts.Deps{
		Store:     f.store,
		Audit:     f.audit,
		Tx:        memory.NewTransactor(),
		Artifacts: f.artifacts,
		Renderer:  f.renderer,
		Embedder:  documents.NewEmbedder(),
		Capturer:  signatures.NewCapturer(signatures.Options{}),
		Notifier:  f.notifier,
	})
	return f
}

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fullInput() contracts.CreateInput {
	return contracts.CreateInput{
		Type:     contracts.TypeService,
		ClientID: "client-1",
		PlanID:   "fibra-100",
		PlanName: "Fibra 100 Mbps",
		Terms: contracts.Terms{
			Currency:        "usd",
			MonthlyPrice:    money("25"),
			InstallationFee: money("10.5"),
		},
	}
}

func (f *fixture) create(t *testing.T, in contracts.CreateInput) contracts.Contract {
	t.Helper()
	c, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return c
}

func strokes(name string) *contracts.SignaturePayload {
	return &contracts.SignaturePayload{
		SignerName:       name,
		SignerIDDocument: "0102030405",
		Place:            "Quito",
		Strokes: &contracts.StrokeCanvas{
			Width:  300,
			Height: 100,
			Strokes: [][]contracts.Point{
				{{X: 10, Y: 50}, {X: 80, Y: 20}, {X: 150, Y: 70}, {X: 290, Y: 40}},
			},
		},
	}
}

func (f *fixture) history(t *testing.T, id string) []contracts.TransitionRecord {
	t.Helper()
	var out []contracts.TransitionRecord
	for rec, err := range f.svc.Transitions(context.Background(), id) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestCreate(t *testing.T) {
	f := newFixture(t, nil)

	c := f.create(t, fullInput())
	assert.NotEmpty(t, c.ID)
	assert.Regexp(t, `^CT-\d{4}-000001$`, c.Number)
	assert.Equal(t, contracts.StateDraft, c.State)
	assert.Equal(t, "USD", c.Terms.Currency)
	assert.Equal(t, int64(1), c.Version)

	second := f.create(t, fullInput())
	assert.Regexp(t, `-000002$`, second.Number)

	bad := fullInput()
	bad.ClientID = " "
	_, err := f.svc.Create(context.Background(), bad)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	bad = fullInput()
	bad.Permanence = true
	_, err = f.svc.Create(context.Background(), bad)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput, "permanence requires term_months")

	bad = fullInput()
	bad.Type = "lease"
	_, err = f.svc.Create(context.Background(), bad)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestRequestTransition_SignActivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	got, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{
		Target:    contracts.StateActive,
		ActorID:   "agent-7",
		Notes:     "firma en oficina",
		Signature: strokes("Ana Pérez"),
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.StateActive, got.State)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.Signature)
	assert.Equal(t, "Ana Pérez", got.Signature.SignerName)
	assert.Equal(t, "Quito", got.Signature.Place)
	assert.Len(t, got.Signature.ImageSHA256, 64)
	assert.False(t, got.Signature.SignedAt.IsZero())
	require.Len(t, got.Observations, 1)
	assert.Equal(t, "firma en oficina", got.Observations[0].Text)

	require.NotNil(t, got.Document)
	assert.Equal(t, contracts.Fingerprint(got), got.Document.Fingerprint)

	raw, err := f.artifacts.Get(ctx, got.Document.Key)
	require.NoError(t, err)
	doc, err := documents.Decode(raw)
	require.NoError(t, err)
	body, ok := doc.Section(documents.KindBody)
	require.True(t, ok)
	assert.NotContains(t, string(body), documents.Anchor)
	assert.Contains(t, string(body), "Ana Pérez")
	_, ok = doc.Section(documents.KindImage)
	assert.True(t, ok)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateActive, stored.State)

	hist := f.history(t, c.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, contracts.StateDraft, hist[0].From)
	assert.Equal(t, contracts.StateActive, hist[0].To)
	assert.Equal(t, "agent-7", hist[0].ActorID)
	assert.Equal(t, int64(1), hist[0].Seq)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, "25.00", f.notifier.events[0].MonthlyPrice)
}

func TestRequestTransition_ActivationWithoutSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a"})
	var ms *contracts.MissingSignatureError
	require.ErrorAs(t, err, &ms)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateDraft, stored.State)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, f.history(t, c.ID))
	assert.Equal(t, 0, f.artifacts.Len())
}

func TestRequestTransition_InvalidSignatureLeavesDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	sig := strokes("")
	_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a", Signature: sig})
	var inv *contracts.InvalidSignatureError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, contracts.RuleSignerNameRequired, inv.Rule())

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateDraft, stored.State)
	assert.Nil(t, stored.Signature)
}

func TestRequestTransition_RenderFailureBlocksActivation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	in := fullInput()
	in.Terms.MonthlyPrice = nil
	c := f.create(t, in)

	_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{
		Target:    contracts.StateActive,
		ActorID:   "a",
		Signature: strokes("Ana Pérez"),
	})
	var re *contracts.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "monthly_price", re.Field)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateDraft, stored.State)
	assert.Empty(t, f.history(t, c.ID))
	assert.Equal(t, 0, f.notifier.count())
}

func TestRequestTransition_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateVoided, ActorID: "a"})
	var it *contracts.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, contracts.RuleReasonRequired, it.Rule())

	voided, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{
		Target:  contracts.StateVoided,
		ActorID: "a",
		Reason:  "cliente desistió",
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateVoided, voided.State)
	require.NotNil(t, voided.Document, "final render freezes the artifact")

	for _, target := range []contracts.State{contracts.StateActive, contracts.StateDraft, contracts.StateVoided} {
		_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: target, ActorID: "a", Reason: "x"})
		var ts *contracts.TerminalStateError
		assert.ErrorAs(t, err, &ts, "target %s", target)
	}

	_, err = f.svc.AddObservation(ctx, c.ID, "a", "nota tardía")
	var ts *contracts.TerminalStateError
	assert.ErrorAs(t, err, &ts)

	hist := f.history(t, c.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, "cliente desistió", hist[0].Reason)
}

func TestRequestTransition_GraphRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	cases := []struct {
		name string
		req  contracts.TransitionRequest
		rule string
	}{
		{"unknown state", contracts.TransitionRequest{Target: "archived"}, contracts.RuleUnknownState},
		{"edge not allowed", contracts.TransitionRequest{Target: contracts.StateExpired}, contracts.RuleEdgeNotAllowed},
		{"signature on non-signing edge", contracts.TransitionRequest{Target: contracts.StatePendingSignature, Signature: strokes("Ana")}, contracts.RuleSignatureNotApplicable},
		{"draft to terminated", contracts.TransitionRequest{Target: contracts.StateTerminated, Reason: "x"}, contracts.RuleEdgeNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RequestTransition(ctx, c.ID, tc.req)
			var it *contracts.InvalidTransitionError
			require.ErrorAs(t, err, &it)
			assert.Equal(t, tc.rule, it.Rule())
		})
	}

	_, err := f.svc.RequestTransition(ctx, "missing", contracts.TransitionRequest{Target: contracts.StateVoided, Reason: "x"})
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	// el destino se valida antes de buscar el contrato
	_, err = f.svc.RequestTransition(ctx, "missing", contracts.TransitionRequest{Target: "archived"})
	var it *contracts.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, contracts.RuleUnknownState, it.Rule())
}

func TestRequestTransition_SameStateIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	first, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StatePendingSignature, ActorID: "a"})
	require.NoError(t, err)
	second, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StatePendingSignature, ActorID: "a"})
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, f.history(t, c.ID), 1)

	active, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a", Signature: strokes("Ana")})
	require.NoError(t, err)

	// re-firmar un contrato activo no es un no-op
	_, err = f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a", Signature: strokes("Otro")})
	var it *contracts.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, contracts.RuleSignatureAlreadyEmbedded, it.Rule())

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, active.Signature.ImageSHA256, stored.Signature.ImageSHA256)
	assert.Len(t, f.history(t, c.ID), 2)
}

func TestRequestTransition_LifecycleToTerminated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	steps := []contracts.TransitionRequest{
		{Target: contracts.StatePendingSignature},
		{Target: contracts.StateActive, Signature: strokes("Ana")},
		{Target: contracts.StateExpired},
		{Target: contracts.StateTerminated, Reason: "fin del plazo"},
	}
	for _, req := range steps {
		req.ActorID = "agent"
		_, err := f.svc.RequestTransition(ctx, c.ID, req)
		require.NoError(t, err, "target %s", req.Target)
	}

	hist := f.history(t, c.ID)
	require.Len(t, hist, 4)
	for i, rec := range hist {
		assert.Equal(t, int64(i+1), rec.Seq)
		if i > 0 {
			assert.Equal(t, hist[i-1].To, rec.From)
		}
	}
	assert.Equal(t, contracts.StateTerminated, hist[3].To)
}

func TestRequestTransition_ConcurrentSigningHasOneWinner(t *testing.T) {
	ctx := context.Background()
	const racers = 2
	store := &barrierStore{Store: memory.NewContractRepo(), parties: racers, release: make(chan struct{})}
	f := newFixture(t, store)

	c, err := f.svc.Create(ctx, fullInput())
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, racers)
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{
				Target:    contracts.StateActive,
				ActorID:   "agent",
				Signature: strokes([]string{"Ana Pérez", "Luis Mora"}[i]),
			})
		}()
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case contracts.Retryable(err):
			conflicts++
			assert.ErrorIs(t, err, contracts.ErrConflict)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Len(t, f.history(t, c.ID), 1)
	assert.Equal(t, 1, f.notifier.count())
}

func TestRequestTransition_NotifierFailureDoesNotUndoActivation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.notifier.err = errors.New("billing down")
	c := f.create(t, fullInput())

	got, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a", Signature: strokes("Ana")})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateActive, got.State)
}

func TestDocument_RenderThenCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	first, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, first.Stale)
	assert.Equal(t, contracts.Fingerprint(c), first.Fingerprint)
	assert.Equal(t, contracts.DocumentContentType, first.ContentType)

	doc, err := documents.Decode(first.Bytes)
	require.NoError(t, err)
	body, _ := doc.Section(documents.KindBody)
	assert.Contains(t, string(body), documents.Anchor, "unsigned document keeps the anchor")

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Document)
	assert.Equal(t, first.Fingerprint, stored.Document.Fingerprint)

	calls := f.renderer.calls.Load()
	second, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes, second.Bytes)
	assert.Equal(t, calls, f.renderer.calls.Load(), "unchanged fingerprint must not re-render")
}

func TestDocument_ObservationTriggersRerender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a", Signature: strokes("Ana")})
	require.NoError(t, err)
	before, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)

	updated, err := f.svc.AddObservation(ctx, c.ID, "agent", "router instalado")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateActive, updated.State)
	assert.NotEqual(t, before.Fingerprint, contracts.Fingerprint(updated))

	after, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.Fingerprint(updated), after.Fingerprint)

	doc, err := documents.Decode(after.Bytes)
	require.NoError(t, err)
	body, _ := doc.Section(documents.KindBody)
	assert.Contains(t, string(body), "router instalado")
	assert.Contains(t, string(body), "Ana", "signature is re-embedded")

	_, err = f.svc.AddObservation(ctx, c.ID, "agent", "  ")
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestDocument_ServesLastGoodOnRenderFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	good, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.svc.AddObservation(ctx, c.ID, "agent", "cambio")
	require.NoError(t, err)
	f.renderer.fail.Store(true)

	got, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.Stale)
	assert.Equal(t, good.Fingerprint, got.Fingerprint)
	assert.Equal(t, good.Bytes, got.Bytes)
}

func TestDocument_RenderErrorWithoutPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	in := fullInput()
	in.Terms.Currency = ""
	c := f.create(t, in)

	_, err := f.svc.Document(ctx, c.ID)
	var re *contracts.RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "currency", re.Field)
}

func TestDocument_TerminalIsFrozen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	_, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateActive, ActorID: "a", Signature: strokes("Ana")})
	require.NoError(t, err)
	terminated, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateTerminated, ActorID: "a", Reason: "mudanza"})
	require.NoError(t, err)

	f.renderer.fail.Store(true)
	got, err := f.svc.Document(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Stale)
	assert.Equal(t, terminated.Document.Fingerprint, got.Fingerprint)

	doc, err := documents.Decode(got.Bytes)
	require.NoError(t, err)
	meta, _ := doc.Section(documents.KindMeta)
	assert.Contains(t, string(meta), `"terminated"`)
}

func TestDocument_TerminalWithoutArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.create(t, fullInput())

	// el render final es best effort: la anulación procede aunque falle
	f.renderer.fail.Store(true)
	voided, err := f.svc.RequestTransition(ctx, c.ID, contracts.TransitionRequest{Target: contracts.StateVoided, ActorID: "a", Reason: "duplicado"})
	require.NoError(t, err)
	assert.Nil(t, voided.Document)

	_, err = f.svc.Document(ctx, c.ID)
	var ts *contracts.TerminalStateError
	assert.ErrorAs(t, err, &ts)
}
