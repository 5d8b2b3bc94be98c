package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"isp-contracts/internal/domain/contracts"

	"github.com/shopspring/decimal"
)

type ContractsRepo struct {
	db *sql.DB
}

func NewContractsRepo(db *sql.DB) *ContractsRepo {
	return &ContractsRepo{db: db}
}

const contractColumns = `
	id, number,
	type, permanence, term_months,
	client_id, plan_id, plan_name,
	currency, monthly_price, installation_fee, early_termination_penalty,
	generated_at, state,
	signer_name, signer_id_document, signed_at, signed_place, signature_image, signature_sha256,
	document_fingerprint, document_key, document_size, document_rendered_at,
	observations, version,
	created_at, updated_at`

type observationRow struct {
	At      time.Time       `json:"at"`
	ActorID string          `json:"actor_id"`
	State   contracts.State `json:"state"`
	Text    string          `json:"text"`
}

func (r *ContractsRepo) Create(ctx context.Context, c contracts.Contract) error {
	args, err := contractArgs(c)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
	`, args...)
	return err
}

func (r *ContractsRepo) GetByID(ctx context.Context, id string) (contracts.Contract, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return contracts.Contract{}, contracts.ErrNotFound
	}

	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.Contract{}, contracts.ErrNotFound
		}
		return contracts.Contract{}, err
	}
	return c, nil
}

func (r *ContractsRepo) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT nextval('contract_number_seq')`).Scan(&n)
	return n, err
}

// CompareAndSwapState escribe el snapshot completo solo si (state, version) coinciden.
// id, number y created_at no se tocan.
func (r *ContractsRepo) CompareAndSwapState(ctx context.Context, id string, expected contracts.Revision, next contracts.Contract) error {
	args, err := contractArgs(next)
	if err != nil {
		return err
	}
	q := conn(ctx, r.db)

	// number y created_at quedan fuera del SET
	upd := append([]any{id}, args[2:26]...)
	upd = append(upd, args[27], string(expected.State), expected.Version)

	res, err := q.ExecContext(ctx, `
		UPDATE contracts
		SET
			type = $2,
			permanence = $3,
			term_months = $4,
			client_id = $5,
			plan_id = $6,
			plan_name = $7,
			currency = $8,
			monthly_price = $9,
			installation_fee = $10,
			early_termination_penalty = $11,
			generated_at = $12,
			state = $13,
			signer_name = $14,
			signer_id_document = $15,
			signed_at = $16,
			signed_place = $17,
			signature_image = $18,
			signature_sha256 = $19,
			document_fingerprint = $20,
			document_key = $21,
			document_size = $22,
			document_rendered_at = $23,
			observations = $24,
			version = $25,
			updated_at = $26
		WHERE id = $1 AND state = $27 AND version = $28
	`, upd...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return contracts.ErrNotFound
	}
	return contracts.ErrConflict
}

func contractArgs(c contracts.Contract) ([]any, error) {
	obs := make([]observationRow, 0, len(c.Observations))
	for _, o := range c.Observations {
		obs = append(obs, observationRow{At: o.At.UTC(), ActorID: o.ActorID, State: o.State, Text: o.Text})
	}
	obsJSON, err := json.Marshal(obs)
	if err != nil {
		return nil, err
	}

	var (
		signerName, signerDoc, place, sigHash sql.NullString
		signedAt                              sql.NullTime
		image                                 []byte
	)
	if s := c.Signature; s != nil {
		signerName = sql.NullString{String: s.SignerName, Valid: true}
		signerDoc = sql.NullString{String: s.SignerIDDocument, Valid: true}
		signedAt = sql.NullTime{Time: s.SignedAt, Valid: true}
		place = sql.NullString{String: s.Place, Valid: true}
		image = s.Image
		sigHash = sql.NullString{String: s.ImageSHA256, Valid: true}
	}

	var (
		docFP, docKey sql.NullString
		docSize       sql.NullInt64
		docAt         sql.NullTime
	)
	if d := c.Document; d != nil {
		docFP = sql.NullString{String: d.Fingerprint, Valid: true}
		docKey = sql.NullString{String: d.Key, Valid: true}
		docSize = sql.NullInt64{Int64: d.Size, Valid: true}
		docAt = sql.NullTime{Time: d.RenderedAt, Valid: true}
	}

	return []any{
		c.ID,
		c.Number,
		string(c.Type),
		c.Permanence,
		c.TermMonths,
		c.ClientID,
		c.PlanID,
		c.PlanName,
		c.Terms.Currency,
		toNullDecimal(c.Terms.MonthlyPrice),
		toNullDecimal(c.Terms.InstallationFee),
		toNullDecimal(c.Terms.EarlyTerminationPenalty),
		c.GeneratedAt,
		string(c.State),
		signerName,
		signerDoc,
		signedAt,
		place,
		image,
		sigHash,
		docFP,
		docKey,
		docSize,
		docAt,
		string(obsJSON),
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	}, nil
}

func scanContract(row *sql.Row) (contracts.Contract, error) {
	var (
		c                                     contracts.Contract
		typ, state                            string
		monthly, install, penalty             decimal.NullDecimal
		signerName, signerDoc, place, sigHash sql.NullString
		signedAt                              sql.NullTime
		image                                 []byte
		docFP, docKey                         sql.NullString
		docSize                               sql.NullInt64
		docAt                                 sql.NullTime
		obsJSON                               []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.Number,
		&typ,
		&c.Permanence,
		&c.TermMonths,
		&c.ClientID,
		&c.PlanID,
		&c.PlanName,
		&c.Terms.Currency,
		&monthly,
		&install,
		&penalty,
		&c.GeneratedAt,
		&state,
		&signerName,
		&signerDoc,
		&signedAt,
		&place,
		&image,
		&sigHash,
		&docFP,
		&docKey,
		&docSize,
		&docAt,
		&obsJSON,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return contracts.Contract{}, err
	}

	c.Type = contracts.Type(typ)
	c.State = contracts.State(state)
	c.Terms.MonthlyPrice = fromNullDecimal(monthly)
	c.Terms.InstallationFee = fromNullDecimal(install)
	c.Terms.EarlyTerminationPenalty = fromNullDecimal(penalty)
	c.GeneratedAt = c.GeneratedAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	if signedAt.Valid {
		c.Signature = &contracts.Signature{
			SignerName:       signerName.String,
			SignerIDDocument: signerDoc.String,
			SignedAt:         signedAt.Time.UTC(),
			Place:            place.String,
			Image:            image,
			ImageSHA256:      sigHash.String,
		}
	}
	if docKey.Valid {
		c.Document = &contracts.DocumentRef{
			Fingerprint: docFP.String,
			Key:         docKey.String,
			Size:        docSize.Int64,
			RenderedAt:  docAt.Time.UTC(),
		}
	}

	var obs []observationRow
	if len(obsJSON) > 0 {
		if err := json.Unmarshal(obsJSON, &obs); err != nil {
			return contracts.Contract{}, err
		}
	}
	for _, o := range obs {
		c.Observations = append(c.Observations, contracts.Observation{
			At:      o.At.UTC(),
			ActorID: o.ActorID,
			State:   o.State,
			Text:    o.Text,
		})
	}
	return c, nil
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
