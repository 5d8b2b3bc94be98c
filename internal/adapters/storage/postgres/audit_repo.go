package postgres

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strings"

	"isp-contracts/internal/domain/contracts"
)

const defaultAuditPageSize = 100

type AuditRepo struct {
	db       *sql.DB
	pageSize int
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db, pageSize: defaultAuditPageSize}
}

// Append inserta con seq = max+1. Dentro de la transacción de la máquina de estados,
// el UPDATE del CAS ya tiene bloqueada la fila del contrato, así que dos appends del
// mismo contrato no compiten; la PK (contract_id, seq) cubre el resto.
func (r *AuditRepo) Append(ctx context.Context, rec contracts.TransitionRecord) (contracts.TransitionRecord, error) {
	if strings.TrimSpace(rec.ContractID) == "" {
		return contracts.TransitionRecord{}, errors.New("audit: contract id required")
	}

	err := conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO contract_transitions (contract_id, seq, actor_id, from_state, to_state, at, reason)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6
		FROM contract_transitions
		WHERE contract_id = $1
		RETURNING seq
	`,
		rec.ContractID,
		rec.ActorID,
		string(rec.From),
		string(rec.To),
		rec.At,
		rec.Reason,
	).Scan(&rec.Seq)
	if err != nil {
		return contracts.TransitionRecord{}, err
	}
	return rec, nil
}

// ListFor pagina por keyset sobre seq. Cada range empieza desde seq 0.
func (r *AuditRepo) ListFor(ctx context.Context, contractID string) iter.Seq2[contracts.TransitionRecord, error] {
	return func(yield func(contracts.TransitionRecord, error) bool) {
		var after int64
		for {
			page, err := r.page(ctx, contractID, after)
			if err != nil {
				yield(contracts.TransitionRecord{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				after = rec.Seq
			}
			if len(page) < r.pageSize {
				return
			}
		}
	}
}

func (r *AuditRepo) page(ctx context.Context, contractID string, after int64) ([]contracts.TransitionRecord, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT contract_id, seq, actor_id, from_state, to_state, at, reason
		FROM contract_transitions
		WHERE contract_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`, contractID, after, r.pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]contracts.TransitionRecord, 0, r.pageSize)
	for rows.Next() {
		var (
			rec      contracts.TransitionRecord
			from, to string
		)
		if err := rows.Scan(&rec.ContractID, &rec.Seq, &rec.ActorID, &from, &to, &rec.At, &rec.Reason); err != nil {
			return nil, err
		}
		rec.From = contracts.State(from)
		rec.To = contracts.State(to)
		rec.At = rec.At.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
