package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"tribunal/internal/adapters/config"
	"tribunal/internal/publish"
	"tribunal/internal/review"
	"tribunal/pkg/errors"
)

// Compile-time check
var _ publish.Archive = (*RoundArchive)(nil)

// Connect opens a Postgres connection pool for the round archive.
func Connect(cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}
	return db, nil
}

// RoundArchive mirrors round records into Postgres for longitudinal queries.
// It is supplementary storage: the file-backed calibration store remains
// authoritative, and archive failures never block a round's decision.
type RoundArchive struct {
	db *sqlx.DB
}

// NewRoundArchive creates a new round archive.
func NewRoundArchive(db *sqlx.DB) *RoundArchive {
	return &RoundArchive{db: db}
}

// Schema is the table the archive writes to.
//
//	CREATE TABLE IF NOT EXISTS review_rounds (
//	    round_number     INTEGER PRIMARY KEY,
//	    council_size     INTEGER NOT NULL,
//	    approve_count    INTEGER NOT NULL,
//	    reject_count     INTEGER NOT NULL,
//	    sycophancy_score DOUBLE PRECISION NOT NULL,
//	    decision         TEXT NOT NULL,
//	    votes            JSONB NOT NULL,
//	    escalation       JSONB,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);

// SaveRound upserts one round keyed by round_number, mirroring the
// calibration store's idempotent overwrite semantics.
func (r *RoundArchive) SaveRound(ctx context.Context, result *review.RoundResult) error {
	votesJSON, err := json.Marshal(result.Votes)
	if err != nil {
		return errors.Wrap(err, "marshal votes")
	}

	var escalationJSON []byte
	if result.Escalation != nil {
		escalationJSON, err = json.Marshal(result.Escalation)
		if err != nil {
			return errors.Wrap(err, "marshal escalation")
		}
	}

	query := `
		INSERT INTO review_rounds (
			round_number, council_size, approve_count, reject_count,
			sycophancy_score, decision, votes, escalation,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (round_number) DO UPDATE SET
			council_size     = EXCLUDED.council_size,
			approve_count    = EXCLUDED.approve_count,
			reject_count     = EXCLUDED.reject_count,
			sycophancy_score = EXCLUDED.sycophancy_score,
			decision         = EXCLUDED.decision,
			votes            = EXCLUDED.votes,
			escalation       = EXCLUDED.escalation,
			updated_at       = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		result.Decision.RoundNumber,
		result.Decision.CouncilSize,
		result.Decision.ApproveCount,
		result.Decision.RejectCount,
		result.Decision.SycophancyScore,
		result.Decision.FinalDecision,
		votesJSON,
		escalationJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "upsert round")
	}
	return nil
}
