package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lotterylab/lotteryd/internal/core/domain"
)

type roundRepository struct {
	db *sql.DB
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected db at 0")
	}

	return &roundRepository{db}, nil
}

func (r *roundRepository) Close() {
	_ = r.db.Close()
}

func (r *roundRepository) AddOrUpdateRound(
	ctx context.Context, round domain.Round,
) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("original error: %v, rollback error: %w", err, rollbackErr)
			}
		}
	}()

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO round (
			id, seq, starting_timestamp, ending_timestamp, stage_code, ended,
			pot_amount, request_id, winner, payout_amount, random_value, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ending_timestamp = excluded.ending_timestamp,
			stage_code = excluded.stage_code,
			ended = excluded.ended,
			pot_amount = excluded.pot_amount,
			request_id = excluded.request_id,
			winner = excluded.winner,
			payout_amount = excluded.payout_amount,
			random_value = excluded.random_value,
			version = excluded.version`,
		round.Id, round.Seq, round.StartingTimestamp, round.EndingTimestamp,
		int(round.Stage), round.Ended, int64(round.PotAmount), round.RequestId,
		round.Winner, int64(round.PayoutAmount),
		strconv.FormatUint(round.RandomValue, 10), round.Version,
	); err != nil {
		return err
	}

	if _, err = tx.ExecContext(
		ctx, "DELETE FROM ticket WHERE round_id = ?", round.Id,
	); err != nil {
		return err
	}

	for position, ticket := range round.Tickets {
		if _, err = tx.ExecContext(
			ctx,
			"INSERT INTO ticket (round_id, position, owner, amount) VALUES (?, ?, ?, ?)",
			round.Id, position, ticket.Owner, int64(ticket.Amount),
		); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *roundRepository) GetRoundWithId(
	ctx context.Context, id string,
) (*domain.Round, error) {
	round, err := r.scanRound(r.db.QueryRowContext(
		ctx, selectRound+" WHERE id = ?", id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("round with id %s not found", id)
		}
		return nil, err
	}
	if err := r.loadTickets(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

func (r *roundRepository) GetRoundWithSeq(
	ctx context.Context, seq uint64,
) (*domain.Round, error) {
	round, err := r.scanRound(r.db.QueryRowContext(
		ctx, selectRound+" WHERE seq = ?", seq,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("round with seq %d not found", seq)
		}
		return nil, err
	}
	if err := r.loadTickets(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

func (r *roundRepository) GetLastRound(ctx context.Context) (*domain.Round, error) {
	round, err := r.scanRound(r.db.QueryRowContext(
		ctx, selectRound+" ORDER BY seq DESC LIMIT 1",
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadTickets(ctx, round); err != nil {
		return nil, err
	}
	return round, nil
}

const selectRound = `SELECT
	id, seq, starting_timestamp, ending_timestamp, stage_code, ended,
	pot_amount, request_id, winner, payout_amount, random_value, version
FROM round`

func (r *roundRepository) scanRound(row *sql.Row) (*domain.Round, error) {
	var (
		round       domain.Round
		stageCode   int
		potAmount   int64
		payout      int64
		randomValue string
	)
	if err := row.Scan(
		&round.Id, &round.Seq, &round.StartingTimestamp, &round.EndingTimestamp,
		&stageCode, &round.Ended, &potAmount, &round.RequestId, &round.Winner,
		&payout, &randomValue, &round.Version,
	); err != nil {
		return nil, err
	}

	round.Stage = domain.RoundStage(stageCode)
	round.PotAmount = uint64(potAmount)
	round.PayoutAmount = uint64(payout)

	parsed, err := strconv.ParseUint(randomValue, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid random value %q: %w", randomValue, err)
	}
	round.RandomValue = parsed

	return &round, nil
}

func (r *roundRepository) loadTickets(ctx context.Context, round *domain.Round) error {
	rows, err := r.db.QueryContext(
		ctx,
		"SELECT owner, amount FROM ticket WHERE round_id = ? ORDER BY position ASC",
		round.Id,
	)
	if err != nil {
		return err
	}
	// nolint:all
	defer rows.Close()

	round.Tickets = make([]domain.Ticket, 0)
	round.TicketsByOwner = make(map[string]int)
	for rows.Next() {
		var (
			owner  string
			amount int64
		)
		if err := rows.Scan(&owner, &amount); err != nil {
			return err
		}
		round.Tickets = append(round.Tickets, domain.Ticket{
			Owner:  owner,
			Amount: uint64(amount),
		})
		round.TicketsByOwner[owner]++
	}

	return rows.Err()
}
