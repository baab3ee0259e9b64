package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lotterylab/lotteryd/internal/core/domain"
)

type winnerRepository struct {
	db *sql.DB
}

func NewWinnerRepository(config ...interface{}) (domain.WinnerRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open winner repository: invalid config, expected db at 0")
	}

	return &winnerRepository{db}, nil
}

func (r *winnerRepository) Close() {
	_ = r.db.Close()
}

func (r *winnerRepository) AddWinner(
	ctx context.Context, record domain.WinnerRecord,
) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO winner (round_seq, winner, payout_amount, random_value, resolved_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.RoundSeq, record.Winner, int64(record.PayoutAmount),
		strconv.FormatUint(record.RandomValue, 10), record.ResolvedAt,
	)
	return err
}

func (r *winnerRepository) GetAllWinners(
	ctx context.Context,
) ([]domain.WinnerRecord, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT round_seq, winner, payout_amount, random_value, resolved_at
		FROM winner ORDER BY round_seq ASC`,
	)
	if err != nil {
		return nil, err
	}
	// nolint:all
	defer rows.Close()

	records := make([]domain.WinnerRecord, 0)
	for rows.Next() {
		record, err := scanWinner(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	return records, rows.Err()
}

func (r *winnerRepository) GetWinnerForRound(
	ctx context.Context, seq uint64,
) (*domain.WinnerRecord, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT round_seq, winner, payout_amount, random_value, resolved_at
		FROM winner WHERE round_seq = ?`,
		seq,
	)

	record, err := scanWinner(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("winner for round %d not found", seq)
		}
		return nil, err
	}
	return record, nil
}

func scanWinner(scan func(dest ...any) error) (*domain.WinnerRecord, error) {
	var (
		record      domain.WinnerRecord
		payout      int64
		randomValue string
	)
	if err := scan(
		&record.RoundSeq, &record.Winner, &payout, &randomValue, &record.ResolvedAt,
	); err != nil {
		return nil, err
	}

	record.PayoutAmount = uint64(payout)

	parsed, err := strconv.ParseUint(randomValue, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid random value %q: %w", randomValue, err)
	}
	record.RandomValue = parsed

	return &record, nil
}
