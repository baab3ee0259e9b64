package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/lotterylab/lotteryd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const winnerStoreDir = "winners"

type winnerRepository struct {
	store *badgerhold.Store
}

func NewWinnerRepository(config ...interface{}) (domain.WinnerRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, winnerStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open winner store: %s", err)
	}

	return &winnerRepository{store}, nil
}

func (r *winnerRepository) AddWinner(
	_ context.Context, record domain.WinnerRecord,
) error {
	if err := r.store.Insert(record.RoundSeq, record); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("winner for round %d already recorded", record.RoundSeq)
		}
		return err
	}
	return nil
}

func (r *winnerRepository) GetAllWinners(
	ctx context.Context,
) ([]domain.WinnerRecord, error) {
	query := badgerhold.Where("RoundSeq").Ge(uint64(0)).SortBy("RoundSeq")
	return r.findWinners(ctx, query)
}

func (r *winnerRepository) GetWinnerForRound(
	ctx context.Context, seq uint64,
) (*domain.WinnerRecord, error) {
	query := badgerhold.Where("RoundSeq").Eq(seq)
	records, err := r.findWinners(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(records) <= 0 {
		return nil, fmt.Errorf("winner for round %d not found", seq)
	}
	record := &records[0]
	return record, nil
}

func (r *winnerRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *winnerRepository) findWinners(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.WinnerRecord, error) {
	var records []domain.WinnerRecord
	var err error

	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &records, query)
	} else {
		err = r.store.Find(&records, query)
	}

	return records, err
}
