package statedb

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	ethcommon "github.com/ethereum/go-ethereum/common"
	logger "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore implements Store on gorm, normally backed by Postgres.
// Several watchtower instances may share one GormStore database.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&watermarkRow{},
		&depositRow{},
		&approvalRow{},
		&nonceUsedRow{},
		&submissionRow{},
		&leaseRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (st *GormStore) Close() {
	sqlDB, err := st.db.DB()
	if err != nil {
		logger.Errorf("failed to get sql db from gorm: err=%v", err)
		return
	}
	_ = sqlDB.Close()
}

func (st *GormStore) GetWatermark(stream string, chain agreement.ChainKey) (uint64, bool, error) {
	var row watermarkRow
	err := st.db.Where("stream = ? AND chain_key = ?", stream, hexOf(chain)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(row.Height), true, nil
}

func (st *GormStore) SetWatermark(stream string, chain agreement.ChainKey, height uint64) error {
	if stream == "" {
		return ErrEmptyStream
	}
	row := &watermarkRow{Stream: stream, ChainKey: hexOf(chain), Height: int64(height)}
	return st.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream"}, {Name: "chain_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"height"}),
	}).Create(row).Error
}

func (st *GormStore) SaveDeposit(rec *DepositRecord) (bool, error) {
	if err := validateDeposit(rec); err != nil {
		return false, err
	}
	res := st.db.Clauses(clause.OnConflict{DoNothing: true}).Create(toDepositRow(rec))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (st *GormStore) GetDeposit(src agreement.ChainKey, nonce *big.Int) (*DepositRecord, bool, error) {
	var row depositRow
	err := st.db.Where("src_chain_key = ? AND nonce = ?", hexOf(src), intHex(nonce)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.record(), true, nil
}

func (st *GormStore) ListDeposits(src agreement.ChainKey, statuses []DepositStatus, limit int) ([]*DepositRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := st.db.Where("src_chain_key = ? AND status IN ?", hexOf(src), stringsOf(statuses)).Order("nonce ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []depositRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*DepositRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

func (st *GormStore) UpdateDepositStatus(src agreement.ChainKey, nonce *big.Int, status DepositStatus, reason string) error {
	res := st.db.Model(&depositRow{}).
		Where("src_chain_key = ? AND nonce = ?", hexOf(src), intHex(nonce)).
		Updates(map[string]interface{}{"status": string(status), "reason": reason, "updated_at": time.Now().Unix()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deposit not found: src=%s nonce=%v", src, nonce)
	}
	return nil
}

func (st *GormStore) SaveApproval(rec *ApprovalRecord) error {
	if err := validateApproval(rec); err != nil {
		return err
	}
	return st.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(toApprovalRow(rec)).Error
}

func (st *GormStore) GetApproval(hash ethcommon.Hash) (*ApprovalRecord, bool, error) {
	var row approvalRow
	err := st.db.Where("withdraw_hash = ?", hexOf(hash)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.record(), true, nil
}

func (st *GormStore) ListApprovals(filter ApprovalFilter) ([]*ApprovalRecord, error) {
	q := st.db.Model(&approvalRow{})
	if filter.DestChainKey != nil {
		q = q.Where("dest_chain_key = ?", hexOf(*filter.DestChainKey))
	}
	if len(filter.States) > 0 {
		q = q.Where("state IN ?", stringsOf(filter.States))
	}
	if len(filter.Verdicts) > 0 {
		q = q.Where("verdict IN ?", stringsOf(filter.Verdicts))
	}
	q = q.Order("approved_at ASC").Order("withdraw_hash ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []approvalRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ApprovalRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

func (st *GormStore) IsNonceUsed(src agreement.ChainKey, nonce *big.Int) (bool, error) {
	var n int64
	err := st.db.Model(&nonceUsedRow{}).
		Where("src_chain_key = ? AND nonce = ?", hexOf(src), intHex(nonce)).
		Count(&n).Error
	return n > 0, err
}

func (st *GormStore) MarkNonceUsed(src agreement.ChainKey, nonce *big.Int) (bool, error) {
	if nonce == nil {
		return false, ErrMissingNonce
	}
	res := st.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&nonceUsedRow{SrcChainKey: hexOf(src), Nonce: intHex(nonce)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (st *GormStore) GetSubmission(kind chainadapter.CallKind, hash ethcommon.Hash) (*Submission, bool, error) {
	var row submissionRow
	err := st.db.Where("kind = ? AND withdraw_hash = ?", string(kind), hexOf(hash)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row.record(), true, nil
}

func (st *GormStore) SaveSubmission(s *Submission) error {
	if s == nil {
		return ErrNilRecord
	}
	return st.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(toSubmissionRow(s)).Error
}

// AcquireLease locks the lease row for the duration of the transaction,
// so two instances cannot both observe an expired lease and take it.
func (st *GormStore) AcquireLease(key, owner string, ttl time.Duration, now time.Time) (bool, error) {
	if key == "" {
		return false, ErrEmptyLeaseKey
	}
	acquired := false
	err := st.db.Transaction(func(tx *gorm.DB) error {
		var row leaseRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("lease_key = ?", key).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&leaseRow{LeaseKey: key, Owner: owner, ExpiresAt: now.Add(ttl).UnixMilli()})
			if res.Error != nil {
				return res.Error
			}
			acquired = res.RowsAffected == 1
			return nil
		}
		if err != nil {
			return err
		}
		if row.Owner != owner && row.ExpiresAt > now.UnixMilli() {
			return nil
		}
		if err := tx.Model(&leaseRow{}).Where("lease_key = ?", key).
			Updates(map[string]interface{}{"owner": owner, "expires_at": now.Add(ttl).UnixMilli()}).Error; err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (st *GormStore) ReleaseLease(key, owner string) error {
	return st.db.Where("lease_key = ? AND owner = ?", key, owner).Delete(&leaseRow{}).Error
}

type groupCount struct {
	K string
	N int
}

func (st *GormStore) Stats() (*Stats, error) {
	stats := newStats()

	count := func(model interface{}, column string, put func(k string, n int)) error {
		var rows []groupCount
		if err := st.db.Model(model).Select(column + " AS k, COUNT(*) AS n").Group(column).Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			put(r.K, r.N)
		}
		return nil
	}

	if err := count(&depositRow{}, "status", func(k string, n int) { stats.Deposits[DepositStatus(k)] = n }); err != nil {
		return nil, err
	}
	if err := count(&approvalRow{}, "state", func(k string, n int) { stats.Approvals[agreement.ApprovalState(k)] = n }); err != nil {
		return nil, err
	}
	if err := count(&approvalRow{}, "verdict", func(k string, n int) { stats.Verdicts[agreement.Verdict(k)] = n }); err != nil {
		return nil, err
	}
	if err := count(&submissionRow{}, "status", func(k string, n int) { stats.Submissions[SubmissionStatus(k)] = n }); err != nil {
		return nil, err
	}
	return stats, nil
}
