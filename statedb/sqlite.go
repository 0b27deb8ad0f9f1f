package statedb

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/chainadapter"
	"github.com/TEENet-io/watchtower-go/database"
	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on database/sql with the sqlite3 driver.
type SQLiteStore struct {
	db        *sql.DB
	stmtCache *database.StmtCache
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps in-memory databases shared and serializes writers
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db)
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := watermarkTable + depositTable + approvalTable + nonceUsedTable + submissionTable + leaseTable
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteStore{db: db, stmtCache: database.NewStmtCache(db)}, nil
}

func (st *SQLiteStore) Close() {
	st.stmtCache.Clear()
	_ = st.db.Close()
}

func (st *SQLiteStore) exec(query string, args ...interface{}) (sql.Result, error) {
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.Exec(args...)
}

func (st *SQLiteStore) GetWatermark(stream string, chain agreement.ChainKey) (uint64, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT height FROM watermarks WHERE stream = ? AND chain_key = ?`)
	if err != nil {
		return 0, false, err
	}

	var height int64
	if err := stmt.QueryRow(stream, hexOf(chain)).Scan(&height); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(height), true, nil
}

func (st *SQLiteStore) SetWatermark(stream string, chain agreement.ChainKey, height uint64) error {
	if stream == "" {
		return ErrEmptyStream
	}
	_, err := st.exec(`INSERT OR REPLACE INTO watermarks (stream, chain_key, height) VALUES (?, ?, ?)`,
		stream, hexOf(chain), int64(height))
	return err
}

func (st *SQLiteStore) SaveDeposit(rec *DepositRecord) (bool, error) {
	if err := validateDeposit(rec); err != nil {
		return false, err
	}
	r := toDepositRow(rec)
	res, err := st.exec(`INSERT OR IGNORE INTO deposits (`+depositColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SrcChainKey, r.Nonce, r.DestChainKey, r.DestToken, r.DestAccount, r.Amount, r.DepositedAt,
		r.WithdrawHash, r.Height, r.TxHash, r.Status, r.Reason, r.UpdatedUnix)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanDeposit(scan func(dest ...interface{}) error) (*DepositRecord, error) {
	r := &depositRow{}
	if err := scan(&r.SrcChainKey, &r.Nonce, &r.DestChainKey, &r.DestToken, &r.DestAccount, &r.Amount,
		&r.DepositedAt, &r.WithdrawHash, &r.Height, &r.TxHash, &r.Status, &r.Reason, &r.UpdatedUnix); err != nil {
		return nil, err
	}
	return r.record(), nil
}

func (st *SQLiteStore) GetDeposit(src agreement.ChainKey, nonce *big.Int) (*DepositRecord, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + depositColumns + `FROM deposits WHERE src_chain_key = ? AND nonce = ?`)
	if err != nil {
		return nil, false, err
	}
	rec, err := scanDeposit(stmt.QueryRow(hexOf(src), intHex(nonce)).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (st *SQLiteStore) ListDeposits(src agreement.ChainKey, statuses []DepositStatus, limit int) ([]*DepositRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT` + depositColumns + `FROM deposits WHERE src_chain_key = ? AND status IN (` +
		placeholders(len(statuses)) + `) ORDER BY nonce ASC`
	args := []interface{}{hexOf(src)}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DepositRecord
	for rows.Next() {
		rec, err := scanDeposit(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (st *SQLiteStore) UpdateDepositStatus(src agreement.ChainKey, nonce *big.Int, status DepositStatus, reason string) error {
	res, err := st.exec(`UPDATE deposits SET status = ?, reason = ?, updated_at = ? WHERE src_chain_key = ? AND nonce = ?`,
		string(status), reason, time.Now().Unix(), hexOf(src), intHex(nonce))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deposit not found: src=%s nonce=%v", src, nonce)
	}
	return nil
}

func (st *SQLiteStore) SaveApproval(rec *ApprovalRecord) error {
	if err := validateApproval(rec); err != nil {
		return err
	}
	r := toApprovalRow(rec)
	_, err := st.exec(`INSERT OR REPLACE INTO approvals (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.WithdrawHash, r.SrcChainKey, r.DestChainKey, r.Token, r.Recipient, r.DestAccount, r.Amount, r.Nonce,
		r.Fee, r.FeeRecipient, r.ApprovedAt, r.DeductFromAmount, r.State, r.Verdict, r.Reason, r.Reenabled,
		r.Height, r.TxHash, r.UpdatedUnix)
	return err
}

func scanApproval(scan func(dest ...interface{}) error) (*ApprovalRecord, error) {
	r := &approvalRow{}
	if err := scan(&r.WithdrawHash, &r.SrcChainKey, &r.DestChainKey, &r.Token, &r.Recipient, &r.DestAccount,
		&r.Amount, &r.Nonce, &r.Fee, &r.FeeRecipient, &r.ApprovedAt, &r.DeductFromAmount, &r.State, &r.Verdict,
		&r.Reason, &r.Reenabled, &r.Height, &r.TxHash, &r.UpdatedUnix); err != nil {
		return nil, err
	}
	return r.record(), nil
}

func (st *SQLiteStore) GetApproval(hash ethcommon.Hash) (*ApprovalRecord, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + approvalColumns + `FROM approvals WHERE withdraw_hash = ?`)
	if err != nil {
		return nil, false, err
	}
	rec, err := scanApproval(stmt.QueryRow(hexOf(hash)).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

func (st *SQLiteStore) ListApprovals(filter ApprovalFilter) ([]*ApprovalRecord, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.DestChainKey != nil {
		conds = append(conds, "dest_chain_key = ?")
		args = append(args, hexOf(*filter.DestChainKey))
	}
	if len(filter.States) > 0 {
		conds = append(conds, "state IN ("+placeholders(len(filter.States))+")")
		for _, s := range stringsOf(filter.States) {
			args = append(args, s)
		}
	}
	if len(filter.Verdicts) > 0 {
		conds = append(conds, "verdict IN ("+placeholders(len(filter.Verdicts))+")")
		for _, v := range stringsOf(filter.Verdicts) {
			args = append(args, v)
		}
	}

	query := `SELECT` + approvalColumns + `FROM approvals`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY approved_at ASC, withdraw_hash ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (st *SQLiteStore) IsNonceUsed(src agreement.ChainKey, nonce *big.Int) (bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT 1 FROM nonce_used WHERE src_chain_key = ? AND nonce = ?`)
	if err != nil {
		return false, err
	}
	var one int
	if err := stmt.QueryRow(hexOf(src), intHex(nonce)).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (st *SQLiteStore) MarkNonceUsed(src agreement.ChainKey, nonce *big.Int) (bool, error) {
	if nonce == nil {
		return false, ErrMissingNonce
	}
	res, err := st.exec(`INSERT OR IGNORE INTO nonce_used (src_chain_key, nonce) VALUES (?, ?)`, hexOf(src), intHex(nonce))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (st *SQLiteStore) GetSubmission(kind chainadapter.CallKind, hash ethcommon.Hash) (*Submission, bool, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT` + submissionColumns + `FROM submissions WHERE kind = ? AND withdraw_hash = ?`)
	if err != nil {
		return nil, false, err
	}
	r := &submissionRow{}
	err = stmt.QueryRow(string(kind), hexOf(hash)).Scan(&r.Kind, &r.WithdrawHash, &r.ChainKey, &r.AttemptID, &r.TxHash,
		&r.SentHeight, &r.Status, &r.Attempts, &r.LastError, &r.CreatedUnix, &r.UpdatedUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return r.record(), true, nil
}

func (st *SQLiteStore) SaveSubmission(s *Submission) error {
	if s == nil {
		return ErrNilRecord
	}
	r := toSubmissionRow(s)
	_, err := st.exec(`INSERT OR REPLACE INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Kind, r.WithdrawHash, r.ChainKey, r.AttemptID, r.TxHash, r.SentHeight, r.Status, r.Attempts,
		r.LastError, r.CreatedUnix, r.UpdatedUnix)
	return err
}

func (st *SQLiteStore) AcquireLease(key, owner string, ttl time.Duration, now time.Time) (bool, error) {
	if key == "" {
		return false, ErrEmptyLeaseKey
	}
	res, err := st.exec(`INSERT INTO leases (lease_key, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (lease_key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.owner = excluded.owner OR leases.expires_at <= ?`,
		key, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (st *SQLiteStore) ReleaseLease(key, owner string) error {
	_, err := st.exec(`DELETE FROM leases WHERE lease_key = ? AND owner = ?`, key, owner)
	return err
}

func (st *SQLiteStore) Stats() (*Stats, error) {
	stats := newStats()

	count := func(query string, put func(k string, n int)) error {
		rows, err := st.db.Query(query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				k string
				n int
			)
			if err := rows.Scan(&k, &n); err != nil {
				return err
			}
			put(k, n)
		}
		return rows.Err()
	}

	if err := count(`SELECT status, COUNT(*) FROM deposits GROUP BY status`, func(k string, n int) {
		stats.Deposits[DepositStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := count(`SELECT state, COUNT(*) FROM approvals GROUP BY state`, func(k string, n int) {
		stats.Approvals[agreement.ApprovalState(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := count(`SELECT verdict, COUNT(*) FROM approvals GROUP BY verdict`, func(k string, n int) {
		stats.Verdicts[agreement.Verdict(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := count(`SELECT status, COUNT(*) FROM submissions GROUP BY status`, func(k string, n int) {
		stats.Submissions[SubmissionStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	return stats, nil
}
