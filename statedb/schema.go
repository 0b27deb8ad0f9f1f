package statedb

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)

	watermarkTable = `CREATE TABLE IF NOT EXISTS watermarks (
		stream VARCHAR(64) NOT NULL,
		chain_key CHAR(64) NOT NULL,
		height BIGINT NOT NULL,
		PRIMARY KEY (stream, chain_key),
		CONSTRAINT chk_height CHECK (height >= 0)
	);`

	depositTable = `CREATE TABLE IF NOT EXISTS deposits (
		src_chain_key CHAR(64) NOT NULL,
		nonce CHAR(64) NOT NULL,
		dest_chain_key CHAR(64) NOT NULL,
		dest_token CHAR(64) NOT NULL,
		dest_account CHAR(64) NOT NULL,
		amount CHAR(64) NOT NULL,
		deposited_at BIGINT NOT NULL,
		withdraw_hash CHAR(64) NOT NULL,
		height BIGINT NOT NULL,
		tx_hash VARCHAR(128) NOT NULL,
		status VARCHAR(16) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (src_chain_key, nonce),
		CONSTRAINT chk_status CHECK (status IN ('observed', 'retrying', 'submitted', 'rejected', 'skipped', 'failed')),
		CONSTRAINT chk_src_chain_key CHECK (src_chain_key != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_withdraw_hash CHECK (withdraw_hash != '` + strZeroBytes32 + `')
	);
	CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits (src_chain_key, status, nonce);
	CREATE INDEX IF NOT EXISTS idx_deposits_hash ON deposits (withdraw_hash);`

	approvalTable = `CREATE TABLE IF NOT EXISTS approvals (
		withdraw_hash CHAR(64) PRIMARY KEY NOT NULL,
		src_chain_key CHAR(64) NOT NULL,
		dest_chain_key CHAR(64) NOT NULL,
		token CHAR(64) NOT NULL,
		recipient CHAR(64) NOT NULL,
		dest_account CHAR(64) NOT NULL,
		amount CHAR(64) NOT NULL,
		nonce CHAR(64) NOT NULL,
		fee CHAR(64) NOT NULL,
		fee_recipient CHAR(64) NOT NULL,
		approved_at BIGINT NOT NULL,
		deduct_from_amount BOOLEAN NOT NULL,
		state VARCHAR(16) NOT NULL,
		verdict VARCHAR(16) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		reenabled BOOLEAN NOT NULL DEFAULT FALSE,
		height BIGINT NOT NULL,
		tx_hash VARCHAR(128) NOT NULL,
		updated_at BIGINT NOT NULL,
		CONSTRAINT chk_state CHECK (state IN ('pending', 'approved', 'cancelled', 'executed')),
		CONSTRAINT chk_verdict CHECK (verdict IN ('unverified', 'valid', 'invalid', 'indeterminate')),
		CONSTRAINT chk_withdraw_hash CHECK (withdraw_hash != '` + strZeroBytes32 + `')
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_dest ON approvals (dest_chain_key, state, verdict);`

	nonceUsedTable = `CREATE TABLE IF NOT EXISTS nonce_used (
		src_chain_key CHAR(64) NOT NULL,
		nonce CHAR(64) NOT NULL,
		PRIMARY KEY (src_chain_key, nonce)
	);`

	submissionTable = `CREATE TABLE IF NOT EXISTS submissions (
		kind VARCHAR(16) NOT NULL,
		withdraw_hash CHAR(64) NOT NULL,
		chain_key CHAR(64) NOT NULL,
		attempt_id CHAR(36) NOT NULL,
		tx_hash VARCHAR(128) NOT NULL,
		sent_height BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		attempts INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (kind, withdraw_hash),
		CONSTRAINT chk_kind CHECK (kind IN ('approve', 'execute', 'cancel', 'reenable')),
		CONSTRAINT chk_status CHECK (status IN ('inflight', 'success', 'rejected', 'timeout', 'transient')),
		CONSTRAINT chk_attempts CHECK (attempts > 0)
	);`

	leaseTable = `CREATE TABLE IF NOT EXISTS leases (
		lease_key VARCHAR(160) PRIMARY KEY NOT NULL,
		owner VARCHAR(64) NOT NULL,
		expires_at BIGINT NOT NULL
	);`

	depositColumns = ` src_chain_key, nonce, dest_chain_key, dest_token, dest_account, amount, deposited_at,
		withdraw_hash, height, tx_hash, status, reason, updated_at `

	approvalColumns = ` withdraw_hash, src_chain_key, dest_chain_key, token, recipient, dest_account, amount, nonce,
		fee, fee_recipient, approved_at, deduct_from_amount, state, verdict, reason, reenabled, height, tx_hash, updated_at `

	submissionColumns = ` kind, withdraw_hash, chain_key, attempt_id, tx_hash, sent_height, status, attempts,
		last_error, created_at, updated_at `
)
