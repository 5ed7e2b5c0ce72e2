package scylla

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_bucket int,
		account_id text,
		kind text,
		email text,
		document_id text,
		display_name text,
		password_digest text,
		role text,
		status text,
		otp_code text,
		otp_expires_at timestamp,
		otp_attempts int,
		last_access_at timestamp,
		created_at timestamp,
		updated_at timestamp,
		PRIMARY KEY ((account_bucket), account_id)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts_by_email (
		email text PRIMARY KEY,
		account_bucket int,
		account_id text
	)`,
	`CREATE TABLE IF NOT EXISTS accounts_by_document (
		document_id text PRIMARY KEY,
		account_bucket int,
		account_id text
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		name text PRIMARY KEY,
		value text,
		updated_at timestamp
	)`,
}

const (
	accountColumns = `account_bucket, account_id, kind, email, document_id, display_name,
		password_digest, role, status, otp_code, otp_expires_at, otp_attempts,
		last_access_at, created_at, updated_at`

	insertAccount = `INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	claimEmailIndex    = `INSERT INTO accounts_by_email (email, account_bucket, account_id) VALUES (?, ?, ?) IF NOT EXISTS`
	claimDocumentIndex = `INSERT INTO accounts_by_document (document_id, account_bucket, account_id) VALUES (?, ?, ?) IF NOT EXISTS`

	releaseEmailIndex    = `DELETE FROM accounts_by_email WHERE email = ? IF account_id = ?`
	releaseDocumentIndex = `DELETE FROM accounts_by_document WHERE document_id = ? IF account_id = ?`

	selectAccount     = `SELECT ` + accountColumns + ` FROM accounts WHERE account_bucket = ? AND account_id = ?`
	selectByEmail     = `SELECT account_bucket, account_id FROM accounts_by_email WHERE email = ?`
	selectByDocument  = `SELECT account_bucket, account_id FROM accounts_by_document WHERE document_id = ?`
	selectOTPAttempts = `SELECT otp_attempts FROM accounts WHERE account_bucket = ? AND account_id = ?`
	casOTPAttempts    = `UPDATE accounts SET otp_attempts = ?, updated_at = ?
		WHERE account_bucket = ? AND account_id = ? IF otp_attempts = ?`

	casOTPAttemptsFromNull = `UPDATE accounts SET otp_attempts = ?, updated_at = ?
		WHERE account_bucket = ? AND account_id = ? IF otp_attempts = null`

	casConsumeOTPCode = `UPDATE accounts SET otp_code = '', otp_expires_at = null, otp_attempts = 0,
		last_access_at = ?, updated_at = ?
		WHERE account_bucket = ? AND account_id = ? IF otp_code = ?`

	selectSetting         = `SELECT value FROM settings WHERE name = ?`
	insertSettingIfAbsent = `INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?) IF NOT EXISTS`
)
