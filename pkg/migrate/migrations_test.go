package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEmbedded(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(embeddedMigrations, embeddedDir+"/*_"+suffix+".sql")
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := fs.ReadFile(embeddedMigrations, matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestReceiptMigrationEnforcesIdempotencyKey(t *testing.T) {
	content := readEmbedded(t, "create_webhook_receipts")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS webhook_receipts",
		"CONSTRAINT webhook_receipts_external_id_key UNIQUE (external_id)",
		"'DEAD_LETTER'",
		"CHECK (retry_count >= 0)",
		"DROP TABLE IF EXISTS webhook_receipts",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestTransactionMigrationLinksOrders(t *testing.T) {
	content := readEmbedded(t, "create_payment_transactions")
	assert.Contains(t, content, "FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE")
	assert.Contains(t, content, "payment_transactions_external_transaction_id_key UNIQUE (external_transaction_id)")

	orders := readEmbedded(t, "create_orders")
	assert.Contains(t, orders, "orders_merchant_transaction_id_key UNIQUE (merchant_transaction_id)")
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Receipt Index!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_receipt_index.sql"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	require.NoError(t, ValidateDir(dir))
}

func TestValidateEmbeddedAcceptsCompiledSet(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
}

func TestValidateDirRejectsUnbalancedBlocks(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260301090000_broken.sql"), []byte(body), 0o644))
	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbalanced")
}

func TestCreateSQLMigrationSortsAfterExistingVersions(t *testing.T) {
	dir := t.TempDir()
	future := "29991231235959_later.sql"
	require.NoError(t, os.WriteFile(filepath.Join(dir, future), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	path, err := CreateSQLMigration(dir, "next")
	require.NoError(t, err)
	assert.Greater(t, filepath.Base(path), future)
	require.NoError(t, ValidateDir(dir))
}
