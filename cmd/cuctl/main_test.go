package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consumption-unit/internal/address"
	"consumption-unit/internal/consumption"
	"consumption-unit/internal/contract"
	"consumption-unit/internal/storage/badger"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const instantiateJSON = `{
	"name": "consumption unit",
	"symbol": "cu",
	"collection_info_extension": {
		"settlement_token": {"cw20": "settlement"},
		"native_token": {"native": "untrn"},
		"price_oracle": "price_oracle"
	}
}`

func mintJSON(tokenID, owner string) string {
	return fmt.Sprintf(`{"mint": {
		"token_id": %q,
		"owner": %q,
		"extension": {
			"consumption_value": "5000",
			"nominal_quantity": "120",
			"nominal_currency": "kWh",
			"commitment_tier": 2,
			"state": "selected",
			"floor_price": "10.5",
			"hashes": ["h1"],
			"created_at": "2020-01-01T00:00:00Z",
			"updated_at": "2020-01-01T00:00:00Z"
		}
	}}`, tokenID, owner)
}

// seed writes a collection with the given token owners into a fresh Badger
// directory and returns the directory.
func seed(t *testing.T, owners map[string]string) string {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := badger.Open(ctx, dir, discard)
	require.NoError(t, err)
	defer db.Close()

	router := contract.NewRouter(consumption.New(db, address.Loose{}), nil, nil, nil, discard)
	info := contract.Info{Sender: "admin"}
	_, err = router.Instantiate(ctx, info, []byte(instantiateJSON))
	require.NoError(t, err)
	for id, owner := range owners {
		_, err := router.Execute(ctx, info, []byte(mintJSON(id, owner)))
		require.NoError(t, err)
	}
	return dir
}

func TestRun_Query(t *testing.T) {
	dir := seed(t, map[string]string{"cu-1": "alice"})

	var out bytes.Buffer
	err := run(context.Background(), "query", []string{"-badger-dir", dir, `{"owner_of":{"token_id":"cu-1"}}`}, &out, discard)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"owner": "alice"`)

	err = run(context.Background(), "query", []string{"-badger-dir", dir, `{"owner_of":{"token_id":"missing"}}`}, &out, discard)
	assert.ErrorIs(t, err, consumption.ErrNotFound)

	err = run(context.Background(), "query", []string{"-badger-dir", dir}, &out, discard)
	assert.Error(t, err)
}

func TestRun_Tokens(t *testing.T) {
	dir := seed(t, map[string]string{"cu-1": "alice", "cu-2": "bob", "cu-3": "alice"})

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "tokens", []string{"-badger-dir", dir}, &out, discard))
	assert.Equal(t, []string{"cu-1", "cu-2", "cu-3"}, strings.Fields(out.String()))

	out.Reset()
	require.NoError(t, run(context.Background(), "tokens", []string{"-badger-dir", dir, "-owner", "alice"}, &out, discard))
	assert.Equal(t, []string{"cu-1", "cu-3"}, strings.Fields(out.String()))
}

func TestRun_Migrate(t *testing.T) {
	dir := seed(t, nil)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "migrate", []string{"-badger-dir", dir}, &out, discard))
	assert.Contains(t, out.String(), consumption.EventMigrate)

	// Empty directory has no collection
	err := run(context.Background(), "migrate", []string{"-badger-dir", t.TempDir()}, &out, discard)
	assert.ErrorIs(t, err, consumption.ErrNotInstantiated)
}

func TestRun_Errors(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()

	assert.Error(t, run(ctx, "bogus", nil, &out, discard))
	assert.Error(t, run(ctx, "schema", nil, &out, discard))
	assert.Error(t, run(ctx, "tokens", []string{"-backend", "postgres", "-postgres-dsn", ""}, &out, discard))
	assert.Error(t, run(ctx, "tokens", []string{"-backend", "etcd"}, &out, discard))
}
