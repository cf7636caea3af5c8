package cli

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/config"
	"github.com/cradle5/cradlesync/internal/client/repositories/lookups"
	"github.com/cradle5/cradlesync/internal/client/services"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// newRecordsApp returns a logged-in App backed by an in-memory database.
// Each element of input is one line typed by the user.
func newRecordsApp(t *testing.T, input ...string) (*App, *bytes.Buffer) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, client.RunMigrations(context.Background(), db))

	sealer, err := cryptox.NewSealer(bytes.Repeat([]byte{3}, cryptox.KeySize))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	var out bytes.Buffer
	a := &App{
		config:    cfg,
		db:        db,
		logger:    logging.NewNop(),
		lookups:   lookups.NewSQLiteRepository(db),
		masterKey: []byte("k"),
		userName:  "nurse1",
		records:   services.NewRecordService(db, sealer, logging.NewNop()),
		reader:    rdr(strings.Join(input, "\n") + "\n"),
		out:       &out,
	}
	return a, &out
}

// patientAnswers answers the patient prompts in form order.
func patientAnswers(initials string) []string {
	return []string{initials, "KM-1", "", "25", "", "", "Rokupr", "F1", "D1", "", ""}
}
