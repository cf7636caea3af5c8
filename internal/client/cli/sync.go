package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/cradle5/cradlesync/internal/client/backup"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/repositories/metadata"
	"github.com/cradle5/cradlesync/internal/client/worker"
	"github.com/cradle5/cradlesync/internal/forms"
)

// Sync uploads pending records now and prints per-record progress.
func (a *App) Sync(ctx context.Context) error {
	rep, err := a.runner.RunNow(ctx, func(p models.Progress) {
		fmt.Fprintf(a.out, "[%s %d/%d] record %d: %s\n", p.Kind, p.Done, p.Total, p.LocalID, p.Outcome)
	})
	if errors.Is(err, worker.ErrBusy) {
		fmt.Fprintln(a.out, "A sync is already running in the background.")
		return nil
	}
	if rep != nil {
		a.printReport(rep)
	}
	return err
}

func (a *App) printReport(rep *models.Report) {
	t := rep.Totals()
	fmt.Fprintf(a.out, "Sync: %d uploaded, %d already uploaded, %d partial, %d failed, %d waiting for a patient, %d need attention\n",
		t.Uploaded, t.AlreadyUploaded, t.Partial, t.Failed, t.Blocked, t.Skipped)
	if rep.LookupError != "" {
		fmt.Fprintln(a.out, "Lookup lists were not refreshed:", rep.LookupError)
	}
}

// Status prints connectivity, record counts per kind and state, and the
// times of the last sync and backup.
func (a *App) Status(ctx context.Context) error {
	mode := a.Mode()
	if a.runner != nil {
		mode = ModeOffline
		if a.runner.Online() {
			mode = ModeOnline
		}
	}
	fmt.Fprintf(a.out, "Server: %s (%s)\n", a.config.ServerURL, mode)

	views, err := a.records.List(ctx, "")
	if err != nil {
		return err
	}
	counts := make(map[forms.Kind]map[string]int)
	for _, v := range views {
		if counts[v.Kind] == nil {
			counts[v.Kind] = make(map[string]int)
		}
		counts[v.Kind][v.Status()]++
	}
	for _, k := range forms.UploadOrder {
		c := counts[k]
		fmt.Fprintf(a.out, "  %-17s uploaded %d, drafts %d, partial %d, need attention %d, waiting %d, failed %d\n",
			k, c["uploaded"], c["draft"], c[string(models.ErrorPartial)],
			c[string(models.ErrorValidation)]+c[string(models.ErrorUnresolved)],
			c[string(models.ErrorBlocked)], c[string(models.ErrorTransport)])
	}

	meta := metadata.NewSQLiteRepository(a.db)
	for _, item := range []struct{ label, key string }{
		{"Last sync", metadata.KeyLastSyncAt},
		{"Last backup", metadata.KeyLastBackupAt},
	} {
		t, err := metadata.GetTime(ctx, meta, item.key)
		if err != nil {
			return err
		}
		when := "never"
		if !t.IsZero() {
			when = t.Local().Format(timeFormat)
		}
		fmt.Fprintf(a.out, "%s: %s\n", item.label, when)
	}
	return nil
}

// Backup uploads a snapshot of the local database.
func (a *App) Backup(ctx context.Context) error {
	if a.backup == nil {
		fmt.Fprintln(a.out, "Backups are not configured. Set the S3 section of the config file.")
		return nil
	}
	key, err := a.backup.Export(ctx)
	if errors.Is(err, backup.ErrNoDevice) {
		fmt.Fprintln(a.out, "Log in online once before taking a backup.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Backup stored as", key)
	return nil
}
