package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/forms"
)

const timeFormat = "2006-01-02 15:04"

func (a *App) usage(text string) error {
	fmt.Fprintln(a.out, "Usage:", text)
	return nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

// Add collects a new record of the kind given in args[0]. Outcomes also
// need the local ID of their patient, taken from args[1] or prompted.
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usage("add <patient|outcomes|training|bpinfo> [patient id]")
	}
	kind, err := forms.ParseKind(args[0])
	if err != nil {
		return a.usage("add <patient|outcomes|training|bpinfo> [patient id]")
	}

	var parent *int64
	if kind == forms.KindOutcomes {
		raw := ""
		if len(args) > 1 {
			raw = args[1]
		} else if raw, err = getSimpleText(a.reader, "Patient record id", a.out); err != nil {
			return err
		}
		id, ok := parseID(raw)
		if !ok {
			return a.usage("add outcomes <patient id>")
		}
		parent = &id
	}

	f, err := models.NewForm(kind)
	if err != nil {
		return err
	}
	if err := a.fillChecked(ctx, f); err != nil {
		return err
	}

	id, err := a.records.Create(ctx, f, parent)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s record %d. It will be sent on the next sync.\n", kind, id)
	return nil
}

// fillChecked prompts for f until it passes its own checks or the user
// gives up.
func (a *App) fillChecked(ctx context.Context, f models.Form) error {
	for {
		if err := a.promptForm(ctx, f); err != nil {
			return err
		}
		err := f.Check()
		if err == nil {
			return nil
		}
		fmt.Fprintln(a.out, err)
		again, cerr := GetConfirm(a.reader, "Correct the form now?", a.out)
		if cerr != nil {
			return cerr
		}
		if !again {
			return err
		}
	}
}

// Edit changes a record the server has not received yet.
func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usage("edit <id>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.usage("edit <id>")
	}

	v, err := a.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.ServerInfo != nil {
		return common.ErrAlreadyUploaded
	}
	if v.ServerErrorMessage != nil {
		fmt.Fprintln(a.out, "Server said:", *v.ServerErrorMessage)
	}

	if err := a.fillChecked(ctx, v.Form); err != nil {
		return err
	}
	if err := a.records.Update(ctx, id, v.Form); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated record %d.\n", id)
	return nil
}

// List prints local records, optionally of one kind.
func (a *App) List(ctx context.Context, args []string) error {
	var kind forms.Kind
	if len(args) > 0 {
		k, err := forms.ParseKind(args[0])
		if err != nil {
			return a.usage("list [patient|outcomes|training|bpinfo]")
		}
		kind = k
	}

	views, err := a.records.List(ctx, kind)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Fprintln(a.out, "No records.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tUPDATED\tTITLE")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.LocalID, v.Kind, v.Status(), v.UpdatedAt.Local().Format(timeFormat), v.Title)
	}
	return tw.Flush()
}

// Show prints one record with its sync state and form values.
func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usage("show <id>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.usage("show <id>")
	}

	v, err := a.records.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (%s record %d)\n", v.Title, v.Kind, v.LocalID)
	fmt.Fprintf(a.out, "Status: %s\n", v.Status())
	if v.ParentLocalID != nil {
		fmt.Fprintf(a.out, "Patient record: %d\n", *v.ParentLocalID)
	}
	if si := v.ServerInfo; si != nil {
		if si.ObjectID != nil {
			fmt.Fprintf(a.out, "Server object: %d\n", *si.ObjectID)
		}
		if si.NodeID != nil {
			fmt.Fprintf(a.out, "Server node: %d\n", *si.NodeID)
		}
		if si.CreatedTime != nil {
			fmt.Fprintf(a.out, "Created on server: %s\n", si.CreatedTime.Local().Format(timeFormat))
		}
		if si.Location != "" {
			fmt.Fprintf(a.out, "Reference: %s\n", si.Location)
		}
	}
	if v.ServerErrorMessage != nil {
		fmt.Fprintf(a.out, "Message: %s\n", *v.ServerErrorMessage)
	}

	controls, err := forms.Encode(v.Form)
	if err != nil {
		return err
	}
	schema, _ := forms.ByKind(v.Kind)
	for _, c := range schema.Controls {
		if val, ok := controls[c.ID()]; ok {
			fmt.Fprintf(a.out, "  %s: %v\n", c.Name, val)
		}
	}
	return nil
}

// Delete removes a record that has not been uploaded, after confirmation.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usage("delete <id>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.usage("delete <id>")
	}

	v, err := a.records.Get(ctx, id)
	if err != nil {
		return err
	}
	sure, err := GetConfirm(a.reader, fmt.Sprintf("Delete %s record %d %q?", v.Kind, id, v.Title), a.out)
	if err != nil || !sure {
		return err
	}

	if err := a.records.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted record %d.\n", id)
	return nil
}

// History prints the upload attempts of a record.
func (a *App) History(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usage("history <id>")
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.usage("history <id>")
	}

	attempts, err := a.records.History(ctx, id)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(a.out, "No upload attempts yet.")
		return nil
	}
	for _, at := range attempts {
		line := at.At.Local().Format(timeFormat) + "  " + at.Outcome
		if at.Message != nil {
			line += "  " + *at.Message
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}
