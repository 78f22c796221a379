package commands

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ImportCmd loads the legacy attendance sheet into the ledger.
type ImportCmd struct {
	File   string `arg:"" help:"Legacy attendance CSV (Date,SessionID,RollNumber,StudentName,EnrollmentNumber); - reads stdin."`
	DryRun bool   `help:"Parse the sheet and report the row count without writing." default:"false"`
}

func (i *ImportCmd) Run(ctx context.Context, globals *Globals) error {
	var src io.Reader = os.Stdin
	if i.File != "-" {
		f, err := os.Open(i.File)
		if err != nil {
			return fmt.Errorf("open legacy sheet: %w", err)
		}
		defer f.Close() //nolint:errcheck
		src = f
	}

	a, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	result, err := a.ImportLegacyAttendance(ctx, src, i.DryRun)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	out := globals.out()
	if i.DryRun {
		fmt.Fprintf(out, "%d record(s) read, nothing written\n", result.Read)
		return nil
	}
	fmt.Fprintf(out, "%d record(s) read, %d imported, %d already recorded\n", result.Read, result.Imported, result.Read-result.Imported)
	return nil
}
