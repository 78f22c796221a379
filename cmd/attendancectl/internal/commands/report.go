package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
)

// ReportCmd renders a presence report to a file or stdout.
type ReportCmd struct {
	Class   string `help:"Class ID" required:""`
	Subject string `help:"Subject ID to narrow the report to" default:""`
	From    string `help:"First day, YYYY-MM-DD (UTC)" default:""`
	To      string `help:"Last day, YYYY-MM-DD (UTC)" default:""`
	Format  string `help:"Output format" enum:"csv,pdf,json" default:"csv"`
	Output  string `help:"Output file, - for stdout" short:"o" default:"-"`
}

func (r *ReportCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	query := dto.PresenceReportQuery{ClassID: r.Class, SubjectID: r.Subject, From: r.From, To: r.To, Format: r.Format}

	var data []byte
	if r.Format == dto.ReportFormatJSON {
		matrix, err := a.Reports.Presence(ctx, query)
		if err != nil {
			return err
		}
		if data, err = json.MarshalIndent(matrix, "", "  "); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		data = append(data, '\n')
	} else {
		file, err := a.Reports.Export(ctx, query)
		if err != nil {
			return err
		}
		data = file.Data
	}

	if r.Output == "" || r.Output == "-" {
		_, err = globals.out().Write(data)
		return err
	}
	if err := os.WriteFile(r.Output, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(globals.out(), "wrote %s (%d bytes)\n", r.Output, len(data))
	return nil
}
