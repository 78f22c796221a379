package commands

import (
	"context"
	"fmt"
)

// VerifyCmd decodes every table of the configured store. It never writes, so
// it is safe to run against a store the server refuses to touch.
type VerifyCmd struct{}

func (v *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	out := globals.out()
	failed := 0
	for _, result := range a.Verify(ctx) {
		if result.Error != nil {
			failed++
			fmt.Fprintf(out, "%-12s FAIL  %v\n", result.Name, result.Error)
			continue
		}
		fmt.Fprintf(out, "%-12s OK    %d row(s)\n", result.Name, result.Rows)
	}
	if failed > 0 {
		return fmt.Errorf("%d table(s) failed verification", failed)
	}
	return nil
}
