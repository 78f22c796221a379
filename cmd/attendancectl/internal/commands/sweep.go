package commands

import (
	"context"
	"fmt"
)

// SweepCmd runs one expiry sweep against the configured store.
type SweepCmd struct {
	DryRun bool `help:"List active sessions past their expiry without deactivating them." default:"false"`
}

func (s *SweepCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	now := a.Sessions.Now()
	out := globals.out()
	if s.DryRun {
		active, err := a.Sessions.ListActive(ctx)
		if err != nil {
			return err
		}
		n := 0
		for _, session := range active {
			if !session.ValidAt(now) {
				fmt.Fprintf(out, "%s\t%s\texpired %s\n", session.ID, session.Code, session.ExpiresAt().Format("2006-01-02 15:04:05"))
				n++
			}
		}
		fmt.Fprintf(out, "%d session(s) would be deactivated\n", n)
		return nil
	}

	ids, err := a.Sessions.SweepExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	fmt.Fprintf(out, "%d session(s) deactivated\n", len(ids))
	return nil
}
