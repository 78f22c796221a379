package commands

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/attendance-ledger-api/internal/app"
	"github.com/noah-isme/attendance-ledger-api/pkg/config"
	"github.com/noah-isme/attendance-ledger-api/pkg/logger"
)

type Globals struct {
	Debug   bool
	Version string
	Out     io.Writer
}

func (g *Globals) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// open loads the server configuration and wires the same stores the API uses.
func open(ctx context.Context, globals *Globals) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if globals != nil && globals.Debug {
		cfg.Log.Level = zapcore.DebugLevel.String()
	} else if cfg.Log.Level == "" {
		cfg.Log.Level = zapcore.WarnLevel.String()
	}
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		logr = zap.NewNop()
	}
	return app.New(ctx, cfg, logr, nil)
}
