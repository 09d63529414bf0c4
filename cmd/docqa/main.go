// Command docqa answers questions about PDFs uploaded to a session.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/docqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/docqa/internal/app"
)

// version is set by the build via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version, build); err != nil {
		os.Exit(1)
	}
}

func build(ctx context.Context, cfg *file.Config) (*cli.Services, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc := &cli.Services{
		Ingest:  a.Ingest,
		Query:   a.Answer,
		Session: a.Session,
		Metrics: a.Metrics.Handler(),
		Close:   a.Close,
	}
	if a.Sweeper != nil {
		svc.Sweeper = a.Sweeper
	}
	return svc, nil
}
