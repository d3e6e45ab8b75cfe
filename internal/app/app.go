// Package app wires configuration, storage, the scan-source client and the
// core services into a runnable application. It acts as the facade for the
// whole system; nothing below this package knows about flags or process
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lcalzada-xor/vmtrack/internal/adapters/reporting"
	"github.com/lcalzada-xor/vmtrack/internal/adapters/scansource"
	"github.com/lcalzada-xor/vmtrack/internal/adapters/storage"
	"github.com/lcalzada-xor/vmtrack/internal/adapters/web"
	"github.com/lcalzada-xor/vmtrack/internal/config"
	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/dataset"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/ingest"
	"github.com/lcalzada-xor/vmtrack/internal/core/services/policy"
	"github.com/lcalzada-xor/vmtrack/internal/telemetry"
)

// Application holds the core components of a run.
type Application struct {
	Config    *config.Config
	Store     *storage.SQLiteStore
	Source    *scansource.Client
	Evaluator *policy.Evaluator
	Ingestor  *ingest.Ingestor
	Builder   *dataset.Builder
	WebServer *web.Server
}

// New creates an Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}
	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}
	store, err := storage.NewSQLiteStore(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init compliance storage: %w", err)
	}
	app.Store = store

	app.Source = scansource.NewClient(app.Config.SourceURL, app.Config.FetchTimeout)
	app.Evaluator = policy.NewEvaluator(domain.DefaultPolicy())

	app.Builder = dataset.NewBuilder(app.Source, app.Evaluator, dataset.Config{
		FilterDuplicateIP: app.Config.FilterDuplicateIP,
		IncludeHistory:    app.Config.IncludeHistory,
	})

	groups := domain.NewAutogroupMatcher(nil)
	app.Ingestor = ingest.NewIngestor(app.Store, app.Evaluator, groups, app.Config.ScannerID)

	if app.Config.Serve {
		app.WebServer = web.NewServer(app.Config.Addr, app.Store)
	}

	return nil
}

// Run performs one fetch/ingest/report cycle and, when configured, keeps
// serving the status API afterwards until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	defer app.Store.Close()

	start, end, err := app.Config.Window()
	if err != nil {
		return err
	}

	slog.Info("building dataset",
		"group", app.Config.GroupID,
		"window_start", start,
		"window_end", end)

	ds, err := app.Builder.Build(ctx, app.Config.GroupID, start, end)
	if err != nil {
		return fmt.Errorf("dataset build failed: %w", err)
	}

	summary, err := app.Ingestor.IngestSnapshot(ctx, ds.Current)
	if err != nil {
		return fmt.Errorf("snapshot ingestion failed: %w", err)
	}
	slog.Info("ingestion complete",
		"assets", summary.AssetsSeen,
		"findings", summary.FindingsIngested,
		"out_of_compliance", summary.ComplianceFailed)

	if err := app.render(ds); err != nil {
		return fmt.Errorf("report rendering failed: %w", err)
	}

	if app.WebServer != nil {
		return app.WebServer.Run(ctx)
	}
	return nil
}

func (app *Application) render(ds *domain.Dataset) error {
	if app.Config.OutputMode == "pdf" {
		data, err := reporting.NewPDFExporter().Export(ds)
		if err != nil {
			return err
		}
		if err := os.WriteFile(app.Config.ReportPath, data, 0644); err != nil {
			return err
		}
		slog.Info("pdf report written", "path", app.Config.ReportPath, "bytes", len(data))
		return nil
	}
	return reporting.NewRenderer(os.Stdout, reporting.Mode(app.Config.OutputMode)).Render(ds)
}
