package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vidkeep/storage-api/internal/billing"
	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/internal/repository"
	"github.com/vidkeep/storage-api/internal/service"
	"github.com/vidkeep/storage-api/pkg/blob"
	"github.com/vidkeep/storage-api/pkg/config"
	"github.com/vidkeep/storage-api/pkg/database"
	"github.com/vidkeep/storage-api/pkg/logger"
)

// quota-sweep runs a single maintenance cycle and prints its report as JSON.
// Intended for cron scheduling and for operators running ad-hoc sweeps.
func main() {
	dryRun := flag.Bool("dry-run", false, "report what the sweep would do without persisting anything")
	forceArchiving := flag.Bool("force-archiving", false, "archive overage for every account over quota regardless of restriction level")
	cleanupExpired := flag.Bool("cleanup-expired", false, "permanently delete archived assets past their recovery window")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	blobStore, err := blob.NewLocalStore(cfg.Blob.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init blob storage", "error", err)
	}

	accountRepo := repository.NewAccountRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifierSvc := service.NewNotificationService(cfg.Notifier, logr)
	notifierSvc.Start(ctx)
	defer notifierSvc.Stop()

	accountSvc := service.NewAccountService(accountRepo, nil, notifierSvc, nil, cfg.Quota, logr)
	billingClient := billing.NewClient(cfg.Billing)
	subscriptionSvc := service.NewSubscriptionService(billingClient, accountSvc, assetRepo, notifierSvc, cfg.Quota, logr)
	uploadSvc := service.NewUploadService(uploadRepo, assetRepo, blobStore, accountSvc, cfg.Uploads, logr)
	maintenanceSvc := service.NewMaintenanceService(accountSvc, subscriptionSvc, assetRepo, blobStore, uploadSvc, notifierSvc, nil, cfg.Quota, cfg.Maintenance, logr)

	report, err := maintenanceSvc.RunSweep(ctx, models.MaintenanceOptions{
		DryRun:         *dryRun,
		ForceArchiving: *forceArchiving,
		CleanupExpired: *cleanupExpired,
	})
	if err != nil {
		logr.Sugar().Fatalw("sweep aborted", "error", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		logr.Sugar().Fatalw("failed to print report", "error", err)
	}
	if len(report.Errors) > 0 {
		os.Exit(1)
	}
}
