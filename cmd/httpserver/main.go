package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ruteri/compressed-tree-registry/cmd/flags"
	"github.com/ruteri/compressed-tree-registry/common"
	"github.com/ruteri/compressed-tree-registry/httpserver"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/ledger"
	"github.com/ruteri/compressed-tree-registry/metrics"
	"github.com/ruteri/compressed-tree-registry/program"
	"github.com/ruteri/compressed-tree-registry/registry"
	"github.com/ruteri/compressed-tree-registry/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags []cli.Flag = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.LedgerPathFlag,
	flags.ReceiptCacheSizeFlag,
	flags.ProgramIDFlag,
	flags.CapacityFlag,
	flags.KMSSeedFlag,
	flags.KMSSeedShareFlag,
	flags.KMSSeedThresholdFlag,
	flags.KMSPayerFlag,
	flags.StorageFlag,
	flags.MetadataBaseURLFlag,
	flags.AirdropFlag,
	flags.InitializeFlag,
	flags.LogServiceFlagFn("registry-server"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the compressed tree registry API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			ctx := cCtx.Context
			listenAddr := cCtx.String(flags.ListenAddrFlag.Name)

			logger := flags.SetupLogger(cCtx)

			keys, err := flags.NewKMS(cCtx)
			if err != nil {
				logger.Error("Failed to create KMS", "err", err)
				return err
			}
			programID, err := flags.ProgramID(cCtx)
			if err != nil {
				logger.Error("Invalid program id", "err", err)
				return err
			}

			collectors, err := metrics.NewCollectors(common.PackageName)
			if err != nil {
				logger.Error("Failed to register metrics", "err", err)
				return err
			}

			ledgerPath := cCtx.String(flags.LedgerPathFlag.Name)
			logger.Info("Opening ledger", "path", ledgerPath, "programId", programID.String())
			client, l, err := registry.NewLocal(ctx, keys, registry.LocalOptions{
				Client: registry.Options{ProgramID: programID, Log: logger},
				Program: program.Options{
					Capacity: uint32(cCtx.Uint(flags.CapacityFlag.Name)),
					Log:      logger,
					Metrics:  collectors,
				},
				Ledger: ledger.Options{
					Path:             ledgerPath,
					ReceiptCacheSize: cCtx.Int64(flags.ReceiptCacheSizeFlag.Name),
					Log:              logger,
					Metrics:          collectors,
				},
				Airdrop: cCtx.Uint64(flags.AirdropFlag.Name),
			})
			if err != nil {
				logger.Error("Failed to open registry", "err", err)
				return err
			}
			defer l.Close()

			logger.Info("Registry ready", "payer", client.Payer().String())

			if cCtx.Bool(flags.InitializeFlag.Name) {
				receipt, err := client.Initialize(ctx)
				switch {
				case errors.Is(err, interfaces.ErrAlreadyInitialized):
					logger.Info("Registry state already initialized")
				case err != nil:
					logger.Error("Failed to initialize registry", "err", err)
					return err
				default:
					logger.Info("Registry state initialized", "signature", receipt.Signature)
				}
			}

			var store *storage.MetadataStore
			if locations := cCtx.StringSlice(flags.StorageFlag.Name); len(locations) > 0 {
				store, err = setupMetadataStore(cCtx, locations, listenAddr)
				if err != nil {
					logger.Error("Failed to set up metadata storage", "err", err)
					return err
				}
			}

			handler := httpserver.NewHandler(client, store, logger)
			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupMetadataStore(cCtx *cli.Context, locations []string, listenAddr string) (*storage.MetadataStore, error) {
	logger := flags.SetupLogger(cCtx).With("component", "metadata")

	parsed := make([]interfaces.StorageBackendLocation, 0, len(locations))
	for _, location := range locations {
		parsed = append(parsed, interfaces.StorageBackendLocation(location))
	}

	backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(parsed)
	if err != nil {
		return nil, err
	}

	baseURL := cCtx.String(flags.MetadataBaseURLFlag.Name)
	if baseURL == "" {
		baseURL = "http://" + listenAddr + "/api/metadata"
	}
	return storage.NewMetadataStore(backend, strings.TrimSuffix(baseURL, "/"), logger)
}
