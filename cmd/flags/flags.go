package flags

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/compressed-tree-registry/api"
	"github.com/ruteri/compressed-tree-registry/common"
	"github.com/ruteri/compressed-tree-registry/interfaces"
	"github.com/ruteri/compressed-tree-registry/kms"
	"github.com/ruteri/compressed-tree-registry/pda"
	"github.com/ruteri/compressed-tree-registry/program"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		RequestTimeout:           20 * time.Second,
	}
}

// KMSSeed decodes the 32-byte hex seed of KMSSeedFlag.
func KMSSeed(cCtx *cli.Context) ([]byte, error) {
	seed, err := hex.DecodeString(cCtx.String(KMSSeedFlag.Name))
	if err != nil || len(seed) != 32 {
		return nil, fmt.Errorf("invalid %s: must be 64 hex chars (32 bytes)", KMSSeedFlag.Name)
	}
	return seed, nil
}

// NewKMS returns a SimpleKMS when KMSSeedFlag is set, and otherwise a ShamirKMS
// unlocked with the shares of KMSSeedShareFlag.
func NewKMS(cCtx *cli.Context) (interfaces.KMS, error) {
	if cCtx.String(KMSSeedFlag.Name) != "" {
		seed, err := KMSSeed(cCtx)
		if err != nil {
			return nil, err
		}
		k, err := kms.NewSimpleKMS(seed)
		if err != nil {
			return nil, err
		}
		return k, nil
	}

	shares := cCtx.StringSlice(KMSSeedShareFlag.Name)
	if len(shares) == 0 {
		return nil, fmt.Errorf("either %s or %s is required", KMSSeedFlag.Name, KMSSeedShareFlag.Name)
	}

	config := kms.ShamirConfig{Threshold: cCtx.Int(KMSSeedThresholdFlag.Name)}
	if payer := cCtx.String(KMSPayerFlag.Name); payer != "" {
		expected, err := interfaces.NewPubkeyFromBase58(payer)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KMSPayerFlag.Name, err)
		}
		config.ExpectedPayer = &expected
	}

	k, err := kms.NewShamirKMSRecovery(config)
	if err != nil {
		return nil, err
	}
	for i, encoded := range shares {
		share, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid %s #%d: %w", KMSSeedShareFlag.Name, i, err)
		}
		if err := k.SubmitShare(share); err != nil {
			return nil, err
		}
	}
	if !k.IsUnlocked() {
		return nil, fmt.Errorf("%w: got %d shares", kms.ErrLocked, len(shares))
	}
	return k, nil
}

// ProgramID parses ProgramIDFlag.
func ProgramID(cCtx *cli.Context) (interfaces.Pubkey, error) {
	programID, err := interfaces.NewPubkeyFromBase58(cCtx.String(ProgramIDFlag.Name))
	if err != nil {
		return interfaces.Pubkey{}, fmt.Errorf("invalid %s: %w", ProgramIDFlag.Name, err)
	}
	return programID, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"LISTEN_ADDR"},
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "registry server to talk to",
	EnvVars: []string{"REGISTRY_SERVER_ADDR"},
}

var LedgerPathFlag = &cli.StringFlag{
	Name:    "ledger-path",
	Value:   "",
	Usage:   "badger directory of the ledger, in memory if empty",
	EnvVars: []string{"LEDGER_PATH"},
}

var ReceiptCacheSizeFlag = &cli.Int64Flag{
	Name:  "receipt-cache-size",
	Value: 10_000,
	Usage: "number of transaction receipts kept in the read cache",
}

var ProgramIDFlag = &cli.StringFlag{
	Name:    "program-id",
	Value:   pda.DefaultRegistryProgramID.String(),
	Usage:   "base58 identity the registry program is deployed at",
	EnvVars: []string{"REGISTRY_PROGRAM_ID"},
}

var CapacityFlag = &cli.UintFlag{
	Name:    "registry-capacity",
	Value:   uint(program.DefaultCapacity),
	Usage:   "maximum number of trees the registry keeps, fixed at initialization",
	EnvVars: []string{"REGISTRY_CAPACITY"},
}

var KMSSeedFlag = &cli.StringFlag{
	Name:    "kms-seed",
	Usage:   "hex-encoded 32-byte seed the payer, tree and collection keys are derived from",
	EnvVars: []string{"REGISTRY_KMS_SEED"},
}

var KMSSeedShareFlag = &cli.StringSliceFlag{
	Name:    "kms-seed-share",
	Usage:   "hex-encoded Shamir share of the KMS seed, repeatable, used when kms-seed is empty",
	EnvVars: []string{"REGISTRY_KMS_SEED_SHARES"},
}

var KMSSeedThresholdFlag = &cli.IntFlag{
	Name:  "kms-seed-threshold",
	Value: 2,
	Usage: "number of shares required to reconstruct the KMS seed",
}

var KMSPayerFlag = &cli.StringFlag{
	Name:  "kms-payer",
	Usage: "base58 payer identity the reconstructed KMS seed must derive",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	Usage:   "off-chain metadata storage location (file://, s3://, ipfs://), repeatable",
	EnvVars: []string{"REGISTRY_STORAGE"},
}

var MetadataBaseURLFlag = &cli.StringFlag{
	Name:    "metadata-base-url",
	Value:   "",
	Usage:   "public URL of /api/metadata used in published URIs, derived from listen-addr if empty",
	EnvVars: []string{"REGISTRY_METADATA_BASE_URL"},
}

var AirdropFlag = &cli.Uint64Flag{
	Name:  "airdrop-lamports",
	Value: 0,
	Usage: "fund the payer with this many lamports on startup (development ledgers)",
}

var InitializeFlag = &cli.BoolFlag{
	Name:  "initialize",
	Value: false,
	Usage: "initialize the registry state on startup unless it exists",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
