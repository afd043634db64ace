// knowbased serves the retrieval engine over HTTP. Configuration comes
// from the environment, with an optional .env file for development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vantageinsurance/knowbase"
	"github.com/vantageinsurance/knowbase/blobstore"
	kbminio "github.com/vantageinsurance/knowbase/blobstore/minio"
	kbs3 "github.com/vantageinsurance/knowbase/blobstore/s3"
	"github.com/vantageinsurance/knowbase/embed"
	"github.com/vantageinsurance/knowbase/ingest"
	"github.com/vantageinsurance/knowbase/internal/server"
	"github.com/vantageinsurance/knowbase/resource"
	"github.com/vantageinsurance/knowbase/snapshot"
)

type config struct {
	addr          string
	storeDir      string
	logJSON       bool
	logLevel      slog.Level
	compression   snapshot.Compression
	minSimilarity float64
	maxWorkers    int64
	ioLimitBps    int64

	archiveBackend string
	archiveBucket  string
	archivePrefix  string
	archiveKeep    int

	minioEndpoint  string
	minioAccessKey string
	minioSecretKey string
	minioSecure    bool

	ddbTable string
}

func loadConfig() (config, error) {
	cfg := config{
		addr:          envStr("KNOWBASE_ADDR", ":8080"),
		storeDir:      envStr("KNOWBASE_STORE_DIR", knowbase.DefaultStoreDir),
		logJSON:       envBool("KNOWBASE_LOG_JSON", false),
		minSimilarity: envFloat("KNOWBASE_MIN_SIMILARITY", 0),
		maxWorkers:    envInt64("KNOWBASE_MAX_WORKERS", 0),
		ioLimitBps:    envInt64("KNOWBASE_IO_LIMIT_BPS", 0),

		archiveBackend: strings.ToLower(envStr("KNOWBASE_ARCHIVE_BACKEND", "")),
		archiveBucket:  envStr("KNOWBASE_ARCHIVE_BUCKET", ""),
		archivePrefix:  envStr("KNOWBASE_ARCHIVE_PREFIX", ""),
		archiveKeep:    int(envInt64("KNOWBASE_ARCHIVE_KEEP", 3)),

		minioEndpoint:  envStr("KNOWBASE_MINIO_ENDPOINT", ""),
		minioAccessKey: envStr("KNOWBASE_MINIO_ACCESS_KEY", ""),
		minioSecretKey: envStr("KNOWBASE_MINIO_SECRET_KEY", ""),
		minioSecure:    envBool("KNOWBASE_MINIO_SECURE", true),

		ddbTable: envStr("KNOWBASE_DDB_TABLE", ""),
	}

	switch strings.ToLower(envStr("KNOWBASE_LOG_LEVEL", "info")) {
	case "debug":
		cfg.logLevel = slog.LevelDebug
	case "info":
		cfg.logLevel = slog.LevelInfo
	case "warn":
		cfg.logLevel = slog.LevelWarn
	case "error":
		cfg.logLevel = slog.LevelError
	default:
		return cfg, fmt.Errorf("knowbased: unknown KNOWBASE_LOG_LEVEL %q", os.Getenv("KNOWBASE_LOG_LEVEL"))
	}

	var err error
	cfg.compression, err = snapshot.ParseCompression(envStr("KNOWBASE_COMPRESSION", "zstd"))
	if err != nil {
		return cfg, err
	}

	switch cfg.archiveBackend {
	case "", "s3", "minio":
	default:
		return cfg, fmt.Errorf("knowbased: unknown KNOWBASE_ARCHIVE_BACKEND %q", cfg.archiveBackend)
	}
	if cfg.archiveBackend != "" && cfg.archiveBucket == "" {
		return cfg, fmt.Errorf("knowbased: KNOWBASE_ARCHIVE_BUCKET is required for backend %q", cfg.archiveBackend)
	}
	if cfg.archiveBackend == "minio" && cfg.minioEndpoint == "" {
		return cfg, fmt.Errorf("knowbased: KNOWBASE_MINIO_ENDPOINT is required for the minio backend")
	}

	return cfg, nil
}

func newLogger(cfg config) *knowbase.Logger {
	if cfg.logJSON {
		return knowbase.NewJSONLogger(cfg.logLevel)
	}
	return knowbase.NewTextLogger(cfg.logLevel)
}

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		knowbase.NewTextLogger(slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("knowbased exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, logger *knowbase.Logger) error {
	opts := []knowbase.Option{
		knowbase.WithLogger(logger),
		knowbase.WithStoreDir(cfg.storeDir),
		knowbase.WithCompression(cfg.compression),
		knowbase.WithEncoderConfig(embed.ConfigFromEnv()),
		knowbase.WithMetricsCollector(&knowbase.BasicMetricsCollector{}),
	}
	if cfg.minSimilarity > 0 {
		opts = append(opts, knowbase.WithMinSimilarity(cfg.minSimilarity))
	}
	if cfg.maxWorkers > 0 || cfg.ioLimitBps > 0 {
		opts = append(opts, knowbase.WithResourceLimits(resource.Config{
			MaxWorkers:         cfg.maxWorkers,
			IOLimitBytesPerSec: cfg.ioLimitBps,
		}))
	}

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		opts = append(opts, knowbase.WithArchive(archive))
		logger.Info("snapshot archive enabled",
			"backend", cfg.archiveBackend,
			"bucket", cfg.archiveBucket,
			"keep", cfg.archiveKeep)
	}

	engine := knowbase.New(opts...)
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer engine.Close()

	bridge := ingest.NewBridge(engine, func(o *ingest.BridgeOptions) {
		o.Logger = logger.Logger
	})

	srv := server.New(cfg.addr, engine, bridge, func(o *server.Options) {
		o.Logger = logger
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// buildArchive assembles the snapshot replication target. With DynamoDB
// configured on the s3 backend, the CURRENT pointer is committed with a
// conditional write instead of an S3 object, closing the gap where two
// writers race the pointer.
func buildArchive(ctx context.Context, cfg config) (*snapshot.Archive, error) {
	var store blobstore.Store

	switch cfg.archiveBackend {
	case "":
		return nil, nil

	case "minio":
		client, err := minio.New(cfg.minioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.minioAccessKey, cfg.minioSecretKey, ""),
			Secure: cfg.minioSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("building minio client: %w", err)
		}
		store = kbminio.NewStore(client, cfg.archiveBucket, func(o *kbminio.Options) {
			o.Prefix = cfg.archivePrefix
		})

	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		s3Store := kbs3.NewStore(awss3.NewFromConfig(awsCfg), cfg.archiveBucket, func(o *kbs3.Options) {
			o.Prefix = cfg.archivePrefix
		})
		store = s3Store
		if cfg.ddbTable != "" {
			baseURI := "s3://" + cfg.archiveBucket + "/" + cfg.archivePrefix
			store = kbs3.NewDDBCommitStore(s3Store, dynamodb.NewFromConfig(awsCfg), cfg.ddbTable, baseURI)
		}
	}

	return snapshot.NewArchive(store, func(o *snapshot.ArchiveOptions) {
		o.KeepGenerations = cfg.archiveKeep
	}), nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
