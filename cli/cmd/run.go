package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/instantcocoa/verdict/cli/internal/output"
	"github.com/instantcocoa/verdict/dataset"
	"github.com/instantcocoa/verdict/eval"
	"github.com/instantcocoa/verdict/eval/strategy"
	"github.com/instantcocoa/verdict/pkg/cache"
	"github.com/instantcocoa/verdict/pkg/config"
	"github.com/instantcocoa/verdict/pkg/database"
	"github.com/instantcocoa/verdict/pkg/metrics"
	"github.com/instantcocoa/verdict/pkg/telemetry"
	"github.com/instantcocoa/verdict/provider"
	"github.com/instantcocoa/verdict/report"
)

// runParams collects every per-run parameter. Values can come from a
// YAML config file (--config), with explicitly set flags taking
// precedence.
type runParams struct {
	DataFile string `yaml:"data_file"`
	DataURL  string `yaml:"data_url"`
	DataS3   string `yaml:"data_s3"` // bucket/key
	S3Region string `yaml:"s3_region"`

	Format string `yaml:"format"`

	Endpoints []string `yaml:"endpoints"`
	Model     string   `yaml:"model"`
	APIKey    string   `yaml:"api_key"`

	Scoring          string  `yaml:"scoring"`
	BadcaseThreshold float64 `yaml:"badcase_threshold"`

	Role       string `yaml:"role"`
	SampleSize int    `yaml:"sample_size"`

	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`

	Checkpoint         string `yaml:"checkpoint"`
	CheckpointInterval int    `yaml:"checkpoint_interval"`
	Resume             bool   `yaml:"resume"`

	TestMode  bool   `yaml:"test_mode"`
	Stream    bool   `yaml:"stream"`
	ReportDir string `yaml:"report_dir"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch evaluation",
	Long: `Load a dataset, fetch model outputs for every expanded item, score
them with the selected strategy, and write a report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := collectRunParams(cmd)
		if err != nil {
			return err
		}
		if params.Scoring == "" {
			return fmt.Errorf("no scoring strategy specified (--scoring)")
		}
		if params.DataFile == "" && params.DataURL == "" && params.DataS3 == "" {
			return fmt.Errorf("no dataset source specified (--data-file, --data-url or --data-s3)")
		}

		base, err := config.Load("verdict")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if params.APIKey == "" {
			params.APIKey = base.APIKey
		}
		if params.Timeout == 0 {
			params.Timeout = base.RequestTimeout
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tel, err := telemetry.Setup(ctx, telemetry.Config{
			ServiceName:     "verdict",
			ServiceVersion:  base.Version,
			Environment:     base.Environment,
			OTLPEndpoint:    base.OTLPEndpoint,
			TracingEnabled:  base.TracingEnabled,
			TracingSampling: base.TracingSampling,
			LogLevel:        base.LogLevel,
			LogFormat:       base.LogFormat,
		})
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tel.Shutdown(shutdownCtx)
		}()
		logger := tel.Logger()

		m := metrics.NewMetrics(nil)
		go serveMetrics(base.HTTPPort, logger)

		// Dataset
		src, err := dataset.NewSource(sourceConfig(params))
		if err != nil {
			return err
		}
		fmtName := dataset.Format(params.Format)
		if params.Format == "" {
			fmtName = dataset.DetectFormat(params.DataFile + params.DataURL + params.DataS3)
		}
		records, err := dataset.Load(ctx, src, fmtName)
		if err != nil {
			return fmt.Errorf("failed to load dataset: %w", err)
		}
		items := dataset.ExpandAll(records, params.Role, params.SampleSize)
		output.Info("Loaded %d records, expanded to %d items", len(records), len(items))

		// Scoring strategy
		judgeCaller := provider.NewOpenAICaller(base.JudgeAPIKey, provider.DefaultRetryPolicy, logger)
		registry := eval.NewRegistry()
		strategy.RegisterBuiltins(registry, judgeCaller, strategy.JudgeConfig{
			Endpoint: base.JudgeEndpoint,
			APIKey:   base.JudgeAPIKey,
			Model:    base.JudgeModel,
		})
		strat, err := registry.Lookup(params.Scoring)
		if err != nil {
			return err
		}

		// Model caller
		var caller eval.Caller
		if params.Stream {
			caller = provider.NewStreamCaller(params.APIKey)
		} else {
			caller = provider.NewOpenAICaller(params.APIKey, provider.DefaultRetryPolicy, logger)
		}

		var checkpoint *eval.Checkpoint
		if params.Checkpoint != "" {
			checkpoint = eval.NewCheckpoint(params.Checkpoint, logger)
		}

		runID := uuid.NewString()
		progress := progressFunc(ctx, base, runID, logger)

		orch := eval.NewOrchestrator(caller, strat, eval.Options{
			Endpoints:          params.Endpoints,
			Model:              params.Model,
			Temperature:        float32(params.Temperature),
			TopP:               float32(params.TopP),
			MaxTokens:          params.MaxTokens,
			Timeout:            params.Timeout,
			Concurrency:        params.Concurrency,
			BadcaseThreshold:   params.BadcaseThreshold,
			Checkpoint:         checkpoint,
			CheckpointInterval: params.CheckpointInterval,
			Resume:             params.Resume,
			TestMode:           params.TestMode,
			Progress:           progress,
			Logger:             logger,
			Metrics:            m,
		})

		start := time.Now()
		results, badcases, err := orch.Run(ctx, items)
		if err != nil {
			m.RunCompleted(params.Scoring, "error", time.Since(start))
			return fmt.Errorf("evaluation failed: %w", err)
		}
		m.RunCompleted(params.Scoring, "success", time.Since(start))

		// Report phase
		if progress != nil {
			progress(eval.PhaseReport, 0, 1, eval.Percent(eval.PhaseReport, 0, 1))
		}
		rep := report.Build(runConfigMap(params), results, badcases)
		rep.ID = runID
		rep.Dataset = datasetName(params)
		rep.Model = params.Model
		rep.Strategy = params.Scoring

		path, err := rep.WriteFile(params.ReportDir)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if err := saveReport(ctx, base, rep, m, logger); err != nil {
			output.Error("Failed to persist report: %v", err)
		}
		if progress != nil {
			progress(eval.PhaseReport, 1, 1, eval.Percent(eval.PhaseReport, 1, 1))
		}

		output.Success("Evaluated %d items in %s", len(results), time.Since(start).Round(time.Millisecond))
		output.Info("Accuracy: %.4f  Average score: %.4f  Badcases: %d",
			rep.Summary.Accuracy, rep.Summary.AverageScore, rep.Summary.BadcaseCount)
		output.Info("Report written to %s", path)

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(rep.Summary)
		}
		return nil
	},
}

// collectRunParams merges the optional YAML config file with flag
// values. Flags that were set explicitly win over the file.
func collectRunParams(cmd *cobra.Command) (*runParams, error) {
	params := &runParams{}

	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		data, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, params); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	flags := cmd.Flags()
	setStr := func(name string, dst *string) {
		if flags.Changed(name) || *dst == "" {
			*dst, _ = flags.GetString(name)
		}
	}
	setStr("data-file", &params.DataFile)
	setStr("data-url", &params.DataURL)
	setStr("data-s3", &params.DataS3)
	setStr("s3-region", &params.S3Region)
	setStr("format", &params.Format)
	setStr("model", &params.Model)
	setStr("api-key", &params.APIKey)
	setStr("scoring", &params.Scoring)
	setStr("checkpoint", &params.Checkpoint)

	if flags.Changed("endpoints") || len(params.Endpoints) == 0 {
		params.Endpoints, _ = flags.GetStringSlice("endpoints")
	}
	if flags.Changed("badcase-threshold") || params.BadcaseThreshold == 0 {
		params.BadcaseThreshold, _ = flags.GetFloat64("badcase-threshold")
	}
	if flags.Changed("role") || params.Role == "" {
		params.Role, _ = flags.GetString("role")
	}
	if flags.Changed("sample-size") || params.SampleSize == 0 {
		params.SampleSize, _ = flags.GetInt("sample-size")
	}
	if flags.Changed("concurrency") || params.Concurrency == 0 {
		params.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("timeout") || params.Timeout == 0 {
		params.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("max-tokens") || params.MaxTokens == 0 {
		params.MaxTokens, _ = flags.GetInt("max-tokens")
	}
	if flags.Changed("temperature") || params.Temperature == 0 {
		params.Temperature, _ = flags.GetFloat64("temperature")
	}
	if flags.Changed("top-p") || params.TopP == 0 {
		params.TopP, _ = flags.GetFloat64("top-p")
	}
	if flags.Changed("checkpoint-interval") || params.CheckpointInterval == 0 {
		params.CheckpointInterval, _ = flags.GetInt("checkpoint-interval")
	}
	if flags.Changed("report-dir") || params.ReportDir == "" {
		params.ReportDir, _ = flags.GetString("report-dir")
	}
	if flags.Changed("resume") {
		params.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("test-mode") {
		params.TestMode, _ = flags.GetBool("test-mode")
	}
	if flags.Changed("stream") {
		params.Stream, _ = flags.GetBool("stream")
	}

	return params, nil
}

func sourceConfig(params *runParams) dataset.SourceConfig {
	sc := dataset.SourceConfig{
		Path: params.DataFile,
		URL:  params.DataURL,
	}
	if params.DataS3 != "" {
		bucket, key, _ := strings.Cut(params.DataS3, "/")
		sc.S3 = &dataset.S3Config{
			Bucket:          bucket,
			Key:             key,
			Region:          params.S3Region,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:        os.Getenv("AWS_ENDPOINT_URL"),
		}
	}
	return sc
}

func datasetName(params *runParams) string {
	switch {
	case params.DataFile != "":
		return params.DataFile
	case params.DataURL != "":
		return params.DataURL
	default:
		return params.DataS3
	}
}

// runConfigMap builds the config block embedded in the report. Redaction
// happens in report.Build.
func runConfigMap(params *runParams) map[string]any {
	return map[string]any{
		"dataset":           datasetName(params),
		"format":            params.Format,
		"endpoints":         params.Endpoints,
		"model":             params.Model,
		"api_key":           params.APIKey,
		"scoring":           params.Scoring,
		"badcase_threshold": params.BadcaseThreshold,
		"role":              params.Role,
		"sample_size":       params.SampleSize,
		"concurrency":       params.Concurrency,
		"max_tokens":        params.MaxTokens,
		"temperature":       params.Temperature,
		"top_p":             params.TopP,
		"checkpoint_path":   params.Checkpoint,
		"resume":            params.Resume,
		"test_mode":         params.TestMode,
		"report_dir":        params.ReportDir,
	}
}

// progressFunc wires the Redis progress publisher when Redis is
// reachable. A run never fails because progress cannot be published.
func progressFunc(ctx context.Context, base *config.Base, runID string, logger *slog.Logger) eval.ProgressFunc {
	cacheCfg, err := redisConfig(base.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, progress publishing disabled", "error", err)
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	client, err := cache.Connect(connectCtx, cacheCfg)
	if err != nil {
		logger.Warn("redis unavailable, progress publishing disabled", "error", err)
		return nil
	}

	pub := report.NewRedisProgressPublisher(client, runID, logger)
	logger.Info("publishing progress to redis", "run_id", runID)
	return pub.Func()
}

func redisConfig(rawURL string) (*cache.Config, error) {
	cfg := cache.DefaultConfig()
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Host != "" {
		cfg.Addr = u.Host
	}
	if pw, ok := u.User.Password(); ok {
		cfg.Password = pw
	}
	return cfg, nil
}

func saveReport(ctx context.Context, base *config.Base, rep *report.Report, m *metrics.Metrics, logger *slog.Logger) error {
	if !base.UsePostgresStorage() {
		return nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Host = base.DBHost
	dbCfg.Port = base.DBPort
	dbCfg.User = base.DBUser
	dbCfg.Password = base.DBPassword
	dbCfg.Database = base.DBName
	dbCfg.SSLMode = base.DBSSLMode

	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		m.ReportStoreOp("save", "error")
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := report.Migrate(ctx, db); err != nil {
		m.ReportStoreOp("save", "error")
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := report.NewPostgresStore(db.DB)
	if err := store.Save(ctx, rep); err != nil {
		m.ReportStoreOp("save", "error")
		return err
	}
	m.ReportStoreOp("save", "success")
	logger.Info("report saved", "id", rep.ID)
	return nil
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}

func init() {
	runCmd.Flags().String("config", "", "YAML file with run parameters (flags override)")

	runCmd.Flags().String("data-file", "", "Dataset file path")
	runCmd.Flags().String("data-url", "", "Dataset URL")
	runCmd.Flags().String("data-s3", "", "Dataset S3 location (bucket/key)")
	runCmd.Flags().String("s3-region", "", "S3 region")
	runCmd.Flags().String("format", "", "Dataset format (jsonl, json, parquet; default inferred)")

	runCmd.Flags().StringSlice("endpoints", nil, "Model API endpoints (round-robin)")
	runCmd.Flags().String("model", "", "Model name")
	runCmd.Flags().String("api-key", "", "Model API key (default VERDICT_API_KEY)")

	runCmd.Flags().String("scoring", "", "Scoring strategy name")
	runCmd.Flags().Float64("badcase-threshold", 0.6, "Score below which an item is a badcase")

	runCmd.Flags().String("role", "gpt", "Conversation role whose turns are evaluated")
	runCmd.Flags().Int("sample-size", 0, "Evaluate at most this many records (0 = all)")

	runCmd.Flags().Int("concurrency", 4, "Worker pool size")
	runCmd.Flags().Duration("timeout", 0, "Per-request timeout (default VERDICT_REQUEST_TIMEOUT)")
	runCmd.Flags().Int("max-tokens", 2048, "Max completion tokens")
	runCmd.Flags().Float64("temperature", 0, "Sampling temperature")
	runCmd.Flags().Float64("top-p", 0, "Nucleus sampling threshold")

	runCmd.Flags().String("checkpoint", "", "Checkpoint file path")
	runCmd.Flags().Int("checkpoint-interval", 32, "Flush checkpoint every N completed items")
	runCmd.Flags().Bool("resume", false, "Skip items already present in the checkpoint")

	runCmd.Flags().Bool("test-mode", false, "Cap the run at a small fixed number of items")
	runCmd.Flags().Bool("stream", false, "Use the streaming SSE client")
	runCmd.Flags().String("report-dir", "reports", "Directory for report files")
}
