package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/instantcocoa/verdict/cli/internal/output"
	"github.com/instantcocoa/verdict/pkg/config"
	"github.com/instantcocoa/verdict/pkg/database"
	"github.com/instantcocoa/verdict/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report operations",
	Long:  "Commands for inspecting saved evaluation reports.",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Summarize a report file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}
		var rep report.Report
		if err := json.Unmarshal(data, &rep); err != nil {
			return fmt.Errorf("failed to parse report: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(rep.Summary)
		}

		table := output.Table{
			Headers: []string{"FIELD", "VALUE"},
			Rows: [][]string{
				{"Timestamp", rep.Timestamp},
				{"Dataset", rep.Dataset},
				{"Model", rep.Model},
				{"Strategy", rep.Strategy},
				{"Total", fmt.Sprintf("%d", rep.Summary.TotalCount)},
				{"Correct", fmt.Sprintf("%d", rep.Summary.CorrectCount)},
				{"Accuracy", fmt.Sprintf("%.4f", rep.Summary.Accuracy)},
				{"Average score", fmt.Sprintf("%.4f", rep.Summary.AverageScore)},
				{"Average latency", fmt.Sprintf("%.3fs", rep.Summary.AverageInferenceTime)},
				{"Badcases", fmt.Sprintf("%d", rep.Summary.BadcaseCount)},
			},
		}
		for k, v := range rep.Summary.DetailMeans {
			table.Rows = append(table.Rows, []string{"mean " + k, fmt.Sprintf("%.4f", v)})
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openReportStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		reports, total, err := store.List(cmd.Context(), limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list reports: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(reports)
		}

		output.Info("Found %d reports (showing %d)", total, len(reports))
		table := output.Table{
			Headers: []string{"ID", "DATASET", "MODEL", "STRATEGY", "ACCURACY", "BADCASES", "CREATED"},
			Rows:    make([][]string, len(reports)),
		}
		for i, r := range reports {
			id := r.ID
			if len(id) > 8 {
				id = id[:8]
			}
			table.Rows[i] = []string{
				id,
				r.Dataset,
				r.Model,
				r.Strategy,
				fmt.Sprintf("%.4f", r.Summary.Accuracy),
				fmt.Sprintf("%d", r.Summary.BadcaseCount),
				r.CreatedAt.Format("2006-01-02 15:04"),
			}
		}

		w := output.NewWriter("table")
		return w.Print(table)
	},
}

var reportGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openReportStore(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		rep, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get report: %w", err)
		}

		w := output.NewWriter(cfg.Format)
		return w.Print(rep)
	},
}

// openReportStore connects to the configured PostgreSQL report store.
// The memory backend holds nothing between processes, so list/get
// require postgres.
func openReportStore(ctx context.Context) (report.Store, func(), error) {
	base, err := config.Load("verdict")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !base.UsePostgresStorage() {
		return nil, nil, fmt.Errorf("report storage backend is %q; set VERDICT_STORAGE_BACKEND=postgres to list stored reports", base.StorageBackend)
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Host = base.DBHost
	dbCfg.Port = base.DBPort
	dbCfg.User = base.DBUser
	dbCfg.Password = base.DBPassword
	dbCfg.Database = base.DBName
	dbCfg.SSLMode = base.DBSSLMode

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := database.Connect(connectCtx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return report.NewPostgresStore(db.DB), func() { db.Close() }, nil
}

func init() {
	reportListCmd.Flags().Int("limit", 20, "Max reports to show")
	reportListCmd.Flags().Int("offset", 0, "Offset into the result set")

	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportGetCmd)
}
