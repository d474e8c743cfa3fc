package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lifeproof/docsum/internal/cli"
	"github.com/lifeproof/docsum/internal/config"
	"github.com/lifeproof/docsum/internal/document"
)

var (
	statusFilter string
	riskFilter   string
	limitFlag    int
)

var auditCmd = &cobra.Command{
	Use:   "audit [DOCUMENT_ID]",
	Short: "Show audit log rows for a document, a status or a risk level",
	Long: `audit queries the tracking table. With a document id every attempt for that
document is listed oldest first. --status and --risk query the secondary
indexes newest first.

Examples:
  docsum audit uploads/doc1.txt
  docsum audit --status FAILED --limit 20
  docsum audit --risk HIGH`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Resources.TrackingTable == "" {
			log.Fatal().Str("envVar", config.EnvTrackingTable).Msg("Tracking table is required")
		}
		audit := auditLog(cfg)

		var (
			rows []document.TrackingEntry
			err  error
		)
		switch {
		case len(args) == 1:
			rows, err = audit.ByDocument(cmd.Context(), args[0])
		case statusFilter != "":
			rows, err = audit.ByStatus(cmd.Context(), strings.ToUpper(statusFilter), limitFlag)
		case riskFilter != "":
			rows, err = audit.ByRiskLevel(cmd.Context(), document.RiskLevel(strings.ToUpper(riskFilter)), limitFlag)
		default:
			log.Fatal().Msg("Give a document id, --status or --risk")
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Audit query failed")
		}

		if jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rows); err != nil {
				log.Fatal().Err(err).Msg("Failed to encode audit rows")
			}
			return
		}
		cli.PrintAuditRows(os.Stdout, rows)
	},
}

func init() {
	auditCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (COMPLETED, FAILED)")
	auditCmd.Flags().StringVar(&riskFilter, "risk", "", "Filter by risk level (HIGH, MEDIUM, LOW, UNKNOWN)")
	auditCmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum rows for --status and --risk (0 = all)")
	auditCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print rows as JSON")
}
