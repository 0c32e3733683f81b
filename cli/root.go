// Package cli wires the orchestrator into its command-line surface.
package cli

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	configx "github.com/acpflow/email-orchestrator/pkg/config"
	acpx "github.com/acpflow/email-orchestrator/workflow/acp"
	contractx "github.com/acpflow/email-orchestrator/workflow/contract"
	enginex "github.com/acpflow/email-orchestrator/workflow/engine"
	reviewx "github.com/acpflow/email-orchestrator/workflow/review"
	storex "github.com/acpflow/email-orchestrator/workflow/store"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "email-orchestrator",
	Short:         "Multi-agent email processing over the ACP protocol",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if envFile == "" {
			return nil
		}
		return configx.LoadEnvFile(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file exported into the environment before loading config")
	rootCmd.AddCommand(singleCmd, batchCmd, probeCmd)
}

// Execute runs the CLI. The process exits non-zero only on an unhandled
// top-level error; per-stage fallbacks inside a workflow never abort it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadWorkflowConfig() contractx.WorkflowConfig {
	cfg := configx.MustNew[contractx.WorkflowConfig]("WORKFLOW")
	cfg.Normalize()
	return *cfg
}

func newOrchestrator(cfg contractx.WorkflowConfig, reviewer contractx.Reviewer) (*enginex.Orchestrator, error) {
	client, err := acpx.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return enginex.New(client, reviewer, cfg)
}

// openStore returns the Postgres archive when STORE_DSN is configured, the
// no-op archive otherwise.
func openStore(cmd *cobra.Command) storex.Store {
	storeCfg := configx.MustNew[storex.Config]("STORE")
	if storeCfg.DSN == "" {
		return storex.NoopStore{}
	}

	pg, err := storex.NewPostgres(*storeCfg)
	if err != nil {
		log.Warn().Err(err).Msg("run archive unavailable, continuing without it")
		return storex.NoopStore{}
	}
	if err := pg.Init(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("run archive init failed, continuing without it")
		return storex.NoopStore{}
	}
	return pg
}

func reviewerFor(interactive bool) contractx.Reviewer {
	if interactive {
		return reviewx.NewInteractive(os.Stdin, os.Stdout)
	}
	return reviewx.NewAutoApprover(false)
}
