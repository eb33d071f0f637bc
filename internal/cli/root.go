// Package cli implements the securevector command-line tool: local scans,
// tool-permission checks, rule authoring helpers and key generation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/config"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/store"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

// ErrThreatDetected is returned by commands that found a blocking threat or a
// failing check, so the binary can exit non-zero without printing usage.
var ErrThreatDetected = errors.New("threat detected")

// app is the state shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	verbose  bool
	rulesDir string
	dsn      string
	jsonOut  bool

	repo      store.Repository
	closeRepo func()

	// openRepo is swapped out in tests.
	openRepo func(ctx context.Context, dsn string) (store.Repository, func(), error)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{openRepo: openRepository})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "securevector",
		Short: "Local-first threat detection for LLM traffic",
		Long: `securevector scans prompts and model output against pattern rules and
decides whether tool calls requested by a model may run.

All checks run locally. Set POSTGRES_DSN to share tool overrides, custom
tools and custom rules with a running securevector-server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.rulesDir, "rules-dir", os.Getenv("SV_RULES_DIR"), "Directory of additional rule files")
	root.PersistentFlags().StringVar(&a.dsn, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN for shared tool and rule state")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print JSON instead of tables")

	root.AddCommand(
		newScanCmd(a),
		newToolsCmd(a),
		newRulesCmd(a),
		newSelfTestCmd(a),
		newKeysCmd(a),
	)
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.closeRepo != nil {
		a.closeRepo()
		a.closeRepo = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// repository opens the shared store on first use.
func (a *app) repository(ctx context.Context) (store.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	repo, closeFn, err := a.openRepo(ctx, a.dsn)
	if err != nil {
		return nil, err
	}
	a.repo, a.closeRepo = repo, closeFn
	return repo, nil
}

func openRepository(ctx context.Context, dsn string) (store.Repository, func(), error) {
	if dsn == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	db, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	s := store.NewStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, func() { _ = db.Close() }, nil
}

// ruleStore returns the community and file rules layered with stored custom
// rules and overrides.
func (a *app) ruleStore(ctx context.Context) (*rules.Store, error) {
	repo, err := a.repository(ctx)
	if err != nil {
		return nil, err
	}
	base := rules.NewLoader(a.logger).LoadRules(a.rulesDir)
	return rules.NewStore(base, repo, a.logger), nil
}

// scanner builds an analyzer loaded with the effective rule set.
func (a *app) scanner(ctx context.Context, reviewer engine.Reviewer) (*engine.Scanner, error) {
	rs, err := a.ruleStore(ctx)
	if err != nil {
		return nil, err
	}
	effective, err := rs.Effective(ctx)
	if err != nil {
		return nil, err
	}
	analyzer := engine.NewAnalyzer(engine.AnalyzerConfig{
		CacheTTL:   -1,
		Thresholds: a.cfg.Thresholds,
	}, a.logger, nil)
	analyzer.SetRules(effective)
	policy := engine.DefaultMergePolicy()
	return engine.NewScanner(analyzer, reviewer, policy, a.cfg.ScanTimeout, a.logger, nil), nil
}

func (a *app) guard(ctx context.Context) (*tools.Guard, error) {
	repo, err := a.repository(ctx)
	if err != nil {
		return nil, err
	}
	essential, err := tools.LoadEssential()
	if err != nil {
		return nil, err
	}
	return tools.NewGuard(tools.GuardConfig{
		Essential: essential,
		Store:     repo,
		Source:    "cli",
		Logger:    a.logger,
	}), nil
}

// readInput returns args[0], or stdin when the argument is "-" or absent and
// stdin is not a terminal.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	in := cmd.InOrStdin()
	if len(args) == 0 && isTerminal(in) {
		return "", errors.New("no input: pass text as an argument or pipe it on stdin")
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(b), nil
}
