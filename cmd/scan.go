package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pagevet/pagevet/internal/aggregate"
	"github.com/pagevet/pagevet/internal/audit"
)

// newScanCmd creates the 'scan' subcommand for one-shot scans.
func newScanCmd() *cobra.Command {
	var (
		scanURL   string
		rulesPath string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Runs a single scan and prints the summary",
		Long: `Scans one URL against the rules in a YAML or JSON file, waits for
completion and prints the aggregated summary as JSON. A scan interrupted
by Ctrl-C leaves a checkpoint that the API's resume endpoint can pick up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScanCommand(cmd.Context(), scanURL, rulesPath)
		},
	}
	cmd.Flags().StringVar(&scanURL, "url", "", "URL to audit (required)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to a YAML/JSON rules file (required)")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

func runScanCommand(ctx context.Context, scanURL, rulesPath string) error {
	rules, err := loadRulesFile(rulesPath)
	if err != nil {
		return err
	}

	comps, err := buildComponents(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		comps.Close(closeCtx)
	}()

	sess, err := comps.sched.NewSession(ctx, scanURL, rules)
	if err != nil {
		return err
	}
	comps.logger.Info("scan started",
		zap.String("scan_id", sess.ScanID),
		zap.String("url", sess.URL),
		zap.Int("rules", len(rules)),
	)

	results, err := comps.sched.Run(ctx, sess)
	if err != nil {
		return fmt.Errorf("run scan %s: %w", sess.ScanID, err)
	}

	out, err := json.MarshalIndent(aggregate.Build(results), "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

type rulesFile struct {
	Rules []audit.Rule `yaml:"rules" json:"rules"`
}

// loadRulesFile reads rules from YAML (or JSON, which YAML subsumes). Both a
// top-level list and a {rules: [...]} document are accepted.
func loadRulesFile(path string) ([]audit.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var wrapped rulesFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Rules) > 0 {
		return wrapped.Rules, nil
	}
	var bare []audit.Rule
	if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(bare) == 0 {
		return nil, fmt.Errorf("%w: rules file contains no rules", audit.ErrInvalidInput)
	}
	return bare, nil
}
