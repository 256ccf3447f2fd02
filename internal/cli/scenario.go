package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/harness"
)

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <file|dir>...",
		Short: "Run YAML scenarios against a scratch cache",
		Long: `Run scenario files. A directory argument runs every *.yaml file in it.

Each scenario declares its page types in CUE, runs its steps against a
fresh temporary database and checks its expectations and assertions.
The configured database is not touched.

Example:
  pagecache scenario ./scenarios
  pagecache scenario --format json email_invalidation.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			scenarios, err := loadScenarios(args)
			if err != nil {
				_ = f.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to load scenarios", err)
			}

			type outcome struct {
				Name   string   `json:"name"`
				Pass   bool     `json:"pass"`
				Steps  int      `json:"steps"`
				Errors []string `json:"errors,omitempty"`
			}
			outcomes := make([]outcome, 0, len(scenarios))
			failed := 0
			for _, sc := range scenarios {
				f.VerboseLog("running %s", sc.Name)
				result, err := harness.RunContext(cmd.Context(), sc)
				if err != nil {
					_ = f.Error(ErrCodeGeneric, err.Error(), map[string]string{"scenario": sc.Name})
					return WrapExitError(ExitCommandError, "failed to run scenario", err)
				}
				if !result.Pass {
					failed++
				}
				outcomes = append(outcomes, outcome{
					Name:   sc.Name,
					Pass:   result.Pass,
					Steps:  len(sc.Steps),
					Errors: result.Errors,
				})
			}

			if f.Format == "json" {
				if err := f.Success(outcomes); err != nil {
					return err
				}
			} else {
				var b strings.Builder
				for _, o := range outcomes {
					status := "PASS"
					if !o.Pass {
						status = "FAIL"
					}
					fmt.Fprintf(&b, "%s %s (%d steps)\n", status, o.Name, o.Steps)
					for _, e := range o.Errors {
						fmt.Fprintf(&b, "    %s\n", e)
					}
				}
				fmt.Fprintf(&b, "%d passed, %d failed", len(outcomes)-failed, failed)
				if err := f.Success(b.String()); err != nil {
					return err
				}
			}

			if failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
			}
			return nil
		},
	}
}

func loadScenarios(paths []string) ([]*harness.Scenario, error) {
	var scenarios []*harness.Scenario
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			dir, err := harness.LoadDir(path)
			if err != nil {
				return nil, err
			}
			scenarios = append(scenarios, dir...)
			continue
		}
		sc, err := harness.LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
