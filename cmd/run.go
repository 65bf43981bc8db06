package cmd

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/observability"
)

func newRunCmd() *cobra.Command {
	var asJSON bool

	runCmd := &cobra.Command{
		Use:   "run [instruction...]",
		Short: "Execute one natural language instruction and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.TrimSpace(strings.Join(args, " "))
			if instruction == "" {
				return fmt.Errorf("instruction must not be empty")
			}

			driver, cleanup, err := buildDriver(appConfig, observability.GetLogger())
			if err != nil {
				return err
			}
			defer cleanup()

			result := driver.Execute(cmd.Context(), instruction)

			if asJSON {
				out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				printResult(cmd, result)
			}

			if result.Status == schemas.StatusError {
				return fmt.Errorf("run failed: %s", result.Message)
			}
			return nil
		},
	}

	runCmd.Flags().BoolVar(&asJSON, "json", false, "print the full run result as JSON")
	return runCmd
}

func printResult(cmd *cobra.Command, result schemas.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s\n", result.RunID, result.Status)
	for i, record := range result.History {
		line := fmt.Sprintf("  %2d. [%s] %s %s", i+1, record.Outcome, record.Step.Action, record.Step.Target)
		if record.Extracted != "" {
			line += fmt.Sprintf(" => %q", record.Extracted)
		}
		if record.Error != "" {
			line += fmt.Sprintf(" (%s)", record.Error)
		}
		fmt.Fprintln(out, line)
	}
	if result.Message != "" {
		fmt.Fprintln(out, result.Message)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
