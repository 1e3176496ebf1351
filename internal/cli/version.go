package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agusx1211/agentmail/internal/buildinfo"
	"github.com/agusx1211/agentmail/internal/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		bi := buildinfo.Current()
		out := cmd.OutOrStdout()
		printHeader(out, "agentmail "+bi.Version)
		printField(out, "Commit", bi.ShortCommit())
		printField(out, "Built", bi.BuildDate)
		printField(out, "Go", runtime.Version())
		printField(out, "Providers", fmt.Sprint(engine.Providers()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
