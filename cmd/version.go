package cmd

import (
	"fmt"
	"runtime"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("facegate %s\n", Version)
		fmt.Printf("  Commit: %s\n", CommitSHA)
		fmt.Printf("  Built:  %s\n", BuildDate)
		fmt.Printf("  Go:     %s\n", runtime.Version())

		m := config.Load().Matching
		fmt.Printf("  Matching: %s index, threshold %.2f, normalize %t, %d dims, %d steps\n",
			m.Index, m.Threshold, m.Normalize, m.DescriptorDim, m.EnrollmentSteps)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
