package cmd

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Long:  `Display the version, commit hash, and build date of the restcore CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		formatter.PrintKeyValue("version", Version)
		formatter.PrintKeyValue("commit", Commit)
		formatter.PrintKeyValue("build_date", BuildDate)
	},
}
