package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the fxbroker CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fxbroker version %s\n", version)
		fmt.Println("A leveraged FX broker simulation engine")
		fmt.Println("https://github.com/rustyeddy/fxbroker")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
