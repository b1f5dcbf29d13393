// JoyTrunk — local management gateway for AI employees.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "joytrunk",
	Short: "JoyTrunk — local management gateway for AI employees.",
	Long: `JoyTrunk runs a local HTTP gateway that manages a team of AI employees:
per-employee personas, memory, and skills on disk, layered configuration with
owner-level custom LLM credentials, and chat dispatch to an OpenAI-compatible
completion endpoint.`,
	RunE:          runGateway, // Default to gateway mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
