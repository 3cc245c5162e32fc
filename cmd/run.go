package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/yanismiraoui/ai-agent-FarmBrief/farmbrief"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the FarmBrief bot and status API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := farmbrief.New(cfg)
		if err != nil {
			log.Fatalf("error creating farmbrief: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running farmbrief: %s", err.Error())
		}
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(runCmd)
}
