package cli

import (
	"strconv"

	"github.com/absmach/robustfl/pkg/sdk"
	"github.com/spf13/cobra"
)

var flsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	flsdk = s
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Session status",
		Long:  `Show the coordinator state, iteration and the workers the current round waits on.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			st, err := flsdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}
}

func NewModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "Global model",
		Long:  `Show the current global parameters.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			m, err := flsdk.Model()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}
}

func NewCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints [list|show|model]",
		Short: "Saved rounds",
		Long:  `List saved rounds, show a round record or the parameters saved after it.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List rounds",
		Long:  `List iterations with a saved round record.`,
		Run: func(cmd *cobra.Command, args []string) {
			page, err := flsdk.ListRounds()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <iteration>",
		Short: "Show round",
		Long:  `Show the record saved for an iteration.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			iteration, err := strconv.Atoi(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			r, err := flsdk.Round(iteration)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	modelCmd := &cobra.Command{
		Use:   "model <iteration>",
		Short: "Show saved model",
		Long:  `Show the global parameters saved after an iteration.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			iteration, err := strconv.Atoi(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			c, err := flsdk.Checkpoint(iteration)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, c)
		},
	}

	cmd.AddCommand(listCmd, showCmd, modelCmd)

	return cmd
}
