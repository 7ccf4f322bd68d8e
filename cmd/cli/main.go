package main

import (
	"log"

	"github.com/absmach/robustfl/cli"
	"github.com/absmach/robustfl/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	defCoordinatorURL  = "http://localhost:7070"
	defTLSVerification = false
	coordinatorURLFlag = "coordinator-url"
)

func main() {
	var coordinatorURL string

	rootCmd := &cobra.Command{
		Use:   "robustfl",
		Short: "RobustFL CLI",
		Long:  `RobustFL CLI runs local federated training sessions and inspects a running coordinator.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: defTLSVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}
	rootCmd.PersistentFlags().StringVar(&coordinatorURL, coordinatorURLFlag, defCoordinatorURL, "coordinator HTTP API URL")

	rootCmd.AddCommand(
		cli.NewStatusCmd(),
		cli.NewModelCmd(),
		cli.NewCheckpointsCmd(),
		cli.NewSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
