package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeployCmd создаёт группу команд для deployment-скриптов.
func NewDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run deployment scripts on machines",
	}

	cmd.AddCommand(newDeployRunCmd(clientFn, outputFn))

	return cmd
}

func newDeployRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req DeployRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Queue a deployment script; the outcome arrives as a notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.Deploy(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Deployment queued for machine %s", result.MachineID))
			out.Print(
				[]string{"MACHINE", "STATUS"},
				[][]string{{result.MachineID, result.Status}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.User, "user", "", "User the machine belongs to (required)")
	cmd.Flags().StringVar(&req.BackendID, "backend", "", "Backend ID")
	cmd.Flags().StringVar(&req.MachineID, "machine", "", "Machine ID")
	cmd.Flags().StringVar(&req.Host, "host", "", "Machine address (required)")
	cmd.Flags().StringVar(&req.Command, "command", "", "Script to run (required)")
	cmd.Flags().StringVar(&req.KeyID, "key", "", "SSH key ID")
	cmd.Flags().StringVar(&req.Username, "username", "", "SSH user (default root)")
	cmd.Flags().IntVar(&req.Port, "port", 0, "SSH port (default 22)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("command")

	return cmd
}
