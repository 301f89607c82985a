package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewBackendCmd создаёт группу команд для работы с backend'ами.
func NewBackendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Manage backends and inventory",
	}

	cmd.AddCommand(
		newBackendListCmd(clientFn, outputFn),
		newBackendEnabledCmd(clientFn, outputFn, true),
		newBackendEnabledCmd(clientFn, outputFn, false),
		newBackendMachinesCmd(clientFn, outputFn),
		newBackendNamedCmd(clientFn, outputFn, "images", "List backend images"),
		newBackendNamedCmd(clientFn, outputFn, "sizes", "List backend sizes"),
		newBackendNamedCmd(clientFn, outputFn, "locations", "List backend locations"),
	)

	return cmd
}

func newBackendListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			backends, err := client.ListBackends(user)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TITLE", "PROVIDER", "REGION", "ENABLED"}
			rows := make([][]string, len(backends))
			for i, b := range backends {
				rows[i] = []string{b.ID, b.Title, b.Provider, b.Region, strconv.FormatBool(b.Enabled)}
			}

			out.Print(headers, rows, backends)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Backend owner (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newBackendEnabledCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	var user string

	use, short := "disable ID", "Disable a backend"
	if enable {
		use, short = "enable ID", "Enable a backend"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			backend, err := client.SetBackendEnabled(user, args[0], enable)
			if err != nil {
				return err
			}

			state := "disabled"
			if backend.Enabled {
				state = "enabled"
			}
			out.Success(fmt.Sprintf("Backend %s %s", backend.ID, state))
			out.Print(
				[]string{"ID", "TITLE", "PROVIDER", "ENABLED"},
				[][]string{{backend.ID, backend.Title, backend.Provider, strconv.FormatBool(backend.Enabled)}},
				backend,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Backend owner (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newBackendMachinesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "machines ID",
		Short: "List backend machines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			machines, err := client.ListMachines(user, args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATE", "PUBLIC IPS"}
			rows := make([][]string, len(machines))
			for i, m := range machines {
				rows[i] = []string{m.ID, m.Name, m.State, strings.Join(m.PublicIPs, ",")}
			}

			out.Print(headers, rows, machines)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Backend owner (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newBackendNamedCmd(clientFn func() *Client, outputFn func() *Output, kind, short string) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   kind + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			items, err := client.ListNamed(user, args[0], kind)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME"}
			rows := make([][]string, len(items))
			for i, item := range items {
				rows[i] = []string{item.ID, item.Name}
			}

			out.Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Backend owner (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}
