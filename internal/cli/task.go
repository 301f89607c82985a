package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для работы с задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks and cached results",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskTriggerCmd(clientFn, outputFn),
		newTaskResultCmd(clientFn, outputFn),
		newTaskClearCmd(clientFn, outputFn),
	)

	return cmd
}

// callFlags — общие флаги идентичности вызова.
type callFlags struct {
	user   string
	args   []string
	kwargs map[string]string
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "User the call belongs to (required)")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil, "Positional argument (repeatable)")
	cmd.Flags().StringToStringVar(&f.kwargs, "kwarg", nil, "Keyword argument key=value (repeatable)")
	cmd.MarkFlagRequired("user")
}

func (f *callFlags) toRequest() CallRequest {
	return CallRequest{User: f.user, Args: f.args, Kwargs: f.kwargs}
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "FRESH (S)", "EXPIRES (S)", "POLLING"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{
					t.Name,
					strconv.Itoa(t.ResultFreshS),
					strconv.Itoa(t.ResultExpires),
					strconv.FormatBool(t.Polling),
				}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}
}

func newTaskTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags callFlags
	var delay int

	cmd := &cobra.Command{
		Use:   "trigger NAME",
		Short: "Submit a task for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.TriggerTask(args[0], TriggerRequest{
				CallRequest: flags.toRequest(),
				Delay:       delay,
			})
			if err != nil {
				return err
			}

			if result.Cached {
				out.Success("Cached result returned")
			} else {
				out.Success("Task queued")
			}
			out.Print(
				[]string{"TASK", "CACHE KEY", "CACHED"},
				[][]string{{result.Task, result.CacheKey, strconv.FormatBool(result.Cached)}},
				result,
			)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&delay, "delay", 0, "Delay before execution in seconds")

	return cmd
}

func newTaskResultCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:   "result NAME",
		Short: "Show the cached result of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.GetTaskResult(args[0], flags.toRequest())
			if err != nil {
				return err
			}

			out.Print(
				[]string{"TASK", "TIMESTAMP", "AGE (S)", "FRESH", "PAYLOAD"},
				[][]string{{
					result.Task,
					result.Timestamp,
					strconv.Itoa(result.AgeS),
					strconv.FormatBool(result.Fresh),
					string(result.Payload),
				}},
				result,
			)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newTaskClearCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:   "clear NAME",
		Short: "Drop the cached result and error history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.ClearTaskCache(args[0], flags.toRequest()); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cache cleared for task %s", args[0]))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
