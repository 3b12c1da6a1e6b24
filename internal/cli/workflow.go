package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для работы с workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and control workflows",
	}

	cmd.AddCommand(
		newWorkflowStatusCmd(clientFn, outputFn),
		newWorkflowCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status WORKFLOW_ID",
		Short: "Show a workflow snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			risk := "-"
			if wf.RiskScore != nil {
				risk = fmt.Sprintf("%.2f", *wf.RiskScore)
			}

			headers := []string{"WORKFLOW_ID", "STATUS", "NODE", "RISK", "ERRORS", "UPDATED"}
			rows := [][]string{{
				wf.WorkflowID,
				wf.Status,
				wf.CurrentNode,
				risk,
				fmt.Sprintf("%d", len(wf.Errors)),
				wf.UpdatedAt,
			}}

			out.Print(headers, rows, wf)
			return nil
		},
	}
}

func newWorkflowCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel WORKFLOW_ID",
		Short: "Cancel a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelWorkflow(args[0]); err != nil {
				return err
			}

			out.Success("Cancellation requested for " + args[0])
			return nil
		},
	}
}
