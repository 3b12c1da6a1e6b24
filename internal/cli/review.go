package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReviewCmd создаёт группу команд для работы с review.
func NewReviewCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage human reviews",
	}

	cmd.AddCommand(
		newReviewListCmd(clientFn, outputFn),
		newReviewClaimCmd(clientFn, outputFn),
		newReviewDecideCmd(clientFn, outputFn),
	)

	return cmd
}

func newReviewListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var offset, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListReviews(offset, limit)
			if err != nil {
				return err
			}

			headers := []string{"WORKFLOW_ID", "SOURCE", "RISK", "REQUESTED", "CLAIMED_BY"}
			rows := make([][]string, len(tasks))
			for i, task := range tasks {
				rows[i] = []string{
					task.WorkflowID,
					task.Source,
					fmt.Sprintf("%.2f", task.RiskScore),
					task.RequestedAt,
					task.ClaimedBy,
				}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")

	return cmd
}

func newReviewClaimCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "claim WORKFLOW_ID",
		Short: "Claim a review lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			token, err := client.ClaimReview(args[0], operator)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"LEASE_TOKEN"},
				[][]string{{token}},
				map[string]string{"lease_token": token},
			)
			out.Success("Review claimed. Decide with: crisislens review decide " + args[0] + " --token " + token)
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "Operator identity (required)")
	cmd.MarkFlagRequired("operator")

	return cmd
}

func newReviewDecideCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var token, decision, feedback string

	cmd := &cobra.Command{
		Use:   "decide WORKFLOW_ID",
		Short: "Submit a review decision",
		Long:  "Submit a review decision: approve, reject or needs_investigation.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DecideReview(args[0], token, decision, feedback); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Decision %q recorded for %s", decision, args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Lease token from claim (required)")
	cmd.Flags().StringVar(&decision, "decision", "", "approve | reject | needs_investigation (required)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Optional operator feedback")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("decision")

	return cmd
}
