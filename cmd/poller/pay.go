package main

import (
	"fmt"

	"azebot/internal/poller"

	"github.com/spf13/cobra"
)

func payCmd(opts *options) *cobra.Command {
	req := poller.PaymentRequest{}
	cmd := &cobra.Command{
		Use:   "pay [articleId]",
		Short: "Open a checkout for an article and print the payment link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.userID == "" {
				return fmt.Errorf("--user is required")
			}
			req.ArticleID = args[0]
			session, err := opts.client().CreatePayment(cmd.Context(), req)
			if err != nil {
				return err
			}
			local, sess := opts.stores()
			if err := poller.Remember(req.ArticleID, local, sess); err != nil {
				return fmt.Errorf("remembering article: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Transaction: %s\n", session.TransactionID)
			fmt.Fprintf(out, "Pay here:    %s\n", session.URL)
			fmt.Fprintln(out, "Then run `confirm` with the return URL.")
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.Amount, "amount", 0, "Expected price in minor units, 0 to accept the server price")
	cmd.Flags().StringVar(&req.Description, "description", "", "Checkout description")
	cmd.Flags().StringVar(&req.Customer.Firstname, "firstname", "", "Customer first name")
	cmd.Flags().StringVar(&req.Customer.Lastname, "lastname", "", "Customer last name")
	cmd.Flags().StringVar(&req.Customer.Email, "email", "", "Customer email")
	return cmd
}
