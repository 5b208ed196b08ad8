package main

import (
	"errors"
	"fmt"

	"github.com/lborres/opgate"
	"github.com/spf13/cobra"
)

// newAuthorizeCmd pre-authorizes an operator email so it can register.
func newAuthorizeCmd(load loadFunc) *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:   "authorize <email>",
		Short: "Pre-authorize an operator email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := opgate.NormalizeEmail(args[0])
			if email == "" {
				return opgate.ErrEmailRequired
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			op := &opgate.Operator{Email: email}
			if storeID != "" {
				op.StoreID = &storeID
			}
			err = store.CreateOperator(cmd.Context(), op)
			switch {
			case errors.Is(err, opgate.ErrOperatorExists):
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already authorized\n", email)
				return nil
			case err != nil:
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "authorized %s (id %s)\n", op.Email, op.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&storeID, "store-id", "", "store the operator belongs to")
	return cmd
}
