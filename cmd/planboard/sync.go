package main

import (
	"context"

	"github.com/spf13/cobra"

	"planboard/internal/daterange"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Write resources.yaml into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(context.Background(), daterange.DateRange{})
			if err != nil {
				return err
			}
			a.close()
			return nil
		},
	}
}
