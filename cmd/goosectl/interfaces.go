package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slonegd/gogoose/transport"
)

func cmdInterfaces() *cobra.Command {
	var upOnly bool
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces usable for GOOSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ifs, err := transport.Interfaces()
			if err != nil {
				return err
			}
			for _, ifi := range ifs {
				if upOnly && !ifi.Up() {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), ifi)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&upOnly, "up", false, "only interfaces that are up")
	return cmd
}
