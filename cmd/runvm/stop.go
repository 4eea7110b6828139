package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/orbstack/runvm/conf"
	"github.com/orbstack/runvm/vmdir"
	"github.com/orbstack/runvm/vmsock"
)

func newStopCmd() *cobra.Command {
	var suspend, requestStop bool

	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a running VM over its control socket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			dir := vmdir.Open(conf.VMDir(name), name)

			client, err := vmsock.Dial(dir.SockPath())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := context.Background()
			switch {
			case suspend:
				return client.Suspend(ctx)
			case requestStop:
				return client.RequestStop(ctx)
			default:
				return client.Stop(ctx)
			}
		},
	}

	cmd.Flags().BoolVar(&suspend, "suspend", false, "suspend to disk instead of stopping")
	cmd.Flags().BoolVar(&requestStop, "request-stop", false, "ask the guest OS to stop itself")
	return cmd
}
