package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/message"
)

func newReconnectCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "reconnect",
		Short: "Force the running monitor to rejoin the clipboard chain",
		Long: `Asks the running monitor to leave and rejoin the clipboard-viewer chain
right away, without waiting for the next scheduled health check.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runReconnect() },
	}
	addConfigFlag(cmd)
	return cmd
}

func runReconnect() error {
	resp, err := request(&message.Message{Type: message.TypeReconnect})
	if err != nil {
		return err
	}
	if resp.Status == nil {
		fmt.Println("reconnect requested")
		return nil
	}
	fmt.Printf("chain %s, next viewer %s, %d reconnects\n",
		resp.Status.ChainState, resp.Status.Link, resp.Status.Reconnects)
	return nil
}
