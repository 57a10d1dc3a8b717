package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipwatch/internal/ipc"
	"go.klb.dev/clipwatch/internal/message"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show clipboard chain and toast state of the running monitor",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	resp, err := request(&message.Message{Type: message.TypeStatus})
	if err != nil {
		return err
	}
	if resp.Status == nil {
		return fmt.Errorf("status: empty reply")
	}

	if v.GetBool("json") {
		enc, _ := json.MarshalIndent(resp.Status, "", "  ")
		fmt.Println(string(enc))
		return nil
	}

	printStatus(os.Stdout, resp.Status, fmt.Sprintf("ipc (%s)", ipc.SocketPath()))
	return nil
}

func printStatus(out io.Writer, s *message.Status, transport string) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Version:\t%s\n", s.Version)
	_, _ = fmt.Fprintf(w, "Platform:\t%s\n", s.Backend)
	_, _ = fmt.Fprintf(w, "Transport:\t%s\n", transport)
	_, _ = fmt.Fprintf(w, "Running since:\t%s\n", fmtTime(s.StartedAt))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Chain:\t%s\n", s.ChainState)
	_, _ = fmt.Fprintf(w, "Next viewer:\t%s\n", s.Link)
	_, _ = fmt.Fprintf(w, "Receiving:\t%t\n", s.Receiving)
	_, _ = fmt.Fprintf(w, "Last change:\t%s\n", fmtTime(s.LastChange))
	_, _ = fmt.Fprintf(w, "Reconnects:\t%d (last %s)\n", s.Reconnects, fmtTime(s.LastReconnect))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Toast:\t%s\n", s.ToastState)
	_, _ = fmt.Fprintf(w, "Clipboard seq:\t%d (seen %s)\n", s.LastSeenSeq, fmtTime(s.LastSeenAt))
	_ = w.Flush()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmtAge(t)
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("15:04:05")
}
