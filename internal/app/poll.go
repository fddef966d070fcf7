package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/classify"
	"github.com/sdis/opsdash/internal/model"
	"github.com/sdis/opsdash/internal/notify"
	"github.com/sdis/opsdash/internal/sync"
	"github.com/sdis/opsdash/internal/theme"
)

var pollNotify bool

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one mailbox scan and print the classified events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := container()
		if err != nil {
			return err
		}
		if !pollNotify {
			// Classify without pushing anything to subscribers.
			if err := c.Decorate(func(notify.Notifier) notify.Notifier { return nil }); err != nil {
				return err
			}
		}
		return c.Invoke(func(
			poller *sync.Poller,
			power *classify.PowerClassifier,
			operations *classify.OperationClassifier,
			logger *zap.Logger,
		) error {
			defer func() { _ = logger.Sync() }()

			poller.Scan(cmd.Context())
			poller.SweepNow()

			out := cmd.OutOrStdout()
			renderStatuses(out, poller.Statuses())
			renderPower(out, power.ListEvents())
			renderOperations(out, operations.ListEvents())
			return nil
		})
	},
}

func init() {
	pollCmd.Flags().BoolVar(&pollNotify, "notify", false, "push notifications for newly seen messages")
}

// renderStatuses prints one line per poller job inside a bordered box.
func renderStatuses(w io.Writer, statuses []sync.SyncStatus) {
	if len(statuses) == 0 {
		return
	}
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		line := fmt.Sprintf("%s: %s, %d processed", s.Job, s.State, s.Processed)
		if s.LastError != "" {
			lines = append(lines, theme.ErrorStyle.Render(line+" ("+s.LastError+")"))
			continue
		}
		lines = append(lines, theme.SubtleStyle.Render(line))
	}
	fmt.Fprintln(w, theme.BorderStyle.Render(strings.Join(lines, "\n")))
	fmt.Fprintln(w)
}

func renderPower(w io.Writer, events []model.PowerEvent) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(fmt.Sprintf("Onduleur (%d)", len(events))))
	for _, e := range events {
		fmt.Fprintf(w, "%s %s %s\n",
			theme.PowerTypeStyle(e.Type).Render(string(e.Type)),
			orDash(strings.TrimSpace(e.Event+" "+e.Message)),
			theme.SubtleStyle.Render(formatDate(e)))
	}
	fmt.Fprintln(w)
}

func renderOperations(w io.Writer, events []model.OperationEvent) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(fmt.Sprintf("INPT (%d)", len(events))))
	for _, e := range events {
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			theme.KindStyle(e.Kind).Render(string(e.Kind)),
			orDash(e.Number()),
			theme.StatusStyle(e.Status).Render(string(e.Status)),
			orDash(deref(e.Site)),
			theme.SubtleStyle.Render(orDash(deref(e.DateTime))))
	}
}

func formatDate(e model.PowerEvent) string {
	if e.Timestamp != "" {
		return e.Timestamp
	}
	if e.Date.IsZero() {
		return "-"
	}
	return e.Date.Local().Format("02/01/2006 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
