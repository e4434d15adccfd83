// Command healthctl runs syncs and inspects the local store without starting
// the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sakif/healthos/internal/app"
	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/config"
	"github.com/sakif/healthos/internal/logging"
	"github.com/sakif/healthos/internal/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "healthctl",
		Usage:  "sync and inspect local WHOOP data",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "sync all data types, or one with --type",
				Action: runSync,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "profile, body_measurements, cycles, recovery, sleep or workouts",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "show per-type sync state",
				Action: runStatus,
			},
			{
				Name:   "logout",
				Usage:  "delete the stored WHOOP credential",
				Action: runLogout,
			},
		},
	}
}

// open builds the application graph with logs on stderr so command output
// stays clean.
func open(c *cli.Context) (*app.App, error) {
	if path := c.String("config"); path != "" {
		os.Setenv("CONFIG_PATH", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	return app.New(cfg, logger)
}

func runSync(c *cli.Context) error {
	a, err := open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	events := make(chan model.SyncEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fmt.Fprintf(c.App.Writer, "%s  %-17s %-9s %s\n",
				ev.Time.Format(time.TimeOnly), ev.DataType, ev.Kind, ev.Message)
		}
	}()

	var results []model.SyncResult
	if raw := c.String("type"); raw != "" {
		dt, perr := model.ParseDataType(raw)
		if perr != nil {
			close(events)
			<-done
			return perr
		}
		var res model.SyncResult
		res, err = a.Sync.SyncDataType(c.Context, dt, events)
		if err == nil {
			results = []model.SyncResult{res}
			err = res.Err
		}
	} else {
		results, err = a.Sync.SyncAll(c.Context, events)
	}
	close(events)
	<-done

	printResults(c.App.Writer, results)
	if apperror.IsAuthFatal(err) {
		return cli.Exit("WHOOP authorization is no longer valid; log in again through the web UI", 2)
	}
	return err
}

func printResults(w io.Writer, results []model.SyncResult) {
	if len(results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATUS\tCOUNT\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.DataType, r.Status, r.Count, r.Error)
	}
	tw.Flush()
}

func runStatus(c *cli.Context) error {
	a, err := open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	auth, err := a.Auth.Status(c.Context)
	if err != nil {
		return err
	}
	switch {
	case !auth.Authenticated:
		fmt.Fprintln(c.App.Writer, "auth: not connected")
	case auth.Expired:
		fmt.Fprintln(c.App.Writer, "auth: connected (access token expired, refreshes on next call)")
	default:
		fmt.Fprintf(c.App.Writer, "auth: connected until %s\n", auth.ExpiresAt.Format(time.RFC3339))
	}

	statuses, err := a.Sync.Status(c.Context)
	if err != nil {
		return err
	}
	printStatus(c.App.Writer, statuses)
	return nil
}

func printStatus(w io.Writer, statuses []model.SyncMetadata) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATUS\tRECORDS\tLAST SYNCED\tERROR")
	for _, s := range statuses {
		last := "-"
		if s.LastSyncedAt != nil {
			last = s.LastSyncedAt.Format(time.RFC3339)
		}
		msg := ""
		if s.ErrorMessage != nil {
			msg = *s.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.DataType, s.Status, s.RecordCount, last, msg)
	}
	tw.Flush()
}

func runLogout(c *cli.Context) error {
	a, err := open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Auth.Logout(c.Context); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	fmt.Fprintln(c.App.Writer, "logged out")
	return nil
}
