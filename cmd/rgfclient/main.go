// Command rgfclient browses RecroGrid entities from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/recrovit/rgfclient/internal/app"
	"github.com/recrovit/rgfclient/internal/config"
	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/grid"
	"github.com/recrovit/rgfclient/internal/models"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "rgfclient: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))
	return newRootCmd(ll).ExecuteContext(ctx)
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

type rootFlags struct {
	config   string
	logLevel string
}

func newRootCmd(ll *slog.LevelVar) *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "rgfclient",
		Short:         "RecroGrid Framework client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ll.UnmarshalText([]byte(f.logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q", f.logLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", "rgfclient.yaml", "Path to the configuration file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.AddCommand(
		newGridCmd(f),
		newAboutCmd(f),
		newDictCmd(f),
		newConfigCmd(f),
		&cobra.Command{
			Use:   "version",
			Short: "Print the client version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), app.BuildVersion())
			},
		},
	)
	return root
}

// start loads the configuration and initializes the application.
func start(ctx context.Context, f *rootFlags) (*app.App, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, app.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	if err := a.Init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// logNotifications prints the messages and toasts of m to the log.
func logNotifications(m *grid.Manager) {
	events.Subscribe(m.Notifications, m, func(ctx context.Context, e *events.Event[*events.UserMessage]) {
		level := slog.LevelInfo
		switch e.Args.Category {
		case events.UserMessageWarning:
			level = slog.LevelWarn
		case events.UserMessageError:
			level = slog.LevelError
		}
		slog.Log(ctx, level, e.Args.Title, "message", e.Args.Message)
	})
	events.Subscribe(m.Toasts, m, func(ctx context.Context, e *events.Event[*events.Toast]) {
		slog.DebugContext(ctx, "Toast", "type", e.Args.Type.String(), "title", e.Args.Title, "status", e.Args.Status)
	})
}

func newGridCmd(f *rootFlags) *cobra.Command {
	var page int
	var sort []string
	cmd := &cobra.Command{
		Use:   "grid <entity>",
		Short: "Print one page of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := start(ctx, f)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			m := a.NewManager(nil)
			defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()
			logNotifications(m)

			ok, err := m.Initialize(ctx, m.CreateGridRequest(ctx, func(r *models.GridRequest) {
				r.EntityName = args[0]
			}))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("failed to load %s", args[0])
			}
			if len(sort) != 0 {
				cols, err := parseSort(sort)
				if err != nil {
					return err
				}
				if _, err := m.List.SetSort(ctx, cols); err != nil {
					return err
				}
			}
			if page > 1 {
				if err := m.List.ActivePage.SetValue(ctx, page); err != nil {
					return err
				}
			}
			return printGrid(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page to print")
	cmd.Flags().StringSliceVarP(&sort, "sort", "s", nil, "Columns to sort by, prefixed with - for descending order")
	return cmd
}

// parseSort turns "Name", "-Id" into sort columns by priority.
func parseSort(specs []string) ([]grid.SortColumn, error) {
	cols := make([]grid.SortColumn, 0, len(specs))
	for i, s := range specs {
		dir := 1
		if alias, ok := strings.CutPrefix(s, "-"); ok {
			s, dir = alias, -1
		}
		if s == "" {
			return nil, errors.New("empty sort column")
		}
		cols = append(cols, grid.SortColumn{Alias: s, Sort: dir * (i + 1)})
	}
	return cols, nil
}

func printGrid(w io.Writer, m *grid.Manager) error {
	cols := m.Entity().SortedVisibleColumns()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, p := range cols {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, p.ColTitle)
	}
	fmt.Fprintln(tw)
	for _, row := range m.List.ListDataSource.Value() {
		for i, p := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, row.Value(p.Alias).String())
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\npage %d, %d items\n", m.List.ActivePage.Value(), m.List.ItemCount.Value())
	return err
}

func newAboutCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Print the server about dialog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := start(ctx, f)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			m := a.NewManager(nil)
			defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()
			logNotifications(m)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), m.About(ctx))
			return err
		},
	}
}

func newDictCmd(f *rootFlags) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "dict <scope>",
		Short: "Print a dictionary scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := start(ctx, f)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if lang == "" {
				lang = a.Sec.UserLanguage()
			}
			d := a.Dict.Dictionary(ctx, args[0], lang, true)
			if d.Len() == 0 {
				return fmt.Errorf("dictionary %s/%s is empty", args[0], lang)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for k, v := range d.All() {
				fmt.Fprintf(tw, "%s\t%s\n", k, strconv.Quote(v))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Language code, defaults to the user language")
	return cmd
}

func newConfigCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the configuration file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(config.Schema())
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Sign in and apply configuration changes until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a, err := start(ctx, f)
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()
				slog.InfoContext(ctx, "Watching config", "path", f.config, "user", a.Sec.UserName())
				return a.Watch(ctx, f.config)
			},
		},
	)
	return cmd
}
