package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"amsdb/internal/api"
	"amsdb/internal/page"
)

func newPutCmd(a *app) *cobra.Command {
	var fromFile string
	cmd := &cobra.Command{
		Use:   "put KEY [VALUE]",
		Short: "Store VALUE under KEY",
		Long:  "Store VALUE under KEY. With --file the value is read from a file, or from stdin when the file is -.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := putValue(cmd, args, fromFile)
			if err != nil {
				return err
			}
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			if err := db.Put([]byte(args[0]), value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s (%d bytes)\n", args[0], len(value))
			return nil
		},
	}
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "read the value from a file (- for stdin)")
	return cmd
}

func putValue(cmd *cobra.Command, args []string, fromFile string) ([]byte, error) {
	switch {
	case fromFile == "" && len(args) == 2:
		return []byte(args[1]), nil
	case fromFile == "":
		return nil, errors.New("missing VALUE: pass it as an argument or with --file")
	case len(args) == 2:
		return nil, errors.New("VALUE and --file are mutually exclusive")
	case fromFile == "-":
		return io.ReadAll(io.LimitReader(cmd.InOrStdin(), page.MaxValueSize+1))
	default:
		return os.ReadFile(fromFile)
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			value, ok, err := db.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("key %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(value))
			return nil
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var from, prefix string
	var limit int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List entries in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}

			var entries []api.KeyValue
			switch {
			case cmd.Flags().Changed("prefix"):
				entries, err = db.ScanPrefix([]byte(prefix), limit)
			case cmd.Flags().Changed("from"):
				entries, err = db.Scan([]byte(from), limit)
			default:
				entries, err = db.Scan(nil, limit)
			}
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}

			t := newTable().StyleFunc(func(_, col int) lipgloss.Style {
				if col == 0 {
					return cellStyle
				}
				return labelStyle
			})
			for _, e := range entries {
				t.Row(e.Key, e.Value)
			}
			return renderTable(cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first key to list")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "list only keys starting with this prefix")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries (0 lists all)")
	cmd.MarkFlagsMutuallyExclusive("from", "prefix")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show tree shape and cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			info, err := a.manager.GetDatabaseInfo(db.Name)
			if err != nil {
				return err
			}
			cache, err := api.GetCacheStatsInfo(db)
			if err != nil {
				return err
			}

			root := "(empty)"
			if !info.Empty {
				root = fmt.Sprint(info.RootPage)
			}
			t := newTable().
				StyleFunc(func(_, col int) lipgloss.Style {
					if col == 0 {
						return labelStyle
					}
					return cellStyle
				}).
				Row("database", info.Name).
				Row("file", info.Filename).
				Row("file pages", fmt.Sprint(info.FilePages)).
				Row("root", root).
				Row("height", fmt.Sprint(info.Height)).
				Row("keys", fmt.Sprint(info.Keys)).
				Row("leaf nodes", fmt.Sprint(info.LeafNodes)).
				Row("branch nodes", fmt.Sprint(info.BranchNodes)).
				Row("used bytes", fmt.Sprint(info.UsedBytes)).
				Row("cache", fmt.Sprintf("%d/%d pages, %d hits, %d misses, %d evictions",
					cache.Size, cache.MaxSize, cache.Hits, cache.Misses, cache.Evictions))
			return renderTable(cmd.OutOrStdout(), t)
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check key ordering and separator bounds across the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			if err := db.Verify(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func newPagesCmd(a *app) *cobra.Command {
	var from uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Dump page headers and content digests",
		Long: "Dump the header of every page in the database file together with an xxhash " +
			"digest of its content. Pages that fail to decode are reported, not skipped. " +
			"The file is opened read-only and never modified.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filename := a.manager.Filename(a.cfg.Storage.Database)
			if _, err := os.Stat(filename); err != nil {
				return errors.Wrapf(err, "database file %s", filename)
			}
			pm, err := page.NewPageManager(filename, false, page.WithReadOnly(), page.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer pm.Close()

			return dumpPages(cmd.OutOrStdout(), pm, from, limit)
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first page index")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of pages (0 dumps all)")
	return cmd
}

func dumpPages(out io.Writer, pm *page.PageManager, from uint64, limit int) error {
	var invalid []bool
	t := newTable().Headers("INDEX", "KIND", "ROOT", "USED", "KEYS", "DIGEST")

	count := pm.PageCount()
	for index, n := from, 0; index < count && (limit <= 0 || n < limit); index, n = index+1, n+1 {
		p, err := pm.ReadPageFromDisk(index)
		if err != nil {
			return err
		}
		digest := fmt.Sprintf("%016x", xxhash.Sum64(p[:]))

		h, err := page.DecodeHeader(p)
		if err != nil {
			t.Row(fmt.Sprint(index), "invalid", "-", "-", "-", digest)
			invalid = append(invalid, true)
			continue
		}
		kind := "leaf"
		if h.IsBranch {
			kind = "branch"
		}
		keys := "-"
		node, err := page.Decode(p)
		if err == nil {
			keys = fmt.Sprint(len(node.Keys()))
		} else {
			kind += "(corrupt)"
		}
		t.Row(fmt.Sprint(index), kind, fmt.Sprint(h.IsRoot), fmt.Sprint(h.UsedSize), keys, digest)
		invalid = append(invalid, err != nil)
	}

	t.StyleFunc(func(row, _ int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case row >= 0 && row < len(invalid) && invalid[row]:
			return warnStyle
		default:
			return cellStyle
		}
	})
	return renderTable(out, t)
}

func newServeCmd(a *app) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.openDatabase(); err != nil {
				return err
			}
			server := api.NewServer(a.cfg.Server, a.manager, a.log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(server.Start)
			g.Go(func() error {
				<-ctx.Done()
				a.log.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Stop(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	return cmd
}
