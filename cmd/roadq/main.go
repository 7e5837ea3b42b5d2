// roadq：运维命令行，复用服务端的分类表、编译器与报表目录，便于排查筛选结果与 SQL
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/engine"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/logger"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/predicate"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/road"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/store"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/utils"
)

var (
	taxonomyPath string
	offline      bool
	timeout      time.Duration

	selOperator string
	selValue    float64
	selMode     string
	selDate     string
	selLabels   []string
	selRegion   string
	layerPath   string
)

func main() {
	utils.LoadEnvFiles()
	logger.Set(logger.New(os.Stderr, utils.EnvString("LOG_LEVEL", "warn"), os.Getenv("LOG_FORMAT")))
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "roadq",
		Short:        "Inspect road filters, labels and reports",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&taxonomyPath, "taxonomy", os.Getenv("TAXONOMY_PATH"), "taxonomy YAML (default: built-in table)")
	root.PersistentFlags().BoolVar(&offline, "offline", false, "do not connect to PostgreSQL (Others labels unavailable)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	root.AddCommand(categoriesCmd(), labelsCmd(), compileCmd(), filterCmd(), reportCmd())
	return root
}

func loadRegistry() (*taxonomy.Registry, error) {
	return taxonomy.LoadFile(taxonomyPath)
}

// openEngine：连接数据库并构造引擎；关闭函数释放连接池
func openEngine(reg *taxonomy.Registry) (*engine.Engine, func(), error) {
	db, pc, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, nil, err
	}
	exec := store.NewExecutor(store.FromDB(db), store.Config{
		MaxConcurrent: int64(pc.MaxOpen),
		PoolWait:      pc.Wait,
		QueryTimeout:  pc.QueryTimeout,
	})
	return engine.New(reg, exec, nil, nil), func() { _ = db.Close() }, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return logger.WithRequestID(ctx, "roadq"), cancel
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List filter categories and their kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tCOLUMN\tOTHERS")
			for _, c := range reg.Categories() {
				col := c.Column
				if col == "" {
					names := make([]string, 0, len(c.Modes))
					for _, m := range c.Modes {
						names = append(names, m.Name)
					}
					col = strings.Join(names, " | ")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", c.Name, c.Kind, col, c.Others)
			}
			return tw.Flush()
		},
	}
}

func labelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels <category>",
		Short: "Print selectable labels (curated groups, then Others)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			var labels []string
			if offline {
				labels, err = reg.AllSelectableLabels(args[0], nil)
			} else {
				eng, closeFn, oerr := openEngine(reg)
				if oerr != nil {
					return oerr
				}
				defer closeFn()
				ctx, cancel := commandContext(cmd)
				defer cancel()
				labels, err = eng.Selectable(ctx, args[0])
				if err != nil && labels != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
					err = nil
				}
			}
			if err != nil {
				return err
			}
			for _, l := range labels {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

func addSelectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&selOperator, "op", "", `range operator ("Greater than", "Less than", "Equal to")`)
	f.Float64Var(&selValue, "value", 0, "range value")
	f.StringVar(&selMode, "mode", "", "date/compare mode name")
	f.StringVar(&selDate, "date", "", "date as YYYY-MM-DD")
	f.StringArrayVar(&selLabels, "label", nil, "selected label (repeatable)")
	f.StringVar(&selRegion, "region", taxonomy.AllRegions, "block name or All")
}

func selection(cmd *cobra.Command) predicate.Selection {
	sel := predicate.Selection{Operator: selOperator, Mode: selMode, Date: selDate, Labels: selLabels}
	if cmd.Flags().Changed("value") {
		v := selValue
		sel.Value = &v
	}
	return sel
}

// compileQuery：离线模式不解析 Others，只接受预置分组标签
func compileQuery(ctx context.Context, reg *taxonomy.Registry, eng *engine.Engine, cmd *cobra.Command, category string) (predicate.Query, error) {
	if eng == nil {
		return predicate.New(reg, nil).Compile(ctx, category, selection(cmd), selRegion)
	}
	return eng.Compile(ctx, category, selection(cmd), selRegion)
}

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <category>",
		Short: "Compile a selection to parameterised SQL without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			var eng *engine.Engine
			if !offline {
				e, closeFn, err := openEngine(reg)
				if err != nil {
					return err
				}
				defer closeFn()
				eng = e
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			q, err := compileQuery(ctx, reg, eng, cmd, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"sql": q.Text, "args": q.Args})
		},
	}
	addSelectionFlags(cmd)
	return cmd
}

func filterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter <category>",
		Short: "Run a filter against PostgreSQL, or against a GeoJSON road layer with --layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if layerPath != "" {
				return filterLayer(ctx, cmd, reg, args[0])
			}
			if offline {
				return fmt.Errorf("--offline needs --layer")
			}
			eng, closeFn, err := openEngine(reg)
			if err != nil {
				return err
			}
			defer closeFn()
			res, err := eng.Filter(ctx, args[0], selection(cmd), selRegion)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d roads\n", len(res.Result.Features))
			return printJSON(cmd.OutOrStdout(), res.Result.Collection())
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().StringVar(&layerPath, "layer", "", "GeoJSON road layer to filter in memory")
	return cmd
}

// filterLayer：对静态路网图层做内存过滤，语义与 SQL 一致
func filterLayer(ctx context.Context, cmd *cobra.Command, reg *taxonomy.Registry, category string) error {
	ly, err := geo.LoadLayer("roads", layerPath)
	if err != nil {
		return err
	}
	var eng *engine.Engine
	if !offline {
		e, closeFn, err := openEngine(reg)
		if err != nil {
			return err
		}
		defer closeFn()
		eng = e
	}
	q, err := compileQuery(ctx, reg, eng, cmd, category)
	if err != nil {
		return err
	}
	var hits []geo.Feature
	for _, f := range ly.Features {
		if q.Match(road.FromProperties(f.Properties, f.Geometry)) {
			hits = append(hits, f)
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d roads\n", len(hits), len(ly.Features))
	return printJSON(cmd.OutOrStdout(), geo.NewFeatureCollection(hits))
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <name>",
		Short: "Execute a catalog report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			eng, closeFn, err := openEngine(reg)
			if err != nil {
				return err
			}
			defer closeFn()
			ctx, cancel := commandContext(cmd)
			defer cancel()
			def, rs, err := eng.Report(ctx, args[0])
			if err != nil {
				return err
			}
			if def.RequiresGeometry {
				return printJSON(cmd.OutOrStdout(), rs.Collection())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(rs.Columns, "\t"))
			for _, row := range rs.Rows() {
				cells := make([]string, len(rs.Columns))
				for i, c := range rs.Columns {
					cells[i] = fmt.Sprint(row[c])
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}
}
