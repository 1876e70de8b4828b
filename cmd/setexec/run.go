package main

import (
	"fmt"
	"math"

	"setexec/pkg/config"
	"setexec/pkg/execution/materialize"
	"setexec/pkg/execution/query"
	"setexec/pkg/iterator"
	"setexec/pkg/logging"
	"setexec/pkg/metrics"
	"setexec/pkg/session"
	"setexec/pkg/tuple"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type runOptions struct {
	op            string
	operands      []string
	csvFiles      []string
	buffer        string
	maxChunks     int
	tempDir       string
	estimate      int64
	firstDistinct int
	sorted        bool
	limit         uint64
	offset        uint64
	noSummary     bool

	fs afero.Fs
}

func newRunCommand(g *globalFlags) *cobra.Command {
	o := &runOptions{fs: afero.NewOsFs()}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize a set operation and print its rows",
		Long: `Materialize a set operation over single-column integer operands.

Literal operands (--operand) come first, in flag order, followed by the
first column of each --csv file. "null" or an empty cell is NULL.`,
		Example: `  setexec run --op except-all --operand 1,1,2,3 --operand 1,3
  setexec run --op intersect --csv a.csv --csv b.csv --buffer 64KiB --sorted`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return o.run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.op, "op", "union-all", "union-all, union, intersect, intersect-all, except or except-all")
	f.StringArrayVar(&o.operands, "operand", nil, "comma separated operand values (repeatable)")
	f.StringArrayVar(&o.csvFiles, "csv", nil, "CSV file whose first column is an operand (repeatable)")
	f.StringVar(&o.buffer, "buffer", "", "override set_operation_buffer_size, e.g. 64B or 4MiB")
	f.IntVar(&o.maxChunks, "max-chunks", 0, "override max_chunk_files")
	f.StringVar(&o.tempDir, "temp-dir", "", "override temp_dir")
	f.Int64Var(&o.estimate, "estimate", 0, "row estimate for the left operand")
	f.IntVar(&o.firstDistinct, "first-distinct", 0, "EXCEPT ALL: index of the first DISTINCT operand")
	f.BoolVar(&o.sorted, "sorted", false, "sort the output")
	f.Uint64Var(&o.limit, "limit", 0, "print at most this many rows")
	f.Uint64Var(&o.offset, "offset", 0, "skip this many rows")
	f.BoolVar(&o.noSummary, "no-summary", false, "do not print the metrics summary")
	return cmd
}

func (o *runOptions) applyOverrides(cfg *config.Config) error {
	if o.buffer != "" {
		if err := cfg.SetOperationBufferSize.UnmarshalText([]byte(o.buffer)); err != nil {
			return err
		}
	}
	if o.maxChunks != 0 {
		cfg.MaxChunkFiles = o.maxChunks
	}
	if o.tempDir != "" {
		cfg.TempDir = o.tempDir
	}
	return cfg.Validate()
}

func (o *runOptions) run(cmd *cobra.Command, cfg *config.Config) error {
	if err := o.applyOverrides(cfg); err != nil {
		return err
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return err
	}
	defer logging.Close()

	op, err := materialize.ParseSetOp(o.op)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	ec := session.New(cmd.Context(), cfg,
		session.WithFs(o.fs),
		session.WithMetrics(metrics.New(reg)),
		session.WithLogger(logging.WithComponent("cli")))

	mat, err := materialize.New(materialize.Options{
		Type:          op,
		Schema:        valueDesc,
		FirstDistinct: o.firstDistinct,
	})
	if err != nil {
		return err
	}
	defer mat.Close()

	if err := o.addOperands(mat); err != nil {
		return err
	}

	out, err := o.wrapOutput(mat)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	err = iterator.ForEach(ec, out, func(row *tuple.Tuple) error {
		_, err := fmt.Fprintln(w, row.String())
		return err
	})
	if err != nil {
		return err
	}

	if o.noSummary {
		return nil
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "-- metrics")
	return metrics.WriteSummary(cmd.ErrOrStderr(), reg)
}

func (o *runOptions) addOperands(mat *materialize.MaterializeIterator) error {
	var sources []iterator.RowSource
	for _, list := range o.operands {
		src, err := literalOperand(list)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	for _, path := range o.csvFiles {
		src, err := csvOperand(o.fs, path)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return fmt.Errorf("at least one --operand or --csv is required")
	}

	for i, src := range sources {
		operand := materialize.Operand{Source: src}
		if i == 0 {
			operand.EstimatedRows = o.estimate
		}
		if err := mat.AddOperand(operand); err != nil {
			return err
		}
	}
	return nil
}

func (o *runOptions) wrapOutput(mat *materialize.MaterializeIterator) (iterator.RowSource, error) {
	var out iterator.RowSource = mat
	if o.sorted {
		s, err := query.NewSort(out, []query.SortKey{{Column: 0}})
		if err != nil {
			return nil, err
		}
		out = s
	}
	if o.limit > 0 || o.offset > 0 {
		limit := o.limit
		if limit == 0 {
			limit = math.MaxUint64
		}
		l, err := query.NewLimitOffset(out, limit, o.offset, query.LimitOptions{})
		if err != nil {
			return nil, err
		}
		out = l
	}
	return out, nil
}
