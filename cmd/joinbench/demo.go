// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/catalog"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/executor"
	"github.com/pingcap/joinstrategy/pkg/planner/logicalop"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/relation"
	"github.com/pingcap/joinstrategy/pkg/statistics"
	"github.com/pingcap/joinstrategy/pkg/types"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	flagLeftRows   = "left-rows"
	flagRightRows  = "right-rows"
	flagKeyRange   = "key-range"
	flagJoinType   = "join-type"
	flagStrategies = "strategies"

	statsCacheCapacity = 1024
)

func newDemoCommand(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Join two synthetic tables once per strategy and compare the timings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := parseDemoFlags(cmd)
			if err != nil {
				return err
			}
			return runDemo(cmd, app, opts)
		},
	}
	cmd.Flags().Int64(flagLeftRows, 100000, "Number of rows of the left table")
	cmd.Flags().Int64(flagRightRows, 1000, "Number of rows of the right table")
	cmd.Flags().Int64(flagKeyRange, 1000, "Join keys are generated in [0, key-range)")
	cmd.Flags().String(flagJoinType, "inner", "Join type: inner, left, right or full")
	cmd.Flags().StringSlice(flagStrategies, []string{
		string(strategy.Broadcast), string(strategy.ShuffleMerge), string(strategy.ShuffleHash), string(strategy.ShuffleReplicateNL),
	}, "Strategies to force by hint, an unhinted run is always added")
	return cmd
}

type demoOptions struct {
	leftRows, rightRows, keyRange int64
	joinType                      logicalop.JoinType
	hints                         []*strategy.Hint
}

func parseDemoFlags(cmd *cobra.Command) (*demoOptions, error) {
	flags := cmd.Flags()
	opts := &demoOptions{}
	var err error
	if opts.leftRows, err = flags.GetInt64(flagLeftRows); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.rightRows, err = flags.GetInt64(flagRightRows); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.keyRange, err = flags.GetInt64(flagKeyRange); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.leftRows < 0 || opts.rightRows < 0 || opts.keyRange <= 0 {
		return nil, errors.Errorf("row counts must not be negative and %s must be positive", flagKeyRange)
	}
	tp, err := flags.GetString(flagJoinType)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if opts.joinType, err = logicalop.ParseJoinType(tp); err != nil {
		return nil, err
	}
	names, err := flags.GetStringSlice(flagStrategies)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, name := range names {
		s, ok := strategy.LookupHint(name)
		if !ok {
			s = strategy.Strategy(name)
		}
		if !slices.Contains(strategy.AllStrategies, s) {
			return nil, errors.Errorf("unknown strategy %q", name)
		}
		opts.hints = append(opts.hints, strategy.NewHint(s))
	}
	// The unhinted run lets the selector decide.
	opts.hints = append(opts.hints, nil)
	return opts, nil
}

func runDemo(cmd *cobra.Command, app *cliApp, opts *demoOptions) (err error) {
	ctx := cmd.Context()
	cat := catalog.New()
	db := catalog.NewSessionDatabaseName("joinbench")
	if err := cat.CreateDatabase(db); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, cat.DropDatabase(db))
	}()

	left := relation.NewSynthetic("facts", types.NewSchema(
		&types.Column{Name: "id", Tp: types.ETInt, NotNull: true},
		&types.Column{Name: "dim_id", Tp: types.ETInt, NotNull: true},
		&types.Column{Name: "payload", Tp: types.ETString, NotNull: true},
	), opts.leftRows, relation.IDGen(), relation.ModGen(opts.keyRange), relation.FormatGen("fact-%08d"))
	right := relation.NewSynthetic("dims", types.NewSchema(
		&types.Column{Name: "id", Tp: types.ETInt, NotNull: true},
		&types.Column{Name: "name", Tp: types.ETString, NotNull: true},
	), opts.rightRows, relation.IDGen(), relation.FormatGen("dim-%d"))
	leftTbl, leftSize, err := createAndAnalyze(ctx, cat, db, "facts", left)
	if err != nil {
		return err
	}
	rightTbl, rightSize, err := createAndAnalyze(ctx, cat, db, "dims", right)
	if err != nil {
		return err
	}

	provider := statistics.NewCachedProvider(
		statistics.NewChainProvider(statistics.NewCatalogProvider(cat), statistics.IntrospectProvider{}),
		app.cfg.Join.StatsCacheTTL, statsCacheCapacity)
	provider.Start()
	defer provider.Stop()
	driver := executor.NewDriver(provider, executor.WithMemoryLimit(int64(app.cfg.Join.SoftMemoryLimit)))

	cond, err := logicalop.NewEqualCondition(leftTbl.Schema(), rightTbl.Schema(), "dim_id", "id")
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Run", "Strategy", "Reason", "Build Side", "Rows", "Sum(facts.id)", "Select", "Elapsed"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Rows", Align: text.AlignRight},
		{Name: "Sum(facts.id)", Align: text.AlignRight},
		{Name: "Select", Align: text.AlignRight},
		{Name: "Elapsed", Align: text.AlignRight},
	})
	for _, hint := range opts.hints {
		spec := &logicalop.JoinSpec{
			Left:            leftTbl,
			Right:           rightTbl,
			EqualConditions: []logicalop.EqualCondition{cond},
			JoinType:        opts.joinType,
			Hint:            hint,
		}
		runName := "no hint"
		if hint != nil {
			runName = hint.String()
		}
		t.AppendRow(runOnce(ctx, driver, spec, &app.cfg.Join, runName))
		if ctx.Err() != nil {
			return errors.Trace(ctx.Err())
		}
	}
	cmd.Printf("%s join %s (%d rows, %s) with %s (%d rows, %s), broadcast threshold %s\n",
		opts.joinType, leftTbl.Name(), opts.leftRows, humanSize(leftSize),
		rightTbl.Name(), opts.rightRows, humanSize(rightSize), app.cfg.Join.BroadcastThreshold)
	cmd.Println(t.Render())
	cmd.Printf("peak join memory %s\n", humanSize(driver.MemTracker().MaxConsumed()))
	return nil
}

func createAndAnalyze(ctx context.Context, cat *catalog.Catalog, db, name string, rel relation.Relation) (relation.Relation, int64, error) {
	if err := cat.CreateTable(db, name, rel); err != nil {
		return nil, 0, err
	}
	_, byteSize, err := cat.Analyze(ctx, db, name)
	if err != nil {
		return nil, 0, err
	}
	tbl, err := cat.Table(db, name)
	return tbl, byteSize, err
}

func runOnce(ctx context.Context, driver *executor.Driver, spec *logicalop.JoinSpec, cfg *config.Join, runName string) table.Row {
	res, err := driver.Run(ctx, spec, cfg)
	if err != nil {
		return table.Row{runName, "-", "-", "-", "-", "-", "-", err.Error()}
	}
	agg, err := executor.Aggregate(ctx, res.ResultSet, 0)
	if err != nil {
		logutil.Logger(ctx).Warn("demo run failed", zap.String("run", runName), zap.Error(err))
		return table.Row{runName, res.Strategy(), res.Decision.Reason, res.Decision.BuildSide, "-", "-",
			res.SelectDuration.Round(time.Microsecond), err.Error()}
	}
	return table.Row{runName, res.Strategy(), res.Decision.Reason, res.Decision.BuildSide, agg.Count,
		fmt.Sprint(agg.Sum), res.SelectDuration.Round(time.Microsecond), agg.Elapsed.Round(time.Millisecond)}
}

func humanSize(n int64) string {
	return units.HumanSize(float64(n))
}
