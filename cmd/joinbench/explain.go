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
	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/planner/strategy"
	"github.com/pingcap/joinstrategy/pkg/statistics"
	"github.com/spf13/cobra"
)

const (
	flagLeftSize  = "left-size"
	flagRightSize = "right-size"
	flagLeftName  = "left-name"
	flagRightName = "right-name"
	flagPredicate = "predicate"
	flagHint      = "hint"
)

func newExplainCommand(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the join strategy chosen for the given input sizes",
		Example: `  joinbench explain --left-size 8GiB --right-size 5MiB
  joinbench explain --left-size 1GiB --right-size 1GiB --hint '/*+ SHUFFLE_HASH(t2) */'
  joinbench explain --predicate none --hint '/*+ BROADCAST(t1) */'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExplain(cmd, &app.cfg.Join)
		},
	}
	cmd.Flags().String(flagLeftSize, "", "Byte size of the left input, empty means unknown")
	cmd.Flags().String(flagRightSize, "", "Byte size of the right input, empty means unknown")
	cmd.Flags().String(flagLeftName, "t1", "Name of the left input, used to bind hints")
	cmd.Flags().String(flagRightName, "t2", "Name of the right input, used to bind hints")
	cmd.Flags().String(flagPredicate, "equi", "Join predicate kind: equi or none")
	cmd.Flags().String(flagHint, "", "Hint comment, for example '/*+ MERGE(t1) */'")
	return cmd
}

func parseSizeFlag(cmd *cobra.Command, name string) (*statistics.Stats, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil || v == "" {
		return nil, errors.Trace(err)
	}
	size, err := units.RAMInBytes(v)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid --%s", name)
	}
	// The row count is unknown unless the input is empty.
	rows := int64(-1)
	if size == 0 {
		rows = 0
	}
	return statistics.NewStats(rows, size, nil, statistics.SourceManual), nil
}

func runExplain(cmd *cobra.Command, cfg *config.Join) error {
	flags := cmd.Flags()
	left, err := parseSizeFlag(cmd, flagLeftSize)
	if err != nil {
		return err
	}
	right, err := parseSizeFlag(cmd, flagRightSize)
	if err != nil {
		return err
	}
	leftName, _ := flags.GetString(flagLeftName)
	rightName, _ := flags.GetString(flagRightName)
	predicate, _ := flags.GetString(flagPredicate)
	var kind strategy.PredicateKind
	switch predicate {
	case "equi":
		kind = strategy.PredicateEqui
	case "none":
		kind = strategy.PredicateNone
	default:
		return errors.Errorf("unknown predicate kind %q", predicate)
	}
	hintText, _ := flags.GetString(flagHint)
	hint, warnings, err := strategy.ParseHints(hintText)
	if err != nil {
		return err
	}
	hint, warning := hint.Bind(leftName, rightName)
	if warning != "" {
		warnings = append(warnings, warning)
	}
	if (left == nil || right == nil) && hint == nil && !cfg.StatsUnavailableFallback {
		warnings = append(warnings, "statistics unavailable and no hint, a join would fail unless stats-unavailable-fallback is set")
	}
	warn := color.New(color.FgYellow)
	for _, w := range warnings {
		warn.Fprintln(cmd.OutOrStdout(), "Warning:", w)
	}
	cmd.Println(strategy.Select(left, right, kind, hint, cfg).String())
	return nil
}
