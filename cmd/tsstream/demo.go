/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rulego/tsstream"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
)

const demoStatement = "CREATE STREAM s1 FILL_HISTORY 1 INTO sta SUBTABLE(concat('new-', tname)) " +
	"AS SELECT _wstart, count(*) cnt, avg(i) avg_i FROM st PARTITION BY tbname tname INTERVAL(1m)"

type demoOptions struct {
	tables    int
	history   int
	live      int
	statement string
	timeout   time.Duration
}

func init() {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "seed a source table, run a stream over it and print the destination",
		Long: `demo creates the super table st(ts, i) TAGS(loc) with --tables child tables,
commits --history rows per child table before the stream exists, creates the stream,
commits --live more rows per child table and prints the destination once every
window has been flushed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			return runDemo(cmd.Context(), engine, opts, os.Stdout)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.tables, "tables", 2, "child tables in the source")
	flags.IntVar(&opts.history, "history", 180, "rows per child table committed before the stream")
	flags.IntVar(&opts.live, "live", 60, "rows per child table committed after the stream")
	flags.StringVar(&opts.statement, "sql", demoStatement, "CREATE STREAM statement over st")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "time allowed for backfill and flush")
	Command.AddCommand(cmd)
}

func runDemo(ctx context.Context, engine *tsstream.Engine, opts demoOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	store := engine.Storage()
	source := types.TableRef{DB: engine.Config().DefaultDB, Name: "st"}
	if err := store.EnsureSuperTable(source, storage.Schema{Columns: []string{"i"}, Tags: []string{"loc"}}); err != nil {
		return err
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if err := seed(ctx, store, source, opts.tables, 0, opts.history, base); err != nil {
		return err
	}

	res, err := engine.Execute(opts.statement)
	if err != nil {
		return err
	}
	s, ok := engine.Stream(res.Stream.Name)
	if !ok {
		return fmt.Errorf("stream %s is not running", res.Stream.Name)
	}
	if err := seed(ctx, store, source, opts.tables, opts.history, opts.history+opts.live, base); err != nil {
		return err
	}

	select {
	case <-s.Live():
	case <-ctx.Done():
		return fmt.Errorf("stream %s did not reach live: %w", s.Name(), ctx.Err())
	}
	if err := s.Err(); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}

	if err := printDestination(w, store, res.Stream.Destination); err != nil {
		return err
	}
	st := s.Stats()
	fmt.Fprintf(w, "history rows %d, live rows %d, late rows %d, windows %d, writes %d\n",
		st.HistoricalRows, st.LiveRows, st.LateRows, st.Windows, st.Writes)
	show, err := engine.Execute("SHOW STREAMS")
	if err != nil {
		return err
	}
	printResult(w, show)
	return nil
}

// seed commits rows [from, to) to every child table, one second apart.
func seed(ctx context.Context, store *storage.Store, source types.TableRef, tables, from, to int, base int64) error {
	for i := from; i < to; i++ {
		rows := make([]types.Row, 0, tables)
		for t := 0; t < tables; t++ {
			rows = append(rows, types.Row{
				Table: fmt.Sprintf("t%d", t+1),
				Tags:  map[string]interface{}{"loc": fmt.Sprintf("loc%d", t%3)},
				Ts:    base + int64(i)*1000,
				Cols:  map[string]interface{}{"i": int64(i)},
			})
		}
		if err := store.Insert(ctx, source, rows); err != nil {
			return err
		}
	}
	return nil
}
