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
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/rulego/tsstream"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printConfig(os.Stdout, cfg)
			return nil
		},
	})
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

func printConfig(w io.Writer, cfg types.Config) {
	table := newTable(w, []string{"name", "value"})
	rows := [][]string{
		{"defaultDB", cfg.DefaultDB},
		{"dataDir", cfg.DataDir},
		{"accountID", cast.ToString(cfg.AccountID)},
		{"backfill.batchSize", cast.ToString(cfg.BackfillConfig.BatchSize)},
		{"backfill.checkpointEvery", cast.ToString(cfg.BackfillConfig.CheckpointEvery)},
		{"backfill.timeout", cfg.BackfillConfig.Timeout.String()},
		{"backfill.retry.maxRetries", cast.ToString(cfg.BackfillConfig.Retry.MaxRetries)},
		{"writer.poolSize", cast.ToString(cfg.WriterConfig.PoolSize)},
		{"writer.retryBudget", cast.ToString(cfg.WriterConfig.RetryBudget)},
		{"writer.cacheSize", cast.ToString(cfg.WriterConfig.CacheSize)},
		{"window.latePolicy", string(cfg.WindowConfig.LatePolicy)},
		{"window.retention", cfg.WindowConfig.Retention.String()},
		{"window.idleTimeout", cfg.WindowConfig.IdleTimeout.String()},
		{"window.tickInterval", cfg.WindowConfig.TickInterval.String()},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// printResult renders the rows of a SHOW statement.
func printResult(w io.Writer, res *tsstream.Result) {
	table := newTable(w, res.Columns)
	for _, row := range res.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = cast.ToString(v)
		}
		table.Append(line)
	}
	table.Render()
}

// printDestination renders every row of a destination super table.
func printDestination(w io.Writer, store *storage.Store, ref types.TableRef) error {
	schema, err := store.Schema(ref)
	if err != nil {
		return err
	}
	rows, err := store.Results(ref, "")
	if err != nil {
		return err
	}
	header := append([]string{"subtable"}, schema.Columns...)
	table := newTable(w, header)
	for _, r := range rows {
		line := []string{r.Subtable}
		for _, col := range schema.Columns {
			line = append(line, format(r.Values[col]))
		}
		table.Append(line)
	}
	table.SetFooter(append([]string{fmt.Sprintf("%d rows", len(rows))}, make([]string, len(schema.Columns))...))
	table.Render()
	return nil
}

func format(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%.4f", x)
	default:
		return cast.ToString(v)
	}
}
