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

/*
Package tsstream 是一个面向时序数据库的持续查询（流计算）引擎，支持历史数据回填。

一个流把源超级表上按时间窗口聚合的结果持续写入目标超级表，每个分区写入一张子表。
创建流时引擎在源表上原子地建立订阅并记录提交序号快照（切换点）：序号小于切换点的
历史行由回填扫描按 (ts, seq) 顺序读取，之后提交的行通过订阅实时到达，
回填期间排队，回填完成后按顺序回放，因此每一行恰好被计算一次。

# 入门示例

	engine, err := tsstream.Open(tsstream.WithLogLevel(logger.INFO))
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	st := types.TableRef{DB: "d1", Name: "st"}
	_ = engine.Storage().CreateSuperTable(st, storage.Schema{Columns: []string{"i"}})
	_ = engine.Storage().Insert(ctx, st, rows)

	_, err = engine.Execute(`CREATE STREAM s1 FILL_HISTORY 1 INTO sta
		SUBTABLE(concat('new-', tname))
		AS SELECT _wstart, count(*), avg(i) FROM st PARTITION BY tbname tname INTERVAL(1m)`)
	if err != nil {
		panic(err)
	}
	_ = engine.WaitTransactions(ctx)

目标表 d1.sta 中每个源子表 t1 对应一张名为 new-t1_1.d1.sta_<hash> 的子表。

# DDL

	CREATE STREAM [IF NOT EXISTS] <name>
	    [TRIGGER AT_ONCE | WINDOW_CLOSE | MAX_DELAY <dur>]
	    [WATERMARK <dur>] [IGNORE EXPIRED 0|1] [FILL_HISTORY 0|1]
	    INTO <dest> [SUBTABLE(<expr>)]
	    AS SELECT <items> FROM <source> [PARTITION BY <expr> [<alias>]]
	    INTERVAL(<dur>[, <offset>]) [SLIDING(<dur>)]
	DROP STREAM [IF EXISTS] <name>
	SHOW STREAMS
	SHOW TRANSACTIONS

时长单位: a (毫秒), s, m, h, d。

# 聚合函数

count, sum, avg, min, max, first, last, spread。sum 与 avg 使用补偿求和，
相同输入得到逐位相同的结果。

# 迟到数据

窗口在水位线越过窗口结束时间时关闭并输出。默认策略 update（IGNORE EXPIRED 0）
保留已关闭窗口一段时间，迟到行重新打开窗口并覆盖目标行；drop（IGNORE EXPIRED 1）
丢弃所有迟到行并计数。

# 持久化

WithDataDir 指定目录后，流定义与回填检查点保存在 bbolt 文件中。重新 Open 时
流会自动恢复，回填中断的流从最近的检查点继续。
*/
package tsstream
