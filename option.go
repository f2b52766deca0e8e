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

package tsstream

import (
	"io"

	"github.com/rulego/tsstream/logger"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/types"
)

// Option 表示对引擎默认行为的修改配置。
// 通过函数式选项模式，用户可以灵活地配置引擎的各种行为。
type Option func(*Engine)

// WithConfig 使用完整的配置替换默认配置。
//
// 示例:
//
//	cfg := types.HighThroughputConfig()
//	cfg.DataDir = "/var/lib/tsstream"
//	engine, err := tsstream.Open(tsstream.WithConfig(cfg))
func WithConfig(config types.Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithLowLatency 使用低延迟预设配置。
func WithLowLatency() Option {
	return func(e *Engine) {
		dataDir, db := e.config.DataDir, e.config.DefaultDB
		e.config = types.LowLatencyConfig()
		e.config.DataDir, e.config.DefaultDB = dataDir, db
	}
}

// WithHighThroughput 使用高吞吐预设配置。
func WithHighThroughput() Option {
	return func(e *Engine) {
		dataDir, db := e.config.DataDir, e.config.DefaultDB
		e.config = types.HighThroughputConfig()
		e.config.DataDir, e.config.DefaultDB = dataDir, db
	}
}

// WithDataDir 设置持久化目录，流定义与回填检查点保存在该目录下的 bbolt 文件中。
func WithDataDir(dir string) Option {
	return func(e *Engine) {
		e.config.DataDir = dir
	}
}

// WithDefaultDB 设置表名未指定库名时使用的数据库。
func WithDefaultDB(db string) Option {
	return func(e *Engine) {
		e.config.DefaultDB = db
	}
}

// WithStorage 使用外部创建的表存储，引擎关闭时不会关闭它。
func WithStorage(store *storage.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithBackfillBatchSize 设置历史回填每批扫描的行数。
func WithBackfillBatchSize(size int) Option {
	return func(e *Engine) {
		e.config.BackfillConfig.BatchSize = size
	}
}

// WithWriterPoolSize 设置结果写入协程池大小，所有流共享该协程池。
func WithWriterPoolSize(size int) Option {
	return func(e *Engine) {
		e.config.WriterConfig.PoolSize = size
	}
}

// WithLatePolicy 设置未在流上单独指定时使用的迟到策略。
//
// 参数:
//   - policy: types.LatePolicyUpdate 或 types.LatePolicyDrop
func WithLatePolicy(policy types.LatePolicy) Option {
	return func(e *Engine) {
		e.config.WindowConfig.LatePolicy = policy
	}
}

// WithLogger 设置自定义日志记录器。
//
// 示例:
//
//	customLogger := logger.NewLogger(logger.DEBUG, os.Stderr)
//	engine, err := tsstream.Open(tsstream.WithLogger(customLogger))
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithLogLevel 设置默认日志记录器的级别。
func WithLogLevel(level logger.Level) Option {
	return func(e *Engine) {
		if e.log == nil {
			e.log = logger.GetDefault()
		}
		e.log.SetLevel(level)
	}
}

// WithLogOutput 设置日志输出目标。
//
// 示例:
//
//	logFile, _ := os.OpenFile("tsstream.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
//	engine, err := tsstream.Open(tsstream.WithLogOutput(logFile, logger.INFO))
func WithLogOutput(output io.Writer, level logger.Level) Option {
	return func(e *Engine) {
		e.log = logger.NewLogger(level, output)
	}
}

// WithDiscardLog 禁用所有日志输出。
func WithDiscardLog() Option {
	return func(e *Engine) {
		e.log = logger.NewDiscardLogger()
	}
}
