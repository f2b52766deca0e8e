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

package types

import (
	"fmt"
	"time"
)

// Config 流引擎配置
type Config struct {
	// DefaultDB 未指定库名时使用的数据库
	DefaultDB string `json:"defaultDB" mapstructure:"defaultDB"`
	// DataDir bbolt 持久化目录，为空时定义与检查点只保存在内存中
	DataDir string `json:"dataDir" mapstructure:"dataDir"`
	// AccountID 账户编号，作为目标子表名中库名前的一段
	AccountID int `json:"accountID" mapstructure:"accountID"`

	BackfillConfig BackfillConfig `json:"backfillConfig" mapstructure:"backfill"`
	WriterConfig   WriterConfig   `json:"writerConfig" mapstructure:"writer"`
	WindowConfig   WindowConfig   `json:"windowConfig" mapstructure:"window"`
}

// BackfillConfig 历史回填配置
type BackfillConfig struct {
	BatchSize       int           `json:"batchSize" mapstructure:"batchSize"`             // 每批扫描行数
	CheckpointEvery int           `json:"checkpointEvery" mapstructure:"checkpointEvery"` // 每多少批保存一次检查点，0 表示不保存
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`                 // 整个回填的超时时间，0 表示不限
	Retry           RetryConfig   `json:"retry" mapstructure:"retry"`                     // 扫描失败重试
}

// WriterConfig 结果写入配置
type WriterConfig struct {
	PoolSize    int         `json:"poolSize" mapstructure:"poolSize"`       // 写入协程池大小
	Retry       RetryConfig `json:"retry" mapstructure:"retry"`             // 单次写入的重试
	RetryBudget int         `json:"retryBudget" mapstructure:"retryBudget"` // 连续失败轮数上限，超过后流进入 Failed
	CacheSize   int         `json:"cacheSize" mapstructure:"cacheSize"`     // 子表名缓存大小
}

// WindowConfig 窗口与水位线配置
type WindowConfig struct {
	LatePolicy   LatePolicy    `json:"latePolicy" mapstructure:"latePolicy"`     // 默认迟到策略
	Retention    time.Duration `json:"retention" mapstructure:"retention"`       // 已关闭窗口保留时长
	IdleTimeout  time.Duration `json:"idleTimeout" mapstructure:"idleTimeout"`   // 数据源空闲超时，0 表示禁用
	TickInterval time.Duration `json:"tickInterval" mapstructure:"tickInterval"` // 空闲检测与 max_delay 触发的时钟间隔
}

// RetryConfig 退避重试配置
type RetryConfig struct {
	MinBackoff time.Duration `json:"minBackoff" mapstructure:"minBackoff"`
	MaxBackoff time.Duration `json:"maxBackoff" mapstructure:"maxBackoff"`
	MaxRetries int           `json:"maxRetries" mapstructure:"maxRetries"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		DefaultDB: "d1",
		AccountID: 1,
		BackfillConfig: BackfillConfig{
			BatchSize:       4096,
			CheckpointEvery: 16,
			Retry: RetryConfig{
				MinBackoff: 50 * time.Millisecond,
				MaxBackoff: 2 * time.Second,
				MaxRetries: 5,
			},
		},
		WriterConfig: WriterConfig{
			PoolSize: 64,
			Retry: RetryConfig{
				MinBackoff: 20 * time.Millisecond,
				MaxBackoff: time.Second,
				MaxRetries: 3,
			},
			RetryBudget: 10,
			CacheSize:   4096,
		},
		WindowConfig: WindowConfig{
			LatePolicy:   LatePolicyUpdate,
			Retention:    10 * time.Minute,
			TickInterval: 100 * time.Millisecond,
		},
	}
}

// LowLatencyConfig 低延迟配置预设
func LowLatencyConfig() Config {
	config := DefaultConfig()
	config.BackfillConfig.BatchSize = 512
	config.WriterConfig.Retry.MinBackoff = 5 * time.Millisecond
	config.WriterConfig.Retry.MaxBackoff = 100 * time.Millisecond
	config.WindowConfig.TickInterval = 10 * time.Millisecond
	return config
}

// HighThroughputConfig 高吞吐配置预设
func HighThroughputConfig() Config {
	config := DefaultConfig()
	config.BackfillConfig.BatchSize = 32768
	config.BackfillConfig.CheckpointEvery = 64
	config.WriterConfig.PoolSize = 256
	config.WriterConfig.CacheSize = 65536
	return config
}

// Validate 检查配置取值
func (c Config) Validate() error {
	if c.BackfillConfig.BatchSize <= 0 {
		return fmt.Errorf("backfill batch size must be positive, got %d", c.BackfillConfig.BatchSize)
	}
	if c.BackfillConfig.CheckpointEvery < 0 {
		return fmt.Errorf("checkpoint frequency must not be negative, got %d", c.BackfillConfig.CheckpointEvery)
	}
	if c.AccountID <= 0 {
		return fmt.Errorf("account id must be positive, got %d", c.AccountID)
	}
	if c.WriterConfig.PoolSize <= 0 {
		return fmt.Errorf("writer pool size must be positive, got %d", c.WriterConfig.PoolSize)
	}
	if c.WriterConfig.CacheSize <= 0 {
		return fmt.Errorf("subtable cache size must be positive, got %d", c.WriterConfig.CacheSize)
	}
	if c.WriterConfig.RetryBudget <= 0 {
		return fmt.Errorf("write retry budget must be positive, got %d", c.WriterConfig.RetryBudget)
	}
	switch c.WindowConfig.LatePolicy {
	case LatePolicyUpdate, LatePolicyDrop:
	default:
		return fmt.Errorf("unknown late policy %q", c.WindowConfig.LatePolicy)
	}
	if c.WindowConfig.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.WindowConfig.TickInterval)
	}
	return nil
}
