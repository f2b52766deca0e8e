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
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/rulego/tsstream/checkpoint"
	"github.com/rulego/tsstream/ddl"
	"github.com/rulego/tsstream/logger"
	"github.com/rulego/tsstream/registry"
	"github.com/rulego/tsstream/storage"
	"github.com/rulego/tsstream/stream"
	"github.com/rulego/tsstream/txn"
	"github.com/rulego/tsstream/types"
)

// Engine 是流计算引擎的主要接口。
// 它管理流定义、每个流的回填与实时处理，以及DDL事务的可见性。
//
// 使用示例:
//
//	engine, err := tsstream.Open()
//	res, err := engine.Execute(`CREATE STREAM s1 FILL_HISTORY 1 INTO sta
//	    SUBTABLE(concat('new-', tname))
//	    AS SELECT _wstart, count(*), avg(i) FROM st PARTITION BY tbname tname INTERVAL(1m)`)
//	err = engine.WaitTransactions(ctx)
type Engine struct {
	config types.Config
	log    logger.Logger

	store     *storage.Store
	ownsStore bool

	definitions registry.DefinitionStore
	registry    *registry.Registry
	checkpoints checkpoint.Store
	pool        *ants.Pool
	txns        *txn.Tracker

	mu      sync.RWMutex
	streams map[string]*stream.Stream
	closed  bool
}

// Result 是 Execute 的返回结果，SHOW 语句返回表格形式的行。
type Result struct {
	Columns []string
	Rows    [][]interface{}
	// Stream 是 CREATE STREAM 注册后的定义
	Stream *types.StreamDefinition
}

// StreamInfo 描述一个流的当前状态。
type StreamInfo struct {
	Definition *types.StreamDefinition
	Status     types.StreamStatus
	Err        error
	Stats      stream.Stats
}

// Open 创建引擎并恢复已持久化的流定义。
//
// 参数:
//   - options: 可变长度的配置选项
//
// 返回值:
//   - *Engine: 新创建的引擎
//   - error: 配置非法或持久化目录无法打开时返回错误
//
// 示例:
//
//	// 默认配置，定义与检查点只保存在内存中
//	engine, err := tsstream.Open()
//
//	// 持久化到目录
//	engine, err := tsstream.Open(tsstream.WithDataDir("/var/lib/tsstream"))
func Open(options ...Option) (*Engine, error) {
	e := &Engine{
		config:  types.DefaultConfig(),
		streams: make(map[string]*stream.Stream),
		txns:    txn.NewTracker(),
	}
	for _, option := range options {
		option(e)
	}
	if e.log == nil {
		e.log = logger.GetDefault()
	}
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.store == nil {
		e.store = storage.New()
		e.ownsStore = true
	}
	if err := e.openStores(); err != nil {
		e.closeStores()
		return nil, err
	}
	pool, err := ants.NewPool(e.config.WriterConfig.PoolSize)
	if err != nil {
		e.closeStores()
		return nil, fmt.Errorf("create writer pool: %w", err)
	}
	e.pool = pool
	e.registry = registry.New(e.definitions, e.config)

	defs, err := e.registry.Load()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("load stream definitions: %w", err)
	}
	for _, def := range defs {
		s, err := e.activate(def, true)
		if err != nil {
			// the stream stays Failed until Resume
			e.log.Warn("reactivate stream %s: %v", def.Name, err)
		}
		if s != nil {
			e.streams[def.Name] = s
		}
	}
	if len(defs) > 0 {
		e.log.Info("restored %d stream(s)", len(defs))
	}
	return e, nil
}

func (e *Engine) openStores() error {
	if e.config.DataDir == "" {
		e.definitions = registry.NewMemoryStore()
		e.checkpoints = checkpoint.NewMemoryStore()
		return nil
	}
	defs, err := registry.OpenBoltStore(filepath.Join(e.config.DataDir, "streams.db"))
	if err != nil {
		return err
	}
	e.definitions = defs
	cps, err := checkpoint.OpenBoltStore(filepath.Join(e.config.DataDir, "checkpoints.db"))
	if err != nil {
		return err
	}
	e.checkpoints = cps
	return nil
}

func (e *Engine) closeStores() {
	if e.definitions != nil {
		_ = e.definitions.Close()
	}
	if e.checkpoints != nil {
		_ = e.checkpoints.Close()
	}
}

// activate builds and starts the stream of def. The stream is returned even when Start
// failed so callers can keep it for Resume.
func (e *Engine) activate(def *types.StreamDefinition, resume bool) (*stream.Stream, error) {
	s, err := stream.New(def, stream.Deps{
		Storage:     e.store,
		Checkpoints: e.checkpoints,
		Pool:        e.pool,
		Logger:      e.log,
		Config:      e.config,
	})
	if err != nil {
		return nil, err
	}
	return s, s.Start(resume)
}

// Execute 解析并执行一条DDL语句。
//
// 支持的语句:
//   - CREATE STREAM [IF NOT EXISTS] ...
//   - DROP STREAM [IF EXISTS] <name>
//   - SHOW STREAMS
//   - SHOW TRANSACTIONS
func (e *Engine) Execute(sql string) (*Result, error) {
	stmt, err := ddl.Parse(sql, e.config.DefaultDB)
	if err != nil {
		return nil, types.WrapError(types.KindInvalidSpecification, "", err, "parse")
	}
	switch st := stmt.(type) {
	case *ddl.CreateStream:
		if st.IfNotExists {
			if def, ok := e.registry.Get(st.Def.Name); ok {
				return &Result{Stream: def}, nil
			}
		}
		def, err := e.CreateStream(st.Def)
		if err != nil {
			return nil, err
		}
		return &Result{Stream: def}, nil
	case *ddl.DropStream:
		err := e.DropStream(st.Name)
		if err != nil && st.IfExists && types.IsKind(err, types.KindStreamNotFound) {
			return &Result{}, nil
		}
		return &Result{}, err
	case *ddl.ShowStreams:
		return e.showStreams(), nil
	case *ddl.ShowTransactions:
		return e.showTransactions(), nil
	default:
		return nil, fmt.Errorf("unsupported statement %T", stmt)
	}
}

// CreateStream 注册并启动一个流。
// 返回时订阅与分区路由已经安装，回填在后台继续进行；
// 对应的DDL事务在此之前对 PendingTransactions 可见。
func (e *Engine) CreateStream(def *types.StreamDefinition) (*types.StreamDefinition, error) {
	tx := e.txns.Begin(txn.CreateStream, def.Name)
	defer tx.Commit()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine closed")
	}
	registered, err := e.registry.Create(def)
	if err != nil {
		return nil, err
	}
	s, err := e.activate(registered, false)
	if err != nil {
		if s != nil {
			s.Drop()
		}
		if _, dropErr := e.registry.Drop(registered.Name); dropErr != nil {
			e.log.Warn("roll back stream %s: %v", registered.Name, dropErr)
		}
		return nil, err
	}
	e.streams[registered.Name] = s
	e.log.Info("created stream %s (%s), fill_history=%t", registered.Name, registered.ID, registered.FillHistory)
	return registered, nil
}

// DropStream 停止并删除一个流，其它流不受影响。
func (e *Engine) DropStream(name string) error {
	tx := e.txns.Begin(txn.DropStream, name)
	defer tx.Commit()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.registry.Drop(name); err != nil {
		return err
	}
	if s, ok := e.streams[name]; ok {
		delete(e.streams, name)
		s.Drop()
	}
	e.log.Info("dropped stream %s", name)
	return nil
}

// Resume 重新启动一个处于 Failed 状态的流，存在回填检查点时从检查点继续。
func (e *Engine) Resume(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.registry.Get(name)
	if !ok {
		return types.NewError(types.KindStreamNotFound, name, "no such stream")
	}
	old, ok := e.streams[name]
	if ok && old.Status() != types.StatusFailed {
		return fmt.Errorf("stream %s is %s, only failed streams can be resumed", name, old.Status())
	}
	if ok {
		old.Stop()
	}
	s, err := e.activate(def, true)
	if s != nil {
		e.streams[name] = s
	}
	if err != nil {
		return err
	}
	e.log.Info("resumed stream %s", name)
	return nil
}

// Stream 返回指定名称的运行中流。
func (e *Engine) Stream(name string) (*stream.Stream, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.streams[name]
	return s, ok
}

// ListStreams 按名称顺序返回所有流的状态。
func (e *Engine) ListStreams() []StreamInfo {
	defs := e.registry.List()
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]StreamInfo, 0, len(defs))
	for _, def := range defs {
		info := StreamInfo{Definition: def, Status: types.StatusFailed}
		if s, ok := e.streams[def.Name]; ok {
			info.Status = s.Status()
			info.Err = s.Err()
			info.Stats = s.Stats()
		}
		out = append(out, info)
	}
	return out
}

// PendingTransactions 返回尚未完成的DDL事务数量，相当于 SHOW TRANSACTIONS 的行数。
func (e *Engine) PendingTransactions() int {
	return e.txns.Pending()
}

// Transactions 返回尚未完成的DDL事务。
func (e *Engine) Transactions() []txn.Info {
	return e.txns.List()
}

// WaitTransactions 阻塞直到没有未完成的DDL事务或 ctx 结束。
func (e *Engine) WaitTransactions(ctx context.Context) error {
	return e.txns.Wait(ctx)
}

// Storage 返回引擎使用的表存储。
func (e *Engine) Storage() *storage.Store {
	return e.store
}

// Config 返回引擎配置。
func (e *Engine) Config() types.Config {
	return e.config
}

// Close 停止所有流并释放资源。实时阶段的流会先强制关闭打开的窗口并写出结果；
// 回填中的流保留检查点，下次 Open 时继续。
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	streams := make([]*stream.Stream, 0, len(e.streams))
	for _, s := range e.streams {
		streams = append(streams, s)
	}
	e.streams = make(map[string]*stream.Stream)
	e.mu.Unlock()

	for _, s := range streams {
		if s.Status() == types.StatusLive {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Flush(ctx); err != nil {
				e.log.Warn("flush stream %s: %v", s.Name(), err)
			}
			cancel()
		}
		s.Stop()
	}
	if e.pool != nil {
		e.pool.Release()
	}
	var firstErr error
	if e.registry != nil {
		firstErr = e.registry.Close()
	} else if e.definitions != nil {
		firstErr = e.definitions.Close()
	}
	if e.checkpoints != nil {
		if err := e.checkpoints.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.ownsStore {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) showStreams() *Result {
	res := &Result{Columns: []string{"stream_name", "status", "source", "destination", "fill_history", "partitions", "created_at", "error"}}
	for _, info := range e.ListStreams() {
		def := info.Definition
		errText := ""
		if info.Err != nil {
			errText = info.Err.Error()
		}
		res.Rows = append(res.Rows, []interface{}{
			def.Name, info.Status.String(), def.Source.String(), def.Destination.String(),
			def.FillHistory, info.Stats.Partitions, time.UnixMilli(def.CreatedAt).UTC().Format(time.RFC3339), errText,
		})
	}
	return res
}

func (e *Engine) showTransactions() *Result {
	res := &Result{Columns: []string{"id", "kind", "target", "started_at"}}
	for _, info := range e.txns.List() {
		res.Rows = append(res.Rows, []interface{}{info.ID, string(info.Kind), info.Target, info.StartedAt.UTC().Format(time.RFC3339Nano)})
	}
	return res
}
