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

package ddl

import "github.com/rulego/tsstream/types"

// Statement is one parsed DDL statement.
type Statement interface {
	statement()
}

// CreateStream is CREATE STREAM.
type CreateStream struct {
	IfNotExists bool
	Def         *types.StreamDefinition
}

// DropStream is DROP STREAM.
type DropStream struct {
	IfExists bool
	Name     string
}

// ShowStreams is SHOW STREAMS.
type ShowStreams struct{}

// ShowTransactions is SHOW TRANSACTIONS.
type ShowTransactions struct{}

func (*CreateStream) statement()     {}
func (*DropStream) statement()       {}
func (*ShowStreams) statement()      {}
func (*ShowTransactions) statement() {}
