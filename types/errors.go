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
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine errors
type ErrorKind int

const (
	KindInvalidSpecification ErrorKind = iota + 1
	KindDuplicateStreamName
	KindStreamNotFound
	KindCutoverUnavailable
	KindBackfillScanFailure
	KindBackfillTimeout
	KindDestinationWriteFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSpecification:
		return "INVALID_SPECIFICATION"
	case KindDuplicateStreamName:
		return "DUPLICATE_STREAM_NAME"
	case KindStreamNotFound:
		return "STREAM_NOT_FOUND"
	case KindCutoverUnavailable:
		return "CUTOVER_UNAVAILABLE"
	case KindBackfillScanFailure:
		return "BACKFILL_SCAN_FAILURE"
	case KindBackfillTimeout:
		return "BACKFILL_TIMEOUT"
	case KindDestinationWriteFailure:
		return "DESTINATION_WRITE_FAILURE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Sentinels for errors.Is
var (
	ErrInvalidSpecification    = &StreamError{Kind: KindInvalidSpecification}
	ErrDuplicateStreamName     = &StreamError{Kind: KindDuplicateStreamName}
	ErrStreamNotFound          = &StreamError{Kind: KindStreamNotFound}
	ErrCutoverUnavailable      = &StreamError{Kind: KindCutoverUnavailable}
	ErrBackfillScanFailure     = &StreamError{Kind: KindBackfillScanFailure}
	ErrBackfillTimeout         = &StreamError{Kind: KindBackfillTimeout}
	ErrDestinationWriteFailure = &StreamError{Kind: KindDestinationWriteFailure}
)

// StreamError is the typed error returned by every engine component.
type StreamError struct {
	Kind    ErrorKind
	Stream  string
	Message string
	Cause   error
}

// NewError builds a StreamError with a formatted message.
func NewError(kind ErrorKind, stream string, format string, args ...interface{}) *StreamError {
	return &StreamError{Kind: kind, Stream: stream, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a StreamError around cause.
func WrapError(kind ErrorKind, stream string, cause error, format string, args ...interface{}) *StreamError {
	return &StreamError{Kind: kind, Stream: stream, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *StreamError) Error() string {
	var builder strings.Builder
	builder.WriteString("[")
	builder.WriteString(e.Kind.String())
	builder.WriteString("]")
	if e.Stream != "" {
		builder.WriteString(" stream ")
		builder.WriteString(e.Stream)
		builder.WriteString(":")
	}
	if e.Message != "" {
		builder.WriteString(" ")
		builder.WriteString(e.Message)
	}
	if e.Cause != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Cause.Error())
	}
	return builder.String()
}

// Is matches any StreamError of the same kind.
func (e *StreamError) Is(target error) bool {
	t, ok := target.(*StreamError)
	return ok && t.Kind == e.Kind
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether Resume may succeed after this error.
func (e *StreamError) Recoverable() bool {
	return e.Kind == KindCutoverUnavailable || e.Kind == KindBackfillTimeout
}

// IsKind reports whether err wraps a StreamError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Kind == kind
}
