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

package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{OFF, "OFF"},
		{Level(999), "UNKNOWN"},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, test.level.String())
		if test.level != Level(999) {
			assert.Equal(t, test.level, ParseLevel(test.expected))
		}
	}
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(INFO, &buf)
	require.NotNil(t, log)

	log.Info("info message with %d number", 42)
	output := buf.String()
	assert.Contains(t, output, "info message with 42 number")
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "tsstream")
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		loggerLevel  Level
		messageLevel Level
		shouldLog    bool
	}{
		{DEBUG, DEBUG, true},
		{DEBUG, ERROR, true},
		{INFO, DEBUG, false},
		{INFO, INFO, true},
		{INFO, WARN, true},
		{WARN, INFO, false},
		{WARN, WARN, true},
		{ERROR, WARN, false},
		{ERROR, ERROR, true},
		{OFF, ERROR, false},
	}

	for _, test := range tests {
		var buf bytes.Buffer
		log := NewLogger(test.loggerLevel, &buf)
		switch test.messageLevel {
		case DEBUG:
			log.Debug("test message")
		case INFO:
			log.Info("test message")
		case WARN:
			log.Warn("test message")
		case ERROR:
			log.Error("test message")
		}
		assert.Equal(t, test.shouldLog, buf.Len() > 0, "logger %s, message %s", test.loggerLevel, test.messageLevel)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(DEBUG, &buf)
	child := With(log, "stream", "s1")

	log.SetLevel(ERROR)
	log.Warn("warn message")
	child.Info("child info")
	assert.Empty(t, buf.String())

	child.Error("child error")
	assert.Contains(t, buf.String(), "child error")
	assert.Contains(t, buf.String(), "s1")
}

func TestWith_DiscardLogger(t *testing.T) {
	log := NewDiscardLogger()
	assert.Same(t, log, With(log, "stream", "s1"))
	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")
	log.SetLevel(DEBUG)
}

func TestFromZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core), WARN)

	log.Info("dropped")
	log.Warn("kept %s", "warning")
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept warning", entries[0].Message)

	log.SetLevel(DEBUG)
	log.Debug("now visible")
	assert.Equal(t, 2, logs.Len())
}

func TestGlobalLogger(t *testing.T) {
	original := GetDefault()
	defer SetDefault(original)

	var buf bytes.Buffer
	testLogger := NewLogger(DEBUG, &buf)
	SetDefault(testLogger)
	assert.Same(t, testLogger, GetDefault())

	Debug("global debug message")
	Info("global info message")
	Warn("global warn message")
	Error("global error message")

	for _, msg := range []string{"global debug message", "global info message", "global warn message", "global error message"} {
		assert.Contains(t, buf.String(), msg)
	}
}
