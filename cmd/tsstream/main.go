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

// Command tsstream runs stream definitions against an in-process table store.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rulego/tsstream"
	"github.com/rulego/tsstream/logger"
	"github.com/rulego/tsstream/types"
)

var (
	configFile string
	logLevel   string
	dataDir    string
	v          = viper.New()
)

var Command = &cobra.Command{
	Use:           "tsstream",
	Short:         "continuous window queries with history backfill",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := Command.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error, off")
	flags.StringVar(&dataDir, "data-dir", "", "directory for stream definitions and checkpoints")
	_ = v.BindPFlag("dataDir", flags.Lookup("data-dir"))
}

// loadConfig merges the config file and TSSTREAM_* environment variables over the defaults.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	v.SetEnvPrefix("TSSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openEngine() (*tsstream.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(logger.ParseLevel(logLevel), os.Stderr)
	return tsstream.Open(tsstream.WithConfig(cfg), tsstream.WithLogger(log))
}

func main() {
	if err := Command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
