// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/config"
	"github.com/pingcap/joinstrategy/pkg/metrics"
	"github.com/pingcap/joinstrategy/pkg/util"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	// FlagConfig is the name of config flag.
	FlagConfig = "config"
	// FlagLogLevel is the name of log-level flag.
	FlagLogLevel = "log-level"
	// FlagLogFormat is the name of log-format flag.
	FlagLogFormat = "log-format"
	// FlagStatusAddr is the name of status-addr flag.
	FlagStatusAddr = "status-addr"

	statusShutdownTimeout = 5 * time.Second
)

// cliApp holds the state shared by all sub commands.
type cliApp struct {
	cfg    *config.Config
	status *http.Server
	wg     util.WaitGroupWrapper
}

// defineCommonFlags defines the flags shared by all sub commands.
func defineCommonFlags(flags *pflag.FlagSet) {
	flags.String(FlagConfig, "", "Path of the TOML config file")
	flags.StringP(FlagLogLevel, "L", logutil.DefaultLogLevel, "Set the log level")
	flags.String(FlagLogFormat, logutil.DefaultLogFormat, "Set the log format")
	flags.String(FlagStatusAddr, "",
		"Set the HTTP listening address for the metrics service. Set to empty string to disable")
}

// init loads the config, sets up the logger and starts the status server.
func (a *cliApp) init(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	a.cfg = config.NewConfig()
	confPath, err := flags.GetString(FlagConfig)
	if err != nil {
		return errors.Trace(err)
	}
	if confPath != "" {
		if err := a.cfg.Load(confPath); err != nil {
			return err
		}
	}
	if flags.Changed(FlagLogLevel) {
		a.cfg.Log.Level, _ = flags.GetString(FlagLogLevel)
	}
	if flags.Changed(FlagLogFormat) {
		a.cfg.Log.Format, _ = flags.GetString(FlagLogFormat)
	}
	if flags.Changed(FlagStatusAddr) {
		a.cfg.Status.MetricsAddr, _ = flags.GetString(FlagStatusAddr)
	}
	if err := a.cfg.Valid(); err != nil {
		return err
	}
	a.cfg.Adjust()
	if err := logutil.InitLogger(a.cfg.Log.ToLogConfig()); err != nil {
		return errors.Trace(err)
	}
	return a.startStatusServer(a.cfg.Status.MetricsAddr)
}

func (a *cliApp) startStatusServer(addr string) error {
	if addr == "" {
		return nil
	}
	registry := prometheus.NewRegistry()
	if err := metrics.RegisterMetrics(registry); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Trace(err)
	}
	a.status = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logutil.BgLogger().Info("start status server", zap.String("address", l.Addr().String()))
	a.wg.Run(func() {
		if err := a.status.Serve(l); err != nil && err != http.ErrServerClosed {
			logutil.BgLogger().Warn("status server stopped", zap.Error(err))
		}
	})
	return nil
}

func (a *cliApp) close(*cobra.Command, []string) error {
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		if err := a.status.Shutdown(ctx); err != nil {
			logutil.BgLogger().Warn("shutdown status server failed", zap.Error(err))
		}
	}
	a.wg.Wait()
	return nil
}
