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

package logutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLogger(t *testing.T) {
	fileCfg := NewFileLogConfig(DefaultLogMaxSize)
	fileCfg.Filename = filepath.Join(t.TempDir(), "join.log")
	conf := NewLogConfig("debug", "json", fileCfg, true)
	require.NoError(t, InitLogger(conf))
	require.Equal(t, zap.DebugLevel, log.GetLevel())
	BgLogger().Info("logger replaced")

	conf = NewLogConfig(DefaultLogLevel, DefaultLogFormat, FileLogConfig{}, false)
	require.NoError(t, InitLogger(conf))
	require.Equal(t, zap.InfoLevel, log.GetLevel())

	conf = NewLogConfig(DefaultLogLevel, "yaml", FileLogConfig{}, false)
	require.Error(t, InitLogger(conf))
}

func TestLoggerFromContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := context.WithValue(context.Background(), CtxLogKey, zap.New(core))
	ctx = WithCategory(ctx, "join")
	ctx = WithJoinID(ctx, "j1")
	Logger(ctx).Info("hello")

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "join", fields[LogFieldCategory])
	require.Equal(t, "j1", fields[LogFieldJoinID])

	require.Equal(t, log.L(), Logger(context.Background()))
}
