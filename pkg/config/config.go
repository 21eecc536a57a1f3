// Copyright 2017 PingCAP, Inc.
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

package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/joinstrategy/pkg/util/dbterror/joinerrors"
	"github.com/pingcap/joinstrategy/pkg/util/logutil"
	"github.com/shirou/gopsutil/v3/mem"
)

// Config contains configuration options.
type Config struct {
	Log    Log    `toml:"log" json:"log"`
	Join   Join   `toml:"join" json:"join"`
	Status Status `toml:"status" json:"status"`
}

// Log is the log section of config.
type Log struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log format. either json or text.
	Format string `toml:"format" json:"format"`
	// Disable automatic timestamps in output.
	DisableTimestamp bool `toml:"disable-timestamp" json:"disable-timestamp"`
	// File log config.
	File logutil.FileLogConfig `toml:"file" json:"file"`
}

// Status is the status section of the config.
type Status struct {
	// MetricsAddr is the listen address of the /metrics endpoint, empty disables it.
	MetricsAddr string `toml:"metrics-addr" json:"metrics-addr"`
}

// Join is the join section of the config. It drives strategy selection and
// the executors.
type Join struct {
	// BroadcastThreshold is the max byte size of a relation to broadcast,
	// a negative value disables size based broadcast.
	BroadcastThreshold ByteSize `toml:"broadcast-threshold" json:"broadcast-threshold"`
	// PreferSortMergeJoin disables the size based shuffle hash join.
	PreferSortMergeJoin  bool    `toml:"prefer-sort-merge-join" json:"prefer-sort-merge-join"`
	ShuffleHashSizeRatio float64 `toml:"shuffle-hash-size-ratio" json:"shuffle-hash-size-ratio"`
	WorkerCount          int     `toml:"worker-count" json:"worker-count"`
	ShufflePartitions    int     `toml:"shuffle-partitions" json:"shuffle-partitions"`
	// PartitionMemoryBudget limits the build side of one shuffle hash partition.
	// 0 is resolved from the available system memory by Adjust.
	PartitionMemoryBudget ByteSize `toml:"partition-memory-budget" json:"partition-memory-budget"`
	// MemQuota limits the memory of one join executor, 0 means unlimited.
	MemQuota ByteSize `toml:"mem-quota" json:"mem-quota"`
	// SoftMemoryLimit is the memory of all running joins above which a
	// warning is logged, 0 means never.
	SoftMemoryLimit          ByteSize      `toml:"soft-memory-limit" json:"soft-memory-limit"`
	StatsUnavailableFallback bool          `toml:"stats-unavailable-fallback" json:"stats-unavailable-fallback"`
	StatsCacheTTL            time.Duration `toml:"stats-cache-ttl" json:"stats-cache-ttl"`
	ChunkSize                int           `toml:"chunk-size" json:"chunk-size"`
}

// ByteSize is a size in bytes, written as a human readable string such as
// "10MiB" in config files.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return errors.Trace(err)
		}
		*b = ByteSize(v)
		return nil
	}
	v, err := units.RAMInBytes(s)
	if err != nil {
		return errors.Trace(err)
	}
	*b = ByteSize(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

var byteUnits = []struct {
	size   int64
	suffix string
}{
	{units.PiB, "PiB"},
	{units.TiB, "TiB"},
	{units.GiB, "GiB"},
	{units.MiB, "MiB"},
	{units.KiB, "KiB"},
}

// String implements fmt.Stringer interface. It uses the largest binary unit
// that divides the size exactly, otherwise the plain byte count, so that the
// text parses back to the same value.
func (b ByteSize) String() string {
	v := int64(b)
	if v > 0 {
		for _, u := range byteUnits {
			if v%u.size == 0 {
				return strconv.FormatInt(v/u.size, 10) + u.suffix
			}
		}
	}
	return strconv.FormatInt(v, 10)
}

const (
	// DefaultBroadcastThreshold is 10MiB, as spark.sql.autoBroadcastJoinThreshold.
	DefaultBroadcastThreshold ByteSize = 10 * units.MiB
	// DefaultChunkSize is the default max rows of a chunk.
	DefaultChunkSize = 1024
	// partitionBudgetDivisor splits the available memory among partitions.
	partitionBudgetDivisor = 16
)

var defaultConf = Config{
	Log: Log{
		Level:  logutil.DefaultLogLevel,
		Format: logutil.DefaultLogFormat,
		File:   logutil.NewFileLogConfig(logutil.DefaultLogMaxSize),
	},
	Join: Join{
		BroadcastThreshold:   DefaultBroadcastThreshold,
		PreferSortMergeJoin:  true,
		ShuffleHashSizeRatio: 3,
		WorkerCount:          4,
		ShufflePartitions:    16,
		StatsCacheTTL:        30 * time.Second,
		ChunkSize:            DefaultChunkSize,
	},
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// Load loads config options from a toml file.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		items := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			items = append(items, item.String())
		}
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("unknown items " + strings.Join(items, ", "))
	}
	return nil
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	return c.Join.Valid()
}

// Valid checks if the join section is valid.
func (j *Join) Valid() error {
	switch {
	case j.ShuffleHashSizeRatio < 1:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("shuffle-hash-size-ratio should be at least 1")
	case j.WorkerCount < 1:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("worker-count should be positive")
	case j.ShufflePartitions < 1:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("shuffle-partitions should be positive")
	case j.PartitionMemoryBudget < 0:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("partition-memory-budget should not be negative")
	case j.MemQuota < 0:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("mem-quota should not be negative")
	case j.SoftMemoryLimit < 0:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("soft-memory-limit should not be negative")
	case j.StatsCacheTTL < 0:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("stats-cache-ttl should not be negative")
	case j.ChunkSize < 1:
		return joinerrors.ErrInvalidConfig.GenWithStackByArgs("chunk-size should be positive")
	}
	return nil
}

// Adjust resolves derived values. A zero partition memory budget becomes a
// share of the available system memory; it stays 0 (unlimited) if the
// memory cannot be read.
func (c *Config) Adjust() {
	if c.Join.PartitionMemoryBudget == 0 {
		c.Join.PartitionMemoryBudget = DerivePartitionMemoryBudget()
	}
}

// DerivePartitionMemoryBudget returns a share of the available system memory.
func DerivePartitionMemoryBudget() ByteSize {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		logutil.BgLogger().Warn("cannot read system memory, partition memory budget is unlimited")
		return 0
	}
	return ByteSize(vm.Available / partitionBudgetDivisor)
}

// ToLogConfig converts *Log to *logutil.LogConfig.
func (l *Log) ToLogConfig() *logutil.LogConfig {
	return logutil.NewLogConfig(l.Level, l.Format, l.File, l.DisableTimestamp)
}
