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

package joinerrors

import (
	"github.com/pingcap/errors"
)

// error definitions.
var (
	ErrStatsUnavailable    = errors.Normalize("statistics unavailable for relation '%s'", errors.RFCCodeText("Join:StatsUnavailable"))
	ErrUnsupportedJoinType = errors.Normalize("unsupported join: %s", errors.RFCCodeText("Join:UnsupportedJoinType"))
	ErrOutOfMemory         = errors.Normalize("memory exceeded for '%s', quota %d bytes, consumed %d bytes", errors.RFCCodeText("Join:OutOfMemory"))
	ErrIncompatibleHint    = errors.Normalize("join hint %s is incompatible with %s", errors.RFCCodeText("Join:IncompatibleHint"))
	ErrInvalidJoinSpec     = errors.Normalize("invalid join: %s", errors.RFCCodeText("Join:InvalidJoinSpec"))
	ErrInvalidConfig       = errors.Normalize("invalid config: %s", errors.RFCCodeText("Join:InvalidConfig"))
	ErrHintSyntax          = errors.Normalize("hint syntax error at offset %d: %s", errors.RFCCodeText("Join:HintSyntax"))
	ErrDatabaseExists      = errors.Normalize("database '%s' already exists", errors.RFCCodeText("Catalog:DatabaseExists"))
	ErrUnknownDatabase     = errors.Normalize("unknown database '%s'", errors.RFCCodeText("Catalog:UnknownDatabase"))
	ErrTableExists         = errors.Normalize("table '%s.%s' already exists", errors.RFCCodeText("Catalog:TableExists"))
	ErrUnknownTable        = errors.Normalize("unknown table '%s.%s'", errors.RFCCodeText("Catalog:UnknownTable"))
)
