// Copyright 2025 The axfor Authors
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

package importer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedgerRecordsAndDetectsIngested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenLedger(path)
	require.NoError(t, err)
	defer l.Close()

	done, err := l.AlreadyIngested(1, 42)
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, l.MarkIngested(1, 42, "/tmp/a.sst"))

	done, err = l.AlreadyIngested(1, 42)
	require.NoError(t, err)
	require.True(t, done)

	// A different region or checksum is unaffected.
	done, err = l.AlreadyIngested(2, 42)
	require.NoError(t, err)
	require.False(t, done)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.MarkIngested(7, 9, "/tmp/b.sst"))
	require.NoError(t, l.Close())

	l2, err := OpenLedger(path)
	require.NoError(t, err)
	defer l2.Close()

	done, err := l2.AlreadyIngested(7, 9)
	require.NoError(t, err)
	require.True(t, done)
}
