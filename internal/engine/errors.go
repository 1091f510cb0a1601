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

package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("engine: key not found")
	ErrClosed    = errors.New("engine: engine is closed")
	ErrEmptyKey  = errors.New("engine: empty key is not allowed")
	ErrBadCheckpoint = errors.New("engine: checkpoint directory is not empty")
)

// UnknownCFError is returned when a caller names a column family the
// engine did not open.
type UnknownCFError struct {
	CF string
}

func (e *UnknownCFError) Error() string {
	return fmt.Sprintf("engine: unknown column family %q", e.CF)
}
