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

package coprocessor

import "errors"

// ErrOutdated is returned by an executor's Next when the request's
// deadline has already passed; checked at each Next() boundary of every
// executor except Limit rather
// than only once at the top of the pipeline, so a slow upstream
// aggregation doesn't run arbitrarily long past its deadline.
var ErrOutdated = errors.New("coprocessor: request outdated")
