// Copyright 2020 The Topomap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPeriod is returned when the broadcast period is not a positive number
	// of seconds.
	ErrInvalidPeriod = errors.New("period must be a positive number of seconds")
	// ErrNotLoaded is returned by Start when no node snapshot has been loaded.
	ErrNotLoaded = errors.New("node snapshot not loaded")
)

// ConfigError rejects a runtime configuration change. The previous value stays in
// effect.
type ConfigError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
