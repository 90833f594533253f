// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package driver

import (
	"strings"

	"github.com/caarlos0/env/v6"
)

// EnvConfig wraps the compiler's environment variables in a struct
// instead of a scattered os.Getenv call: CC_INCLUDE supplies a
// colon-separated default include path ahead of the built-in fallback.
type EnvConfig struct {
	Include string `env:"CC_INCLUDE"`
}

// defaultIncludeDirs is consulted only when CC_INCLUDE is unset or empty.
var defaultIncludeDirs = []string{"/usr/include", "/usr/local/include"}

// LoadEnvConfig parses the process environment into an EnvConfig and
// returns its CC_INCLUDE entries split on ':', or defaultIncludeDirs if
// the variable is unset.
func LoadEnvConfig() ([]string, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.Include == "" {
		return defaultIncludeDirs, nil
	}
	return strings.Split(cfg.Include, ":"), nil
}
