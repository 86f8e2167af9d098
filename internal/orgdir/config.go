// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package orgdir

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/cardinalhq/credrunner/internal/mapping"
)

const DefaultCleanupDays = 30

type Partner struct {
	// ID names the partner; partner-sourced rows carry it as file_name.
	ID string `json:"id" validate:"required,max=64"`
	// Key names the partner API key held by the data-submission API.
	Key string `json:"key" validate:"required"`
}

// Config is the per-organization pipeline configuration stored in
// organizations.config.
type Config struct {
	Mappers      map[string]mapping.Template `json:"mappers,omitempty"`
	Manufacturer map[string]string           `json:"manufacturer,omitempty"`
	EmployeeType string                      `json:"employeeType,omitempty" validate:"max=15"`
	Process      bool                        `json:"process"`
	Partners     []Partner                   `json:"partners,omitempty" validate:"dive"`
	Cleanup      int                         `json:"cleanup,omitempty" validate:"gte=0"`
}

// CleanupDays is the retention window, defaulting to 30 days.
func (c Config) CleanupDays() int {
	if c.Cleanup <= 0 {
		return DefaultCleanupDays
	}
	return c.Cleanup
}

// Mapper returns the template registered under key.
func (c Config) Mapper(key string) (mapping.Template, bool) {
	t, ok := c.Mappers[key]
	return t, ok
}

type Organization struct {
	ID     string
	Config Config
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode organization config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid organization config: %w", err)
	}
	return cfg, nil
}
