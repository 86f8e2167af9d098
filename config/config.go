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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/cardinalhq/credrunner/internal/apiclient"
	"github.com/cardinalhq/credrunner/internal/authtoken"
	"github.com/cardinalhq/credrunner/internal/batch"
	"github.com/cardinalhq/credrunner/internal/credentials"
	"github.com/cardinalhq/credrunner/internal/debugging"
	"github.com/cardinalhq/credrunner/internal/healthcheck"
	"github.com/cardinalhq/credrunner/internal/jobs"
	"github.com/cardinalhq/credrunner/internal/objstore"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Batch     batch.Config       `mapstructure:"batch"`
	Jobs      jobs.Config        `mapstructure:"jobs"`
	ObjStore  objstore.Config    `mapstructure:"objstore"`
	Extractor apiclient.Config   `mapstructure:"extractor"`
	DES       apiclient.Config   `mapstructure:"des"`
	Partner   apiclient.Config   `mapstructure:"partner"`
	Auth      authtoken.Config   `mapstructure:"auth"`
	Health    healthcheck.Config `mapstructure:"health"`
	Debug     debugging.Config   `mapstructure:"debug"`

	// VaccineSchemaIDs are the IDHP schema names accepted as vaccinations.
	VaccineSchemaIDs  []string      `mapstructure:"vaccineSchemaIDs"`
	OrgCacheTTL       time.Duration `mapstructure:"orgCacheTTL" validate:"gte=0"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval" validate:"gte=0"`
}

func defaults() *Config {
	return &Config{
		Batch:             batch.DefaultConfig(),
		Jobs:              jobs.DefaultConfig(),
		ObjStore:          objstore.DefaultConfig(),
		Extractor:         apiclient.DefaultConfig(),
		DES:               apiclient.DefaultConfig(),
		Partner:           apiclient.DefaultConfig(),
		Auth:              authtoken.DefaultConfig(),
		Health:            healthcheck.DefaultConfig(),
		VaccineSchemaIDs:  credentials.DefaultVaccineSchemaIDs,
		OrgCacheTTL:       5 * time.Minute,
		HeartbeatInterval: time.Minute,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "CREDRUNNER" and the dot character
// in keys is replaced by an underscore. For example, "batch.workers" becomes
// "CREDRUNNER_BATCH_WORKERS".
func Load() (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CREDRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateLeaseTiming(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateLeaseTiming requires every job's stale window to exceed two
// heartbeat intervals, so a live lease is never taken over as stale.
func validateLeaseTiming(cfg *Config) error {
	for _, jobID := range []string{jobs.JobProcess, jobs.JobPersist, jobs.JobCleanup} {
		jc, _ := cfg.Jobs.Job(jobID)
		stale := time.Duration(jc.StaleMins) * time.Minute
		if 2*cfg.HeartbeatInterval >= stale {
			return fmt.Errorf("jobs.%s.staleMins (%d) must be more than twice heartbeatInterval (%s)",
				jobID, jc.StaleMins, cfg.HeartbeatInterval)
		}
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
