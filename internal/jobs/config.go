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

package jobs

const (
	JobProcess = "process"
	JobPersist = "persist"
	JobCleanup = "cleanup"
)

// JobConfig schedules one orchestrator. OrgID keys the lease row and
// StaleMins is how long a running lease may go without a heartbeat before
// another run takes it over. An empty Schedule leaves the job unscheduled.
type JobConfig struct {
	Schedule  string `mapstructure:"schedule"`
	OrgID     string `mapstructure:"orgId" validate:"required"`
	StaleMins int    `mapstructure:"staleMins" validate:"gte=1"`
}

type Config struct {
	Process JobConfig `mapstructure:"process"`
	Persist JobConfig `mapstructure:"persist"`
	Cleanup JobConfig `mapstructure:"cleanup"`
	// OrgConcurrency bounds how many organizations one run works on at once.
	OrgConcurrency int `mapstructure:"orgConcurrency" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		Process:        JobConfig{Schedule: "*/10 * * * *", OrgID: "credrunner", StaleMins: 60},
		Persist:        JobConfig{Schedule: "0 * * * *", OrgID: "credrunner", StaleMins: 60},
		Cleanup:        JobConfig{Schedule: "30 2 * * *", OrgID: "credrunner", StaleMins: 120},
		OrgConcurrency: 4,
	}
}

// Job returns the config for jobID.
func (c Config) Job(jobID string) (JobConfig, bool) {
	switch jobID {
	case JobProcess:
		return c.Process, true
	case JobPersist:
		return c.Persist, true
	case JobCleanup:
		return c.Cleanup, true
	}
	return JobConfig{}, false
}
