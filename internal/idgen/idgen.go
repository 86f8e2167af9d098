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

// Package idgen hands out process instance ids and per-run transaction ids.
package idgen

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

var (
	flakeOnce sync.Once
	flake     *sonyflake.Sonyflake
	flakeErr  error
)

func newFlake() (*sonyflake.Sonyflake, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create sonyflake instance")
	}
	return sf, nil
}

// InstanceID returns a positive id, roughly time ordered, used to tag this
// process in logs and metrics. It falls back to a random value if sonyflake
// cannot determine a machine id.
func InstanceID() int64 {
	flakeOnce.Do(func() {
		flake, flakeErr = newFlake()
	})
	if flakeErr != nil {
		return rand.Int64()
	}
	v, err := flake.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// NewTxID returns an id correlating all log lines of one orchestrator run.
func NewTxID() string {
	return uuid.NewString()
}
