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

package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrMapperNotFound means the organization has no template for the
	// credential's mapper id. The source is kept until the config is fixed.
	ErrMapperNotFound = errors.New("mapper not found")

	// ErrMalformedSchemaID means a schema id lacks the two key=value
	// segments the mapper id is built from.
	ErrMalformedSchemaID = errors.New("malformed credential schema id")

	// ErrBundleTooShort means the bundle has fewer than three credentials.
	ErrBundleTooShort = errors.New("bundle has fewer than 3 credentials")
)

type MapperNotFoundError struct {
	Key string
}

func (e *MapperNotFoundError) Error() string {
	return fmt.Sprintf("no mapper %q in organization config", e.Key)
}

func (e *MapperNotFoundError) Unwrap() error {
	return ErrMapperNotFound
}

// Slot names one of the four roles a bundle must fill.
type Slot string

const (
	SlotConsent     Slot = "consentType"
	SlotIdentity    Slot = "id"
	SlotVaccination Slot = "vaccination"
	SlotMetadata    Slot = "vaccination metadata"
)

type MissingSlotError struct {
	Slot Slot
}

func (e *MissingSlotError) Error() string {
	return fmt.Sprintf("missing %s credentials", e.Slot)
}

// InvalidRecordError is an assembled record that fails validation.
type InvalidRecordError struct {
	Err error
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid holder record: %v", e.Err)
}

func (e *InvalidRecordError) Unwrap() error {
	return e.Err
}

// IsStructural reports whether err means the bundle can never be processed,
// so its source should be deleted.
func IsStructural(err error) bool {
	var ms *MissingSlotError
	return errors.Is(err, ErrBundleTooShort) || errors.As(err, &ms)
}
