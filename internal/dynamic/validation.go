// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// MaxNameLength bounds class and property names.
const MaxNameLength = 255

// Error codes specific to the object model.
const (
	CodeUnpersistedReference = "UNPERSISTED_REFERENCE"
	CodeMissingReference     = "MISSING_REFERENCE"
	CodeClassMismatch        = "CLASS_MISMATCH"
	CodeInvalidName          = "INVALID_NAME"
	CodeUnknownProperty      = "UNKNOWN_PROPERTY"
)

// ValidateName checks that a class or property name is non-empty, valid UTF-8,
// free of control characters and within MaxNameLength.
func ValidateName(field, name string) error {
	if name == "" {
		return repo.InvalidArgument(CodeInvalidName, field, "%s cannot be empty", field)
	}
	if !utf8.ValidString(name) {
		return repo.InvalidArgument(CodeInvalidName, field, "%s must be valid UTF-8", field)
	}
	if len(name) > MaxNameLength {
		return repo.InvalidArgument(CodeInvalidName, field, "%s exceeds maximum length of %d", field, MaxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return repo.InvalidArgument(CodeInvalidName, field, "%s cannot contain control characters", field)
		}
	}
	return nil
}

// requirePersisted checks that a reference is set and has been written to the store.
func requirePersisted(field string, e repo.Entity, present bool) error {
	if !present {
		return repo.InvalidArgument(CodeMissingReference, field, "%s is required", field)
	}
	if !e.IsPersisted() {
		return repo.InvalidArgument(CodeUnpersistedReference, field, "%s must be persisted first", field)
	}
	return nil
}

func validateClass(c *ObjectClass) error {
	return ValidateName("name", c.name)
}

func validateClassProperty(p *ObjectClassProperty) error {
	if err := requirePersisted("object_class", p.objectClass, p.objectClass != nil); err != nil {
		return err
	}
	return ValidateName("name", p.name)
}

func validateInstance(i *ObjectInstance) error {
	return requirePersisted("object_class", i.objectClass, i.objectClass != nil)
}

// validatePropertyInstance enforces that the answered property is declared on the
// class of the owning instance.
func validatePropertyInstance(pi *PropertyInstance) error {
	if err := requirePersisted("object_instance", pi.objectInstance, pi.objectInstance != nil); err != nil {
		return err
	}
	if err := requirePersisted("property", pi.property, pi.property != nil); err != nil {
		return err
	}
	instClass := pi.objectInstance.objectClass
	propClass := pi.property.objectClass
	if instClass == nil || propClass == nil || !repo.SameEntity(instClass, propClass) {
		return repo.InvalidArgument(CodeClassMismatch, "property", "%s",
			fmt.Sprintf("property %d is not declared on the class of object %d",
				pi.property.ID(), pi.objectInstance.ID()))
	}
	return nil
}
