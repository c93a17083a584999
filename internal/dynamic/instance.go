// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"fmt"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// ObjectInstance is an instance of an ObjectClass. It owns its property values;
// removing the instance from the store removes them too.
type ObjectInstance struct {
	repo.Base
	objectClass *ObjectClass
	properties  entitySet[*PropertyInstance]
}

// NewObjectInstance creates an unpersisted instance of class.
func NewObjectInstance(class *ObjectClass) *ObjectInstance {
	return &ObjectInstance{objectClass: class}
}

// ObjectClass returns the class this instance belongs to.
func (o *ObjectInstance) ObjectClass() *ObjectClass { return o.objectClass }

// Properties returns the attached values in attachment order.
func (o *ObjectInstance) Properties() []*PropertyInstance { return o.properties.list() }

// AddProperty attaches pi. It reports false when pi is nil, belongs to another
// instance, or is already attached.
func (o *ObjectInstance) AddProperty(pi *PropertyInstance) bool {
	if pi == nil || (pi.objectInstance != nil && pi.objectInstance != o) {
		return false
	}
	return o.properties.add(pi)
}

// RemoveProperty detaches pi in memory, reporting whether it was attached.
// Use the PropertyInstance DAO to delete the stored value.
func (o *ObjectInstance) RemoveProperty(pi *PropertyInstance) bool {
	if pi == nil {
		return false
	}
	return o.properties.remove(pi)
}

// PropertyValue returns the attached value for the named property.
func (o *ObjectInstance) PropertyValue(name string) (*PropertyInstance, bool) {
	for _, pi := range o.properties.items {
		if pi.property != nil && pi.property.name == name {
			return pi, true
		}
	}
	return nil, false
}

// Value returns the string value of the named property.
func (o *ObjectInstance) Value(name string) (string, bool) {
	pi, ok := o.PropertyValue(name)
	if !ok {
		return "", false
	}
	return pi.value, true
}

func (o *ObjectInstance) String() string {
	var classID int64
	if o.objectClass != nil {
		classID = o.objectClass.ID()
	}
	return fmt.Sprintf("ObjectInstance[id=%d,version=%d,objectClass.id=%d,properties=%d]",
		o.ID(), o.Version(), classID, len(o.properties.items))
}

// PropertyInstance is the value one instance holds for one declared property.
type PropertyInstance struct {
	repo.Base
	objectInstance *ObjectInstance
	property       *ObjectClassProperty
	value          string
}

// NewPropertyInstance creates an unpersisted value and attaches it to instance.
func NewPropertyInstance(instance *ObjectInstance, property *ObjectClassProperty, value string) *PropertyInstance {
	pi := &PropertyInstance{objectInstance: instance, property: property, value: value}
	if instance != nil {
		instance.AddProperty(pi)
	}
	return pi
}

// ObjectInstance returns the owning instance.
func (pi *PropertyInstance) ObjectInstance() *ObjectInstance { return pi.objectInstance }

// Property returns the declaration this value answers.
func (pi *PropertyInstance) Property() *ObjectClassProperty { return pi.property }

// Value returns the stored text.
func (pi *PropertyInstance) Value() string { return pi.value }

// SetValue replaces the text. The change is stored on the next persist.
func (pi *PropertyInstance) SetValue(value string) { pi.value = value }

func (pi *PropertyInstance) String() string {
	var instID, propID int64
	if pi.objectInstance != nil {
		instID = pi.objectInstance.ID()
	}
	if pi.property != nil {
		propID = pi.property.ID()
	}
	return fmt.Sprintf("PropertyInstance[id=%d,version=%d,objectInstance.id=%d,property.id=%d,value=%q]",
		pi.ID(), pi.Version(), instID, propID, pi.value)
}
