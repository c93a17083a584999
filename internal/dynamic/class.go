// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

// Package dynamic implements a runtime-defined object model on top of the generic
// repository: classes and their property declarations, and instances carrying
// string values for those properties.
package dynamic

import (
	"fmt"
	"strings"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// ObjectClass is a named type defined at runtime. It owns its property declarations.
type ObjectClass struct {
	repo.Base
	name       string
	properties entitySet[*ObjectClassProperty]
}

// NewObjectClass creates an unpersisted class.
func NewObjectClass(name string) *ObjectClass {
	return &ObjectClass{name: name}
}

// Name returns the class name.
func (c *ObjectClass) Name() string { return c.name }

// SetName renames the class. The change is stored on the next persist.
func (c *ObjectClass) SetName(name string) { c.name = name }

// Properties returns the declared properties in declaration order.
func (c *ObjectClass) Properties() []*ObjectClassProperty { return c.properties.list() }

// Property returns the declaration with the given name.
func (c *ObjectClass) Property(name string) (*ObjectClassProperty, bool) {
	for _, p := range c.properties.items {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// AddProperty adds p to the declared set. It reports false when p is nil,
// belongs to another class, or is already declared.
func (c *ObjectClass) AddProperty(p *ObjectClassProperty) bool {
	if p == nil || (p.objectClass != nil && p.objectClass != c) {
		return false
	}
	return c.properties.add(p)
}

// RemoveProperty removes p from the declared set, reporting whether it was present.
func (c *ObjectClass) RemoveProperty(p *ObjectClassProperty) bool {
	if p == nil {
		return false
	}
	return c.properties.remove(p)
}

func (c *ObjectClass) String() string {
	names := make([]string, 0, len(c.properties.items))
	for _, p := range c.properties.items {
		names = append(names, p.name)
	}
	return fmt.Sprintf("ObjectClass[id=%d,version=%d,name=%s,properties=[%s]]",
		c.ID(), c.Version(), c.name, strings.Join(names, ","))
}

// ObjectClassProperty is a named attribute declared on one class.
type ObjectClassProperty struct {
	repo.Base
	objectClass *ObjectClass
	name        string
}

// NewObjectClassProperty declares a property on class. The declaration is added
// to the class's property set; it is stored by persisting it.
func NewObjectClassProperty(class *ObjectClass, name string) *ObjectClassProperty {
	p := &ObjectClassProperty{objectClass: class, name: name}
	if class != nil {
		class.AddProperty(p)
	}
	return p
}

// ObjectClass returns the declaring class.
func (p *ObjectClassProperty) ObjectClass() *ObjectClass { return p.objectClass }

// Name returns the property name.
func (p *ObjectClassProperty) Name() string { return p.name }

// SetName renames the property. The change is stored on the next persist.
func (p *ObjectClassProperty) SetName(name string) { p.name = name }

func (p *ObjectClassProperty) String() string {
	var classID int64
	if p.objectClass != nil {
		classID = p.objectClass.ID()
	}
	return fmt.Sprintf("ObjectClassProperty[id=%d,version=%d,objectClass.id=%d,name=%s]",
		p.ID(), p.Version(), classID, p.name)
}
