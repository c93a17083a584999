// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

// ClassView is a detached, serializable rendering of an ObjectClass.
type ClassView struct {
	ID         int64          `json:"id" yaml:"id"`
	Version    int64          `json:"version" yaml:"version"`
	Name       string         `json:"name" yaml:"name"`
	Properties []PropertyView `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// PropertyView renders one property declaration.
type PropertyView struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ObjectView is a detached, serializable rendering of an ObjectInstance.
type ObjectView struct {
	ID      int64             `json:"id" yaml:"id"`
	Version int64             `json:"version" yaml:"version"`
	ClassID int64             `json:"class_id" yaml:"class_id"`
	Class   string            `json:"class" yaml:"class"`
	Values  map[string]string `json:"values,omitempty" yaml:"values,omitempty"`
}

// NewClassView renders c.
func NewClassView(c *ObjectClass) ClassView {
	v := ClassView{ID: c.ID(), Version: c.Version(), Name: c.Name()}
	for _, p := range c.properties.items {
		v.Properties = append(v.Properties, PropertyView{ID: p.ID(), Name: p.Name()})
	}
	return v
}

// NewClassViews renders each class in order.
func NewClassViews(classes []*ObjectClass) []ClassView {
	out := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		out = append(out, NewClassView(c))
	}
	return out
}

// NewObjectView renders o. Values whose declaration is unknown are skipped.
func NewObjectView(o *ObjectInstance) ObjectView {
	v := ObjectView{ID: o.ID(), Version: o.Version()}
	if o.objectClass != nil {
		v.ClassID = o.objectClass.ID()
		v.Class = o.objectClass.Name()
	}
	for _, pi := range o.properties.items {
		if pi.property == nil {
			continue
		}
		if v.Values == nil {
			v.Values = make(map[string]string, len(o.properties.items))
		}
		v.Values[pi.property.Name()] = pi.value
	}
	return v
}

// NewObjectViews renders each instance in order.
func NewObjectViews(objects []*ObjectInstance) []ObjectView {
	out := make([]ObjectView, 0, len(objects))
	for _, o := range objects {
		out = append(out, NewObjectView(o))
	}
	return out
}
