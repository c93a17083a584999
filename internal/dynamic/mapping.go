// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// Entity names used in errors, logs and metrics.
const (
	EntityObjectClass         = "ObjectClass"
	EntityObjectClassProperty = "ObjectClassProperty"
	EntityObjectInstance      = "ObjectInstance"
	EntityPropertyInstance    = "PropertyInstance"
)

// The selects below only read identities; Hydrate loads the full object graph so
// that shared classes and declarations are the same pointers across results.

var classMapping = repo.Mapping[*ObjectClass]{
	Entity:   EntityObjectClass,
	Table:    "object_classes",
	Select:   "SELECT c.id, c.version, c.name FROM object_classes c",
	IDColumn: "c.id",
	Columns: []repo.Column[*ObjectClass]{
		{Name: "name", Value: func(c *ObjectClass) any { return c.name }},
	},
	Scan: func(s *repo.Scope, row pgx.Row) (*ObjectClass, error) {
		var r classRow
		if err := row.Scan(&r.ID, &r.Version, &r.Name); err != nil {
			return nil, err
		}
		return r.build(s), nil
	},
	Hydrate: func(s *repo.Scope, items []*ObjectClass) ([]*ObjectClass, error) {
		byID := make(map[int64]*ObjectClass, len(items))
		for _, c := range items {
			byID[c.ID()] = c
		}
		if err := attachClassProperties(s, byID); err != nil {
			return nil, err
		}
		return items, nil
	},
	Validate: validateClass,
}

var classPropertyMapping = repo.Mapping[*ObjectClassProperty]{
	Entity:   EntityObjectClassProperty,
	Table:    "object_class_properties",
	Select:   "SELECT p.id, p.object_class_id FROM object_class_properties p",
	IDColumn: "p.id",
	Columns: []repo.Column[*ObjectClassProperty]{
		{Name: "object_class_id", Value: func(p *ObjectClassProperty) any { return p.objectClass.ID() }, Immutable: true},
		{Name: "name", Value: func(p *ObjectClassProperty) any { return p.name }},
	},
	Scan: func(s *repo.Scope, row pgx.Row) (*ObjectClassProperty, error) {
		var id, classID int64
		if err := row.Scan(&id, &classID); err != nil {
			return nil, err
		}
		p := &ObjectClassProperty{objectClass: placeholderClass(s, classID)}
		s.Restore(p, id, 0)
		return p, nil
	},
	Hydrate: func(s *repo.Scope, items []*ObjectClassProperty) ([]*ObjectClassProperty, error) {
		ids := make([]int64, 0, len(items))
		for _, p := range items {
			ids = append(ids, p.objectClass.ID())
		}
		classes, err := loadClasses(s, ids)
		if err != nil {
			return nil, err
		}
		out := make([]*ObjectClassProperty, 0, len(items))
		for _, p := range items {
			c, ok := classes[p.objectClass.ID()]
			if !ok {
				continue
			}
			if loaded, ok := c.properties.byID(p.ID()); ok {
				out = append(out, loaded)
			}
		}
		return out, nil
	},
	Validate: validateClassProperty,
}

var instanceMapping = repo.Mapping[*ObjectInstance]{
	Entity:   EntityObjectInstance,
	Table:    "object_instances",
	Select:   "SELECT i.id, i.version, i.object_class_id FROM object_instances i",
	IDColumn: "i.id",
	Columns: []repo.Column[*ObjectInstance]{
		{Name: "object_class_id", Value: func(i *ObjectInstance) any { return i.objectClass.ID() }, Immutable: true},
	},
	Scan: func(s *repo.Scope, row pgx.Row) (*ObjectInstance, error) {
		var r instanceRow
		if err := row.Scan(&r.ID, &r.Version, &r.ObjectClassID); err != nil {
			return nil, err
		}
		return r.build(s), nil
	},
	Hydrate: func(s *repo.Scope, items []*ObjectInstance) ([]*ObjectInstance, error) {
		return hydrateInstances(s, items)
	},
	Validate: validateInstance,
}

var propertyInstanceMapping = repo.Mapping[*PropertyInstance]{
	Entity:   EntityPropertyInstance,
	Table:    "property_instances",
	Select:   "SELECT pi.id, pi.object_instance_id FROM property_instances pi",
	IDColumn: "pi.id",
	Columns: []repo.Column[*PropertyInstance]{
		{Name: "object_instance_id", Value: func(pi *PropertyInstance) any { return pi.objectInstance.ID() }, Immutable: true},
		{Name: "property_id", Value: func(pi *PropertyInstance) any { return pi.property.ID() }, Immutable: true},
		{Name: "object_class_id", Value: func(pi *PropertyInstance) any { return pi.property.objectClass.ID() }, Immutable: true},
		{Name: "value", Value: func(pi *PropertyInstance) any { return pi.value }},
	},
	Scan: func(s *repo.Scope, row pgx.Row) (*PropertyInstance, error) {
		var id, instanceID int64
		if err := row.Scan(&id, &instanceID); err != nil {
			return nil, err
		}
		inst := &ObjectInstance{}
		s.Restore(inst, instanceID, 0)
		pi := &PropertyInstance{objectInstance: inst}
		s.Restore(pi, id, 0)
		return pi, nil
	},
	Hydrate: func(s *repo.Scope, items []*PropertyInstance) ([]*PropertyInstance, error) {
		ids := make([]int64, 0, len(items))
		for _, pi := range items {
			ids = append(ids, pi.objectInstance.ID())
		}
		instances, err := loadInstances(s, ids)
		if err != nil {
			return nil, err
		}
		out := make([]*PropertyInstance, 0, len(items))
		for _, pi := range items {
			inst, ok := instances[pi.objectInstance.ID()]
			if !ok {
				continue
			}
			if loaded, ok := inst.properties.byID(pi.ID()); ok {
				out = append(out, loaded)
			}
		}
		return out, nil
	},
	Validate: validatePropertyInstance,
}

type classRow struct {
	ID      int64
	Version int64
	Name    string
}

func (r classRow) build(s *repo.Scope) *ObjectClass {
	c := NewObjectClass(r.Name)
	s.Restore(c, r.ID, r.Version)
	return c
}

type classPropertyRow struct {
	ID            int64
	Version       int64
	ObjectClassID int64
	Name          string
}

type instanceRow struct {
	ID            int64
	Version       int64
	ObjectClassID int64
}

func (r instanceRow) build(s *repo.Scope) *ObjectInstance {
	inst := &ObjectInstance{objectClass: placeholderClass(s, r.ObjectClassID)}
	s.Restore(inst, r.ID, r.Version)
	return inst
}

type propertyInstanceRow struct {
	ID               int64
	Version          int64
	ObjectInstanceID int64
	PropertyID       int64
	Value            string
}

// placeholderClass stands in for a class until Hydrate swaps in the loaded one.
func placeholderClass(s *repo.Scope, id int64) *ObjectClass {
	c := &ObjectClass{}
	s.Restore(c, id, 0)
	return c
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func keys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// loadClasses loads the classes with the given ids together with their declarations.
func loadClasses(s *repo.Scope, ids []int64) (map[int64]*ObjectClass, error) {
	if len(ids) == 0 {
		return map[int64]*ObjectClass{}, nil
	}
	rows, err := s.Query(`SELECT c.id, c.version, c.name FROM object_classes c WHERE c.id = ANY($1)`, distinct(ids))
	if err != nil {
		return nil, fmt.Errorf("load object classes: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByPos[classRow])
	if err != nil {
		return nil, fmt.Errorf("scan object classes: %w", err)
	}
	classes := make(map[int64]*ObjectClass, len(scanned))
	for _, r := range scanned {
		classes[r.ID] = r.build(s)
	}
	if err := attachClassProperties(s, classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// attachClassProperties loads the declarations of the given classes into their sets.
func attachClassProperties(s *repo.Scope, classes map[int64]*ObjectClass) error {
	if len(classes) == 0 {
		return nil
	}
	rows, err := s.Query(`
		SELECT p.id, p.version, p.object_class_id, p.name
		FROM object_class_properties p
		WHERE p.object_class_id = ANY($1)
		ORDER BY p.id
	`, keys(classes))
	if err != nil {
		return fmt.Errorf("load class properties: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByPos[classPropertyRow])
	if err != nil {
		return fmt.Errorf("scan class properties: %w", err)
	}
	for _, r := range scanned {
		c, ok := classes[r.ObjectClassID]
		if !ok {
			continue
		}
		p := &ObjectClassProperty{objectClass: c, name: r.Name}
		s.Restore(p, r.ID, r.Version)
		c.properties.add(p)
	}
	return nil
}

// loadInstances loads the instances with the given ids with their classes and values.
func loadInstances(s *repo.Scope, ids []int64) (map[int64]*ObjectInstance, error) {
	if len(ids) == 0 {
		return map[int64]*ObjectInstance{}, nil
	}
	rows, err := s.Query(`SELECT i.id, i.version, i.object_class_id FROM object_instances i WHERE i.id = ANY($1)`, distinct(ids))
	if err != nil {
		return nil, fmt.Errorf("load object instances: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByPos[instanceRow])
	if err != nil {
		return nil, fmt.Errorf("scan object instances: %w", err)
	}
	items := make([]*ObjectInstance, 0, len(scanned))
	for _, r := range scanned {
		items = append(items, r.build(s))
	}
	hydrated, err := hydrateInstances(s, items)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*ObjectInstance, len(hydrated))
	for _, inst := range hydrated {
		out[inst.ID()] = inst
	}
	return out, nil
}

// hydrateInstances swaps each placeholder class for the loaded class and attaches
// the stored values. Instances whose class vanished are dropped.
func hydrateInstances(s *repo.Scope, items []*ObjectInstance) ([]*ObjectInstance, error) {
	classIDs := make([]int64, 0, len(items))
	for _, inst := range items {
		classIDs = append(classIDs, inst.objectClass.ID())
	}
	classes, err := loadClasses(s, classIDs)
	if err != nil {
		return nil, err
	}

	out := make([]*ObjectInstance, 0, len(items))
	byID := make(map[int64]*ObjectInstance, len(items))
	for _, inst := range items {
		c, ok := classes[inst.objectClass.ID()]
		if !ok {
			continue
		}
		inst.objectClass = c
		out = append(out, inst)
		byID[inst.ID()] = inst
	}
	if len(byID) == 0 {
		return out, nil
	}

	rows, err := s.Query(`
		SELECT pi.id, pi.version, pi.object_instance_id, pi.property_id, pi.value
		FROM property_instances pi
		WHERE pi.object_instance_id = ANY($1)
		ORDER BY pi.id
	`, keys(byID))
	if err != nil {
		return nil, fmt.Errorf("load property instances: %w", err)
	}
	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByPos[propertyInstanceRow])
	if err != nil {
		return nil, fmt.Errorf("scan property instances: %w", err)
	}
	for _, r := range scanned {
		inst, ok := byID[r.ObjectInstanceID]
		if !ok {
			continue
		}
		prop, ok := inst.objectClass.properties.byID(r.PropertyID)
		if !ok {
			return nil, fmt.Errorf("property instance %d answers property %d, which is not declared on class %d",
				r.ID, r.PropertyID, inst.objectClass.ID())
		}
		pi := &PropertyInstance{objectInstance: inst, property: prop, value: r.Value}
		s.Restore(pi, r.ID, r.Version)
		inst.properties.add(pi)
	}
	return out, nil
}
