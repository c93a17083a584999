// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// ObjectClassDAO stores object classes.
type ObjectClassDAO struct {
	*repo.Repository[*ObjectClass]
}

// NewObjectClassDAO creates an ObjectClassDAO over db.
func NewObjectClassDAO(db repo.Querier, opts ...repo.Option) *ObjectClassDAO {
	return &ObjectClassDAO{Repository: repo.New(db, classMapping, opts...)}
}

// FindByName returns every class with the given name, oldest first.
func (d *ObjectClassDAO) FindByName(ctx context.Context, name string) ([]*ObjectClass, error) {
	q, err := d.CreateQuery("c.name = $1 ORDER BY c.id")
	if err != nil {
		return nil, err
	}
	return q.List(ctx, name)
}

const countObjectsSQL = `
	SELECT c.id, c.name, count(i.id)::int
	FROM object_classes c
	LEFT JOIN object_instances i ON i.object_class_id = c.id
	GROUP BY c.id, c.name
	ORDER BY c.id`

// CountObjects returns the number of stored instances of every class, ordered by
// class id, without loading the instances.
func (d *ObjectClassDAO) CountObjects(ctx context.Context) ([]ClassCount, error) {
	return repo.Aggregate(ctx, d.Repository, "count_objects", countObjectsSQL, pgx.RowToStructByPos[ClassCount])
}

// ObjectClassPropertyDAO stores property declarations.
type ObjectClassPropertyDAO struct {
	*repo.Repository[*ObjectClassProperty]
}

// NewObjectClassPropertyDAO creates an ObjectClassPropertyDAO over db.
func NewObjectClassPropertyDAO(db repo.Querier, opts ...repo.Option) *ObjectClassPropertyDAO {
	return &ObjectClassPropertyDAO{Repository: repo.New(db, classPropertyMapping, opts...)}
}

// ListByClass returns the declarations of class in declaration order.
func (d *ObjectClassPropertyDAO) ListByClass(ctx context.Context, class *ObjectClass) ([]*ObjectClassProperty, error) {
	if err := requirePersisted("object_class", class, class != nil); err != nil {
		return nil, err
	}
	q, err := d.CreateQuery("p.object_class_id = $1 ORDER BY p.id")
	if err != nil {
		return nil, err
	}
	return q.List(ctx, class.ID())
}

// FindByName returns the declaration called name on class, or repo.ErrNotFound.
func (d *ObjectClassPropertyDAO) FindByName(ctx context.Context, class *ObjectClass, name string) (*ObjectClassProperty, error) {
	if err := requirePersisted("object_class", class, class != nil); err != nil {
		return nil, err
	}
	q, err := d.CreateQuery("p.object_class_id = $1 AND p.name = $2")
	if err != nil {
		return nil, err
	}
	return q.Single(ctx, class.ID(), name)
}

// ObjectInstanceDAO stores object instances.
type ObjectInstanceDAO struct {
	*repo.Repository[*ObjectInstance]
}

// NewObjectInstanceDAO creates an ObjectInstanceDAO over db.
func NewObjectInstanceDAO(db repo.Querier, opts ...repo.Option) *ObjectInstanceDAO {
	return &ObjectInstanceDAO{Repository: repo.New(db, instanceMapping, opts...)}
}

// ListByClass returns the instances of class, oldest first.
func (d *ObjectInstanceDAO) ListByClass(ctx context.Context, class *ObjectClass) ([]*ObjectInstance, error) {
	if err := requirePersisted("object_class", class, class != nil); err != nil {
		return nil, err
	}
	q, err := d.CreateQuery("i.object_class_id = $1 ORDER BY i.id")
	if err != nil {
		return nil, err
	}
	return q.List(ctx, class.ID())
}

// PropertyInstanceDAO stores property values.
type PropertyInstanceDAO struct {
	*repo.Repository[*PropertyInstance]
}

// NewPropertyInstanceDAO creates a PropertyInstanceDAO over db.
func NewPropertyInstanceDAO(db repo.Querier, opts ...repo.Option) *PropertyInstanceDAO {
	return &PropertyInstanceDAO{Repository: repo.New(db, propertyInstanceMapping, opts...)}
}

// ListByInstance returns the values held by instance.
func (d *PropertyInstanceDAO) ListByInstance(ctx context.Context, instance *ObjectInstance) ([]*PropertyInstance, error) {
	if err := requirePersisted("object_instance", instance, instance != nil); err != nil {
		return nil, err
	}
	q, err := d.CreateQuery("pi.object_instance_id = $1 ORDER BY pi.id")
	if err != nil {
		return nil, err
	}
	return q.List(ctx, instance.ID())
}

// ListByProperty returns every value answering property, across instances.
func (d *PropertyInstanceDAO) ListByProperty(ctx context.Context, property *ObjectClassProperty) ([]*PropertyInstance, error) {
	if err := requirePersisted("property", property, property != nil); err != nil {
		return nil, err
	}
	q, err := d.CreateQuery("pi.property_id = $1 ORDER BY pi.id")
	if err != nil {
		return nil, err
	}
	return q.List(ctx, property.ID())
}

// Find returns the value instance holds for property, or repo.ErrNotFound.
func (d *PropertyInstanceDAO) Find(ctx context.Context, instance *ObjectInstance, property *ObjectClassProperty) (*PropertyInstance, error) {
	if err := requirePersisted("object_instance", instance, instance != nil); err != nil {
		return nil, err
	}
	if err := requirePersisted("property", property, property != nil); err != nil {
		return nil, err
	}
	q, err := d.CreateQuery("pi.object_instance_id = $1 AND pi.property_id = $2")
	if err != nil {
		return nil, err
	}
	return q.Single(ctx, instance.ID(), property.ID())
}
