// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// Default retry policy for SetValue.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 10 * time.Millisecond
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRetry sets how often SetValue retries a write that lost a race, and the
// base of its exponential backoff.
func WithRetry(maxRetries uint64, base time.Duration) ServiceOption {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.backoff = base
	}
}

// Service runs the common object model workflows, each in its own unit of work.
type Service struct {
	store      *Store
	logger     *slog.Logger
	maxRetries uint64
	backoff    time.Duration
}

// NewService creates a Service over store.
func NewService(store *Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		store:      store,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefineClass stores a new class together with the named property declarations.
func (s *Service) DefineClass(ctx context.Context, name string, properties ...string) (*ObjectClass, error) {
	class := NewObjectClass(name)
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Classes.Persist(ctx, class); err != nil {
			return err
		}
		decls := make([]*ObjectClassProperty, 0, len(properties))
		for _, p := range properties {
			decls = append(decls, NewObjectClassProperty(class, p))
		}
		return s.store.Properties.PersistAll(ctx, decls...)
	})
	if err != nil {
		return nil, oops.In("dynamic").With("class", name).Wrap(err)
	}
	s.logger.InfoContext(ctx, "class defined", "class_id", class.ID(), "class", name, "properties", len(properties))
	return class, nil
}

// DeclareProperty adds a property declaration to a stored class.
func (s *Service) DeclareProperty(ctx context.Context, classID int64, name string) (*ObjectClassProperty, error) {
	var decl *ObjectClassProperty
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		class, err := s.store.Classes.RetrieveByID(ctx, classID)
		if err != nil {
			return err
		}
		decl = NewObjectClassProperty(class, name)
		return s.store.Properties.Persist(ctx, decl)
	})
	if err != nil {
		return nil, oops.In("dynamic").With("class_id", classID).With("property", name).Wrap(err)
	}
	return decl, nil
}

// CreateObject stores a new instance of a class with the given property values.
// Every key of values must name a property declared on the class.
func (s *Service) CreateObject(ctx context.Context, classID int64, values map[string]string) (*ObjectInstance, error) {
	var inst *ObjectInstance
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		class, err := s.store.Classes.RetrieveByID(ctx, classID)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		slices.Sort(names)
		decls := make([]*ObjectClassProperty, 0, len(names))
		for _, name := range names {
			decl, ok := class.Property(name)
			if !ok {
				return unknownProperty(class, name)
			}
			decls = append(decls, decl)
		}

		inst = NewObjectInstance(class)
		if err := s.store.Instances.Persist(ctx, inst); err != nil {
			return err
		}
		pis := make([]*PropertyInstance, 0, len(decls))
		for _, decl := range decls {
			pis = append(pis, NewPropertyInstance(inst, decl, values[decl.Name()]))
		}
		return s.store.Values.PersistAll(ctx, pis...)
	})
	if err != nil {
		return nil, oops.In("dynamic").With("class_id", classID).Wrap(err)
	}
	s.logger.InfoContext(ctx, "object created", "object_id", inst.ID(), "class_id", classID)
	return inst, nil
}

// SetValue sets the named property of a stored instance, creating the value when
// the instance has none yet. A write that loses a race against a concurrent
// writer is retried on fresh state; inside a caller's unit of work it is not,
// because the failed statement has already aborted that transaction.
func (s *Service) SetValue(ctx context.Context, instanceID int64, property, value string) (*PropertyInstance, error) {
	var pi *PropertyInstance
	attempt := func(ctx context.Context) error {
		return s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
			inst, err := s.store.Instances.RetrieveByID(ctx, instanceID)
			if err != nil {
				return err
			}
			decl, ok := inst.ObjectClass().Property(property)
			if !ok {
				return unknownProperty(inst.ObjectClass(), property)
			}
			existing, ok := inst.PropertyValue(property)
			if ok {
				existing.SetValue(value)
			} else {
				existing = NewPropertyInstance(inst, decl, value)
			}
			if err := s.store.Values.Persist(ctx, existing); err != nil {
				return err
			}
			pi = existing
			return nil
		})
	}

	var err error
	if repo.InUnitOfWork(ctx) {
		err = attempt(ctx)
	} else {
		backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.backoff))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			aErr := attempt(ctx)
			if lostRace(aErr) {
				s.logger.DebugContext(ctx, "set value lost a race, retrying",
					"object_id", instanceID, "property", property, "error", aErr)
				return retry.RetryableError(aErr)
			}
			return aErr
		})
	}
	if err != nil {
		return nil, oops.In("dynamic").With("object_id", instanceID).With("property", property).Wrap(err)
	}
	return pi, nil
}

// Objects returns the stored instances of a class.
func (s *Service) Objects(ctx context.Context, classID int64) ([]*ObjectInstance, error) {
	class, err := s.store.Classes.RetrieveByID(ctx, classID)
	if err != nil {
		return nil, oops.In("dynamic").With("class_id", classID).Wrap(err)
	}
	objects, err := s.store.Instances.ListByClass(ctx, class)
	if err != nil {
		return nil, oops.In("dynamic").With("class_id", classID).Wrap(err)
	}
	return objects, nil
}

// ClassCount is the number of stored instances of one class.
type ClassCount struct {
	ClassID int64
	Class   string
	Objects int
}

// CountObjects returns the number of stored instances per class, ordered by class id.
func (s *Service) CountObjects(ctx context.Context) ([]ClassCount, error) {
	counts, err := s.store.Classes.CountObjects(ctx)
	if err != nil {
		return nil, oops.In("dynamic").Wrap(err)
	}
	return counts, nil
}

// DeleteObject removes a stored instance and its values.
func (s *Service) DeleteObject(ctx context.Context, id int64) error {
	if err := s.store.Instances.RemoveByID(ctx, id); err != nil {
		return oops.In("dynamic").With("object_id", id).Wrap(err)
	}
	s.logger.InfoContext(ctx, "object deleted", "object_id", id)
	return nil
}

// DeleteClass removes a class and its property declarations. It fails with
// repo.ErrStoreFailure (code ENTITY_IN_USE) while instances of the class exist.
func (s *Service) DeleteClass(ctx context.Context, id int64) error {
	err := s.store.Tx.InTransaction(ctx, func(ctx context.Context) error {
		class, err := s.store.Classes.RetrieveByID(ctx, id)
		if err != nil {
			return err
		}
		for _, decl := range class.Properties() {
			if err := s.store.Properties.Remove(ctx, decl); err != nil {
				return err
			}
		}
		return s.store.Classes.Remove(ctx, class)
	})
	if err != nil {
		return oops.In("dynamic").With("class_id", id).Wrap(err)
	}
	s.logger.InfoContext(ctx, "class deleted", "class_id", id)
	return nil
}

func unknownProperty(class *ObjectClass, name string) error {
	return repo.InvalidArgument(CodeUnknownProperty, "property",
		"class %q declares no property %q", class.Name(), name)
}

// lostRace reports whether err came from a concurrent writer: a stale version,
// or a value for the same property inserted first.
func lostRace(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, repo.ErrConflict) || repo.CodeOf(err) == repo.CodeDuplicateValue
}
