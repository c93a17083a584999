// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

//go:build integration

package dynamic_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/dynamicdb/dynamicdb/internal/dynamic"
	"github.com/dynamicdb/dynamicdb/internal/repo"
	"github.com/dynamicdb/dynamicdb/internal/schema"
)

var _ = Describe("Object model", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		env.reset()
	})

	Describe("instances and values", func() {
		It("stores and reloads an object with its values", func() {
			class := person(ctx)
			Expect(class.Properties()).To(HaveLen(2))

			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{"name": "Ada"})
			Expect(err).NotTo(HaveOccurred())
			Expect(obj.IsPersisted()).To(BeTrue())
			Expect(obj.Version()).To(Equal(int64(1)))

			got, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ObjectClass().ID()).To(Equal(class.ID()))
			value, ok := got.Value("name")
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal("Ada"))
			_, ok = got.Value("email")
			Expect(ok).To(BeFalse())
		})

		It("bumps the version on every update", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{"name": "Ada"})
			Expect(err).NotTo(HaveOccurred())

			pi, err := env.Service.SetValue(ctx, obj.ID(), "name", "Grace")
			Expect(err).NotTo(HaveOccurred())
			Expect(pi.Version()).To(Equal(int64(2)))

			pi, err = env.Service.SetValue(ctx, obj.ID(), "email", "grace@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(pi.Version()).To(Equal(int64(1)))
		})

		It("removes the values of a removed object", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{
				"name":  "Ada",
				"email": "ada@example.com",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(env.Store.Instances.RemoveByID(ctx, obj.ID())).To(Succeed())

			decl, ok := class.Property("name")
			Expect(ok).To(BeTrue())
			values, err := env.Store.Values.ListByProperty(ctx, decl)
			Expect(err).NotTo(HaveOccurred())
			Expect(values).To(BeEmpty())

			_, err = env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(errors.Is(err, repo.ErrNotFound)).To(BeTrue())
		})

		It("reports a missing id on RemoveByID", func() {
			err := env.Store.Instances.RemoveByID(ctx, 424242)
			Expect(errors.Is(err, repo.ErrNotFound)).To(BeTrue())
		})

		It("accepts an empty batch", func() {
			Expect(env.Store.Instances.PersistAll(ctx)).To(Succeed())
		})

		It("rejects an instance of an unstored class without writing", func() {
			obj := dynamic.NewObjectInstance(dynamic.NewObjectClass("Draft"))
			err := env.Store.Instances.Persist(ctx, obj)
			Expect(errors.Is(err, repo.ErrInvalidArgument)).To(BeTrue())
			Expect(obj.IsPersisted()).To(BeFalse())

			all, err := env.Store.Instances.RetrieveAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("rejects a value whose property belongs to another class", func() {
			other, err := env.Service.DefineClass(ctx, "Place", "name")
			Expect(err).NotTo(HaveOccurred())
			obj, err := env.Service.CreateObject(ctx, person(ctx).ID(), nil)
			Expect(err).NotTo(HaveOccurred())

			decl, ok := other.Property("name")
			Expect(ok).To(BeTrue())
			err = env.Store.Values.Persist(ctx, dynamic.NewPropertyInstance(obj, decl, "Paris"))
			Expect(errors.Is(err, repo.ErrInvalidArgument)).To(BeTrue())
			Expect(repo.CodeOf(err)).To(Equal(dynamic.CodeClassMismatch))
		})

		It("rejects a second value for the same property", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{"name": "Ada"})
			Expect(err).NotTo(HaveOccurred())
			decl, _ := class.Property("name")

			err = env.Store.Values.Persist(ctx, dynamic.NewPropertyInstance(obj, decl, "Grace"))
			Expect(errors.Is(err, repo.ErrStoreFailure)).To(BeTrue())
			Expect(repo.CodeOf(err)).To(Equal(repo.CodeDuplicateValue))
		})
	})

	Describe("optimistic concurrency", func() {
		It("rejects a write based on a stale version", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{"name": "Ada"})
			Expect(err).NotTo(HaveOccurred())

			first, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			second, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())

			a, _ := first.PropertyValue("name")
			a.SetValue("Grace")
			Expect(env.Store.Values.Persist(ctx, a)).To(Succeed())

			b, _ := second.PropertyValue("name")
			b.SetValue("Hedy")
			err = env.Store.Values.Persist(ctx, b)
			Expect(errors.Is(err, repo.ErrConflict)).To(BeTrue())

			got, err := env.Store.Values.Find(ctx, obj, a.Property())
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Value()).To(Equal("Grace"))
		})

		It("rejects a stale remove", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{"name": "Ada"})
			Expect(err).NotTo(HaveOccurred())
			stale, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			pi, _ := stale.PropertyValue("name")

			_, err = env.Service.SetValue(ctx, obj.ID(), "name", "Grace")
			Expect(err).NotTo(HaveOccurred())

			err = env.Store.Values.Remove(ctx, pi)
			Expect(errors.Is(err, repo.ErrConflict)).To(BeTrue())
		})

		It("lets exactly one of two concurrent units of work update the same version", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), map[string]string{"name": "Ada"})
			Expect(err).NotTo(HaveOccurred())

			values := make([]*dynamic.PropertyInstance, 2)
			for i := range values {
				inst, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
				Expect(err).NotTo(HaveOccurred())
				values[i], _ = inst.PropertyValue("name")
				Expect(values[i].Version()).To(Equal(int64(1)))
			}

			start := make(chan struct{})
			errs := make([]error, len(values))
			var wg sync.WaitGroup
			for i, pi := range values {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					<-start
					errs[i] = env.Store.Tx.InTransaction(ctx, func(ctx context.Context) error {
						pi.SetValue(fmt.Sprintf("writer-%d", i))
						return env.Store.Values.Persist(ctx, pi)
					})
				}()
			}
			close(start)
			wg.Wait()

			conflicts := 0
			for _, err := range errs {
				if err == nil {
					continue
				}
				Expect(errors.Is(err, repo.ErrConflict)).To(BeTrue(), "unexpected error: %v", err)
				conflicts++
			}
			Expect(conflicts).To(Equal(1))

			got, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			stored, _ := got.PropertyValue("name")
			Expect(stored.Version()).To(Equal(int64(2)))
			Expect(stored.Value()).To(HavePrefix("writer-"))
		})

		It("lets concurrent SetValue calls all succeed through retries", func() {
			class := person(ctx)
			obj, err := env.Service.CreateObject(ctx, class.ID(), nil)
			Expect(err).NotTo(HaveOccurred())

			const writers = 5
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := env.Service.SetValue(ctx, obj.ID(), "name", fmt.Sprintf("writer-%d", i))
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := env.Store.Instances.RetrieveByID(ctx, obj.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Properties()).To(HaveLen(1))
			pi := got.Properties()[0]
			Expect(pi.Value()).To(HavePrefix("writer-"))
			Expect(pi.Version()).To(BeNumerically("<=", writers))
		})
	})

	Describe("units of work", func() {
		It("rolls back every write of a failed unit", func() {
			boom := errors.New("boom")
			err := env.Store.Tx.InTransaction(ctx, func(ctx context.Context) error {
				class := dynamic.NewObjectClass("Temp")
				if err := env.Store.Classes.Persist(ctx, class); err != nil {
					return err
				}
				if err := env.Store.Classes.Flush(ctx); err != nil {
					return err
				}
				return boom
			})
			Expect(errors.Is(err, boom)).To(BeTrue())

			found, err := env.Store.Classes.FindByName(ctx, "Temp")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})

		It("checks deferred foreign keys when constraints are made immediate", func() {
			class := person(ctx)
			decl, _ := class.Property("name")

			tx, err := env.pool.Begin(ctx)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = tx.Rollback(ctx) }()

			_, err = tx.Exec(ctx, "SET CONSTRAINTS property_instances_instance_fkey DEFERRED")
			Expect(err).NotTo(HaveOccurred())
			_, err = tx.Exec(ctx,
				"INSERT INTO property_instances (object_instance_id, property_id, object_class_id, value) VALUES ($1, $2, $3, $4)",
				int64(424242), decl.ID(), class.ID(), "orphan")
			Expect(err).NotTo(HaveOccurred(), "a deferred key is not checked per statement")

			_, err = tx.Exec(ctx, "SET CONSTRAINTS ALL IMMEDIATE")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("property_instances_instance_fkey"))
		})

		It("flushes outside a unit of work as a no-op", func() {
			Expect(env.Store.Values.Flush(ctx)).To(Succeed())
		})
	})

	Describe("object counts", func() {
		It("counts instances per class including empty ones", func() {
			class := person(ctx)
			for range 3 {
				_, err := env.Service.CreateObject(ctx, class.ID(), nil)
				Expect(err).NotTo(HaveOccurred())
			}
			tag, err := env.Service.DefineClass(ctx, "Tag")
			Expect(err).NotTo(HaveOccurred())

			counts, err := env.Service.CountObjects(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal([]dynamic.ClassCount{
				{ClassID: class.ID(), Class: "Person", Objects: 3},
				{ClassID: tag.ID(), Class: "Tag", Objects: 0},
			}))
		})
	})

	Describe("classes", func() {
		It("refuses to delete a class that still has instances", func() {
			class := person(ctx)
			_, err := env.Service.CreateObject(ctx, class.ID(), nil)
			Expect(err).NotTo(HaveOccurred())

			err = env.Service.DeleteClass(ctx, class.ID())
			Expect(errors.Is(err, repo.ErrStoreFailure)).To(BeTrue())
			Expect(repo.CodeOf(err)).To(Equal(repo.CodeEntityInUse))

			Expect(person(ctx).Properties()).To(HaveLen(2), "the failed delete is rolled back")
		})

		It("deletes an unused class with its declarations", func() {
			class, err := env.Service.DefineClass(ctx, "Place", "name", "country")
			Expect(err).NotTo(HaveOccurred())

			Expect(env.Service.DeleteClass(ctx, class.ID())).To(Succeed())

			_, err = env.Store.Classes.RetrieveByID(ctx, class.ID())
			Expect(errors.Is(err, repo.ErrNotFound)).To(BeTrue())
			decls, err := env.Store.Properties.RetrieveAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(decls).To(HaveLen(2), "only the Person declarations remain")
		})

		It("rejects a duplicate property name", func() {
			_, err := env.Service.DeclareProperty(ctx, person(ctx).ID(), "email")
			Expect(err).To(HaveOccurred())
			Expect(repo.CodeOf(err)).To(Equal(repo.CodeDuplicateValue))
		})
	})

	Describe("schema lifecycle", func() {
		It("recreates an empty, usable schema after drop", func() {
			manager, err := schema.NewManager(schema.Config{URL: env.connStr}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(manager.Drop(ctx)).To(Succeed())
			Expect(manager.Create(ctx)).To(Succeed())
			env.pool.Reset()

			classes, err := env.Store.Classes.RetrieveAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(classes).To(BeEmpty())

			class, err := env.Service.DefineClass(ctx, "Person", "name")
			Expect(err).NotTo(HaveOccurred())
			Expect(class.IsPersisted()).To(BeTrue())

			st, err := manager.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Dirty).To(BeFalse())
			Expect(st.Pending).To(BeEmpty())
		})

		It("is idempotent", func() {
			Expect(env.schema.Create(ctx)).To(Succeed())
			Expect(person(ctx).Properties()).To(HaveLen(2))
		})
	})
})
