// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import "github.com/dynamicdb/dynamicdb/internal/repo"

// entitySet is an insertion-ordered set with repo.SameEntity membership.
type entitySet[T repo.Entity] struct {
	items []T
}

func (s *entitySet[T]) indexOf(e T) int {
	for i, item := range s.items {
		if repo.SameEntity(item, e) {
			return i
		}
	}
	return -1
}

func (s *entitySet[T]) add(e T) bool {
	if s.indexOf(e) >= 0 {
		return false
	}
	s.items = append(s.items, e)
	return true
}

func (s *entitySet[T]) remove(e T) bool {
	i := s.indexOf(e)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *entitySet[T]) list() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *entitySet[T]) byID(id int64) (T, bool) {
	for _, item := range s.items {
		if item.ID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}
