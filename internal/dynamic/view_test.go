// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewClassView(t *testing.T) {
	class := NewObjectClass("Person")
	NewObjectClassProperty(class, "name")
	NewObjectClassProperty(class, "email")

	v := NewClassView(class)
	assert.Equal(t, "Person", v.Name)
	require.Len(t, v.Properties, 2)
	assert.Equal(t, "email", v.Properties[1].Name)

	assert.Len(t, NewClassViews([]*ObjectClass{class, NewObjectClass("Pet")}), 2)
}

func TestNewObjectView(t *testing.T) {
	class := NewObjectClass("Person")
	name := NewObjectClassProperty(class, "name")
	inst := NewObjectInstance(class)
	NewPropertyInstance(inst, name, "Ada")
	NewPropertyInstance(inst, nil, "orphan")

	v := NewObjectView(inst)
	assert.Equal(t, "Person", v.Class)
	assert.Equal(t, map[string]string{"name": "Ada"}, v.Values)

	out, err := yaml.Marshal(NewObjectViews([]*ObjectInstance{inst}))
	require.NoError(t, err)
	assert.Contains(t, string(out), "name: Ada")
	assert.Contains(t, string(out), "class: Person")
}

func TestNewObjectViewWithoutValues(t *testing.T) {
	v := NewObjectView(NewObjectInstance(NewObjectClass("Person")))
	assert.Nil(t, v.Values)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "values")
}
