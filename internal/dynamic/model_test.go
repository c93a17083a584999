// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectClass_PropertySet(t *testing.T) {
	class := NewObjectClass("Person")
	name := NewObjectClassProperty(class, "name")

	assert.Equal(t, []*ObjectClassProperty{name}, class.Properties())
	assert.False(t, class.AddProperty(name), "adding twice is a no-op")
	assert.False(t, class.AddProperty(nil))

	other := NewObjectClass("Pet")
	foreign := NewObjectClassProperty(other, "species")
	assert.False(t, class.AddProperty(foreign), "declarations of another class are rejected")

	got, ok := class.Property("name")
	require.True(t, ok)
	assert.Same(t, name, got)
	_, ok = class.Property("age")
	assert.False(t, ok)

	assert.True(t, class.RemoveProperty(name))
	assert.False(t, class.RemoveProperty(name), "removing twice is a no-op")
	assert.Empty(t, class.Properties())
}

func TestObjectClass_PropertiesReturnsCopy(t *testing.T) {
	class := NewObjectClass("Person")
	NewObjectClassProperty(class, "name")

	props := class.Properties()
	props[0] = nil
	assert.NotNil(t, class.Properties()[0])
}

func TestObjectInstance_ValueSet(t *testing.T) {
	class := NewObjectClass("Person")
	name := NewObjectClassProperty(class, "name")
	inst := NewObjectInstance(class)

	pi := NewPropertyInstance(inst, name, "Ada")
	assert.Same(t, inst, pi.ObjectInstance())
	assert.Same(t, name, pi.Property())
	assert.Equal(t, []*PropertyInstance{pi}, inst.Properties())
	assert.False(t, inst.AddProperty(pi))

	v, ok := inst.Value("name")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)

	pi.SetValue("Grace")
	v, _ = inst.Value("name")
	assert.Equal(t, "Grace", v)

	_, ok = inst.Value("age")
	assert.False(t, ok)

	other := NewObjectInstance(class)
	assert.False(t, other.AddProperty(pi), "values of another instance are rejected")

	assert.True(t, inst.RemoveProperty(pi))
	assert.False(t, inst.RemoveProperty(pi))
	assert.False(t, inst.RemoveProperty(nil))
}

func TestStringers(t *testing.T) {
	class := NewObjectClass("Person")
	name := NewObjectClassProperty(class, "name")
	NewObjectClassProperty(class, "email")
	inst := NewObjectInstance(class)
	pi := NewPropertyInstance(inst, name, "Ada")

	assert.Equal(t, "ObjectClass[id=0,version=0,name=Person,properties=[name,email]]", class.String())
	assert.Equal(t, "ObjectClassProperty[id=0,version=0,objectClass.id=0,name=name]", name.String())
	assert.Equal(t, "ObjectInstance[id=0,version=0,objectClass.id=0,properties=1]", inst.String())
	assert.Equal(t, `PropertyInstance[id=0,version=0,objectInstance.id=0,property.id=0,value="Ada"]`, pi.String())
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain", input: "Person"},
		{name: "unicode", input: "Persönlichkeit"},
		{name: "empty", input: "", wantErr: true},
		{name: "control character", input: "bad\nname", wantErr: true},
		{name: "invalid utf8", input: "\xff", wantErr: true},
		{name: "too long", input: string(make([]byte, MaxNameLength+1)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("name", tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
