package runcontroller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_SetTargetsThenTargets(t *testing.T) {
	r := NewRegistry()
	r.SetTargets("r1", []string{"dev1", "dev2"})
	assert.Equal(t, []string{"dev1", "dev2"}, r.Targets("r1"))
}

func TestRegistry_ClearRemovesEntry(t *testing.T) {
	r := NewRegistry()
	r.SetTargets("r1", []string{"dev1"})
	r.Clear("r1")
	assert.Nil(t, r.Targets("r1"))
}

func TestRegistry_UnknownRuntimeReturnsNil(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Targets("unknown"))
}

func TestRegistry_IsolatedAcrossRuntimes(t *testing.T) {
	r := NewRegistry()
	r.SetTargets("r1", []string{"dev1"})
	r.SetTargets("r2", []string{"dev2"})
	assert.Equal(t, []string{"dev1"}, r.Targets("r1"))
	assert.Equal(t, []string{"dev2"}, r.Targets("r2"))
}
