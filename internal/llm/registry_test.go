package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailmind/internal/models"
)

func testDescriptors() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		{ID: "alpha", Name: "alpha-1", Backend: BackendOpenAI, ContextWindow: 8192, Default: true},
		{ID: "beta", Name: "beta-1", Backend: BackendGroq, ContextWindow: 8192},
		{ID: "gamma", Name: "gamma-1", Backend: BackendOpenRouter, ContextWindow: 8192},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(testDescriptors())
	require.NoError(t, err)

	d, ok := r.Lookup("beta")
	assert.True(t, ok)
	assert.Equal(t, "beta-1", d.Name)

	_, ok = r.Lookup("ghost-model")
	assert.False(t, ok)

	assert.Equal(t, "alpha", r.Default().ID)
	assert.Len(t, r.List(), 3)
}

func TestNewRegistry_DefaultValidation(t *testing.T) {
	none := testDescriptors()
	none[0].Default = false
	_, err := NewRegistry(none)
	assert.Error(t, err)

	two := testDescriptors()
	two[1].Default = true
	_, err = NewRegistry(two)
	assert.Error(t, err)

	_, err = NewRegistry(nil)
	assert.Error(t, err)
}

func TestNewRegistry_DuplicateID(t *testing.T) {
	dup := testDescriptors()
	dup[2].ID = "alpha"
	_, err := NewRegistry(dup)
	assert.Error(t, err)
}

func TestFallbacksFor(t *testing.T) {
	r, err := NewRegistry(testDescriptors())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "gamma"}, r.FallbacksFor("beta"))
	assert.Equal(t, []string{"beta", "gamma"}, r.FallbacksFor("alpha"))
}

func TestParseDescriptors(t *testing.T) {
	descriptors, err := ParseDescriptors("m1:model-one:openai:8000:default; m2:model-two:groq:16000")
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	assert.Equal(t, "m1", descriptors[0].ID)
	assert.Equal(t, "model-one", descriptors[0].Name)
	assert.True(t, descriptors[0].Default)
	assert.Equal(t, 16000, descriptors[1].ContextWindow)
	assert.False(t, descriptors[1].Default)
}

func TestParseDescriptors_Invalid(t *testing.T) {
	_, err := ParseDescriptors("just-an-id")
	assert.Error(t, err)

	_, err = ParseDescriptors("id:name:backend:not-a-number")
	assert.Error(t, err)
}
