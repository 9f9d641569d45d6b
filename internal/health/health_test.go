package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("store", Static("store", true, ""))
	r.Register("scorer", Static("scorer", true, ""))

	healthy, statuses := r.CheckAll(context.Background())

	assert.True(t, healthy)
	assert.Len(t, statuses, 2)
	assert.Equal(t, "store", statuses[0].Name)
	assert.True(t, statuses[1].Healthy)
}

func TestRegistry_OneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("store", Static("store", true, ""))
	r.Register("database", Static("database", false, "connection refused"))

	healthy, statuses := r.CheckAll(context.Background())

	assert.False(t, healthy)
	assert.False(t, statuses[1].Healthy)
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestRegistry_Empty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())

	assert.True(t, healthy)
	assert.Empty(t, statuses)
}
