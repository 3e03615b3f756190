package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "quarter-scheduler:plan:Q1:2026:abc", Key("plan", "Q1", "2026", "abc"))
	assert.Equal(t, "quarter-scheduler:plan:*", Key("plan", "*"))
}
