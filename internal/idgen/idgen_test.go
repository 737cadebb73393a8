package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Format(t *testing.T) {
	id := New()
	parts := strings.Split(id, "-")
	assert.Len(t, parts, 5)
	assert.Len(t, id, 36)
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("pay_")
	assert.True(t, strings.HasPrefix(id, "pay_"))
	assert.Len(t, id, 4+24)
}

func TestNonce_URLSafe(t *testing.T) {
	n := Nonce()
	assert.Len(t, n, 32)
	assert.NotContains(t, n, "=")
	assert.NotContains(t, n, "+")
	assert.NotContains(t, n, "/")
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := Nonce()
		assert.False(t, seen[n], "duplicate nonce")
		seen[n] = true
	}
}
