package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveScope(t *testing.T) {
	tests := []struct {
		name        string
		hasUsers    bool
		hasProducts bool
		want        Scope
	}{
		{"no relations", false, false, ScopeAll},
		{"users only", true, false, ScopeClient},
		{"products only", false, true, ScopeProduct},
		{"both", true, true, ScopeProductClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveScope(tt.hasUsers, tt.hasProducts))
		})
	}
}

func TestScopeDimensions(t *testing.T) {
	assert.False(t, ScopeAll.IncludesProduct())
	assert.False(t, ScopeAll.IncludesClient())
	assert.True(t, ScopeProduct.IncludesProduct())
	assert.False(t, ScopeProduct.IncludesClient())
	assert.False(t, ScopeClient.IncludesProduct())
	assert.True(t, ScopeClient.IncludesClient())
	assert.True(t, ScopeProductClient.IncludesProduct())
	assert.True(t, ScopeProductClient.IncludesClient())
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "WELCOME10", NormalizeCode("  welcome10 "))
	assert.Equal(t, "TENOFF", NormalizeCode("TenOff"))
}

func TestValidType(t *testing.T) {
	assert.True(t, ValidType(TypePercent))
	assert.True(t, ValidType(TypeCurrency))
	assert.True(t, ValidType(TypeFree))
	assert.False(t, ValidType(Type("bogus")))
}

func TestValidAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	open := &Coupon{}
	assert.True(t, open.ValidAt(now))

	inside := &Coupon{ValidFrom: &before, ValidUntil: &after}
	assert.True(t, inside.ValidAt(now))

	notYet := &Coupon{ValidFrom: &after}
	assert.False(t, notYet.ValidAt(now))

	expired := &Coupon{ValidUntil: &before}
	assert.False(t, expired.ValidAt(now))
}

func TestEligibility(t *testing.T) {
	c := &Coupon{
		UserIDs:    []string{"u1", "u2"},
		ProductIDs: []string{"p1"},
	}

	assert.True(t, c.EligibleUser("u1"))
	assert.False(t, c.EligibleUser("u3"))
	assert.True(t, c.EligibleProduct("p1"))
	assert.False(t, c.EligibleProduct("p2"))
}
