package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountCatalogLookup(t *testing.T) {
	c := NewAccountCatalog("com.example.iapdemo")

	a, ok := c.Lookup("com.example.iapdemo.plus1y")
	require.True(t, ok)
	assert.True(t, a.Equal(c.Plus1Y()))
	assert.Equal(t, "IAP Plus / year", a.String())

	a, ok = c.Lookup("com.example.iapdemo.free")
	require.True(t, ok)
	assert.Equal(t, "IAP Free", a.String())
}

func TestAccountCatalogUnknownIdentifier(t *testing.T) {
	c := NewAccountCatalog("com.example.iapdemo")

	_, ok := c.Lookup("com.example.iapdemo.enterprise")
	assert.False(t, ok)
	_, ok = c.Lookup("")
	assert.False(t, ok)
	// Identifiers from a different bundle never resolve.
	_, ok = c.Lookup("com.other.app.plus1y")
	assert.False(t, ok)
}

func TestAccountCatalogPurchasable(t *testing.T) {
	c := NewAccountCatalog("com.example.iapdemo")

	purchasable := c.Purchasable()
	require.Len(t, purchasable, 2)
	for _, a := range purchasable {
		assert.False(t, a.Equal(c.Free()), "the free tier is not purchasable")
	}
}

func TestProductIdentifierSet(t *testing.T) {
	s := NewProductIdentifierSet("b", "a", "b")
	assert.Len(t, s, 2)
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))

	s.Add("c")
	assert.Equal(t, []ProductIdentifier{"a", "b", "c"}, s.Sorted())
}
