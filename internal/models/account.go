package models

// AccountType describes one purchasable account tier. Values are built once
// at startup by NewAccountCatalog and never mutated afterwards.
type AccountType struct {
	ProductIdentifier ProductIdentifier
	Title             string
	TitleSuffix       string
}

// String renders the display name, e.g. "IAP Plus / year".
func (a AccountType) String() string {
	return a.Title + a.TitleSuffix
}

// Equal reports whether two account types refer to the same product.
func (a AccountType) Equal(b AccountType) bool {
	return a.ProductIdentifier == b.ProductIdentifier
}

// AccountCatalog is the fixed registry of known account tiers. Product
// identifiers are derived from the application bundle identifier.
type AccountCatalog struct {
	free   AccountType
	plus1Y AccountType
	pro1Y  AccountType

	byID map[ProductIdentifier]AccountType
}

// NewAccountCatalog builds the registry for the given bundle identifier.
func NewAccountCatalog(bundleID string) *AccountCatalog {
	c := &AccountCatalog{
		free: AccountType{
			ProductIdentifier: ProductIdentifier(bundleID + ".free"),
			Title:             "IAP Free",
		},
		plus1Y: AccountType{
			ProductIdentifier: ProductIdentifier(bundleID + ".plus1y"),
			Title:             "IAP Plus",
			TitleSuffix:       " / year",
		},
		pro1Y: AccountType{
			ProductIdentifier: ProductIdentifier(bundleID + ".pro1y"),
			Title:             "IAP Pro",
			TitleSuffix:       " / year",
		},
	}
	c.byID = map[ProductIdentifier]AccountType{
		c.free.ProductIdentifier:   c.free,
		c.plus1Y.ProductIdentifier: c.plus1Y,
		c.pro1Y.ProductIdentifier:  c.pro1Y,
	}
	return c
}

// Free returns the free tier.
func (c *AccountCatalog) Free() AccountType { return c.free }

// Plus1Y returns the annual Plus tier.
func (c *AccountCatalog) Plus1Y() AccountType { return c.plus1Y }

// Pro1Y returns the annual Pro tier.
func (c *AccountCatalog) Pro1Y() AccountType { return c.pro1Y }

// Lookup resolves a product identifier to its account type. Unknown
// identifiers report ok=false; callers filter, never default.
func (c *AccountCatalog) Lookup(id ProductIdentifier) (AccountType, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Purchasable lists the tiers that can be bought through the store, i.e.
// everything except the free tier.
func (c *AccountCatalog) Purchasable() []AccountType {
	return []AccountType{c.plus1Y, c.pro1Y}
}
