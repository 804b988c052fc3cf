package model

// VendorConfig describes how one vendor shows up on a farm's invoices.
type VendorConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Identifiers []string `json:"identifiers" yaml:"identifiers"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	// Accounts holds account-like numbers listed beside the identifiers.
	// They count toward collision detection but not toward scoring.
	Accounts []string `json:"accounts,omitempty" yaml:"accounts,omitempty"`
}

// Farm is an organizational unit invoices are attributed to. Farms are
// loaded once per run and treated as read-only.
type Farm struct {
	ID          string                  `json:"id" yaml:"id"`
	Name        string                  `json:"name" yaml:"name"`
	Identifiers []string                `json:"identifiers" yaml:"identifiers"`
	Keywords    []string                `json:"keywords" yaml:"keywords"`
	Vendors     map[string]VendorConfig `json:"vendors" yaml:"vendors"`
}

// DisplayName returns the farm name, falling back to its id.
func (f Farm) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// FarmsConfig is the full farm roster.
type FarmsConfig struct {
	Farms []Farm `json:"farms" yaml:"farms"`
}

// Lookup returns the farm with the given id.
func (c *FarmsConfig) Lookup(id string) (Farm, bool) {
	if c == nil {
		return Farm{}, false
	}
	for _, f := range c.Farms {
		if f.ID == id {
			return f, true
		}
	}
	return Farm{}, false
}

// FarmName returns the display name for id, or id itself when unknown.
func (c *FarmsConfig) FarmName(id string) string {
	if f, ok := c.Lookup(id); ok {
		return f.DisplayName()
	}
	return id
}
