package billing

// Category is the plan's catalog grouping.
type Category string

const (
	CategoryPersonal Category = "personal"
	CategoryBusiness Category = "business"
)

// Plan is an immutable catalog entry describing a purchasable tier and the
// capability it grants (number of card profiles).
type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     Category `json:"category"`
	PriceID      string   `json:"priceId"`
	ProfileSlots int      `json:"profileSlots"`
}

// Catalog maps external price ids to plans. Built once at startup from the
// configured price bindings; an unmapped price id reaching reconciliation is
// a configuration error, not a per-request condition.
type Catalog struct {
	byPriceID map[string]Plan
	byID      map[string]Plan
}

// NewCatalog builds a catalog from explicit plans.
func NewCatalog(plans ...Plan) *Catalog {
	c := &Catalog{
		byPriceID: make(map[string]Plan, len(plans)),
		byID:      make(map[string]Plan, len(plans)),
	}
	for _, p := range plans {
		c.byPriceID[p.PriceID] = p
		c.byID[p.ID] = p
	}
	return c
}

// DefaultCatalog returns the standard tapdeck tiers bound to the given
// provider price ids.
func DefaultCatalog(soloPriceID, proPriceID, teamPriceID string) *Catalog {
	return NewCatalog(
		Plan{ID: "solo", Name: "Solo", Category: CategoryPersonal, PriceID: soloPriceID, ProfileSlots: 1},
		Plan{ID: "pro", Name: "Pro", Category: CategoryBusiness, PriceID: proPriceID, ProfileSlots: 3},
		Plan{ID: "team", Name: "Team", Category: CategoryBusiness, PriceID: teamPriceID, ProfileSlots: 10},
	)
}

// ByPriceID looks up the plan bound to an external price id.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	p, ok := c.byPriceID[priceID]
	return p, ok
}

// ByID looks up a plan by its internal id.
func (c *Catalog) ByID(id string) (Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// PriceIDs returns every configured price id.
func (c *Catalog) PriceIDs() []string {
	ids := make([]string, 0, len(c.byPriceID))
	for id := range c.byPriceID {
		ids = append(ids, id)
	}
	return ids
}
