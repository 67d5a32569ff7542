package mission

import (
	"sync"

	"example.com/healthtrack/internal/domain"
)

// Catalog holds static mission definitions indexed by ID and by category.
type Catalog struct {
	mu    sync.RWMutex
	byID  map[string]domain.MissionDefinition
	byCat map[domain.Domain][]string
}

// NewCatalog constructs a Catalog from the given definitions.
func NewCatalog(defs ...domain.MissionDefinition) *Catalog {
	c := &Catalog{
		byID:  make(map[string]domain.MissionDefinition),
		byCat: make(map[domain.Domain][]string),
	}
	for _, def := range defs {
		c.Put(def)
	}
	return c
}

// DefaultCatalog returns the seed definitions shipped with the service.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		domain.MissionDefinition{ID: "water-8-glasses", Category: domain.DomainWater, TargetValue: 8, Unit: "glasses", Points: 10, Cadence: domain.CadenceDaily},
		domain.MissionDefinition{ID: "meals-3-logged", Category: domain.DomainMeal, TargetValue: 3, Unit: "meals", Points: 10, Cadence: domain.CadenceDaily},
		domain.MissionDefinition{ID: "steps-10k", Category: domain.DomainFitness, TargetValue: 10000, Unit: "steps", Points: 15, Cadence: domain.CadenceDaily},
		domain.MissionDefinition{ID: "sleep-8-hours", Category: domain.DomainSleep, TargetValue: 8, Unit: "hours", Points: 10, Cadence: domain.CadenceDaily},
		domain.MissionDefinition{ID: "mood-daily-checkin", Category: domain.DomainMood, TargetValue: 1, Unit: "checkins", Points: 5, Cadence: domain.CadenceDaily},
		domain.MissionDefinition{ID: "steps-program-250k", Category: domain.DomainFitness, TargetValue: 250000, Unit: "steps", Points: 100, Cadence: domain.CadenceProgram},
	)
}

// Put inserts or replaces a definition.
func (c *Catalog) Put(def domain.MissionDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[def.ID]; !exists {
		c.byCat[def.Category] = append(c.byCat[def.Category], def.ID)
	}
	c.byID[def.ID] = def
}

// Get looks up a definition by ID.
func (c *Catalog) Get(id string) (domain.MissionDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.byID[id]
	return def, ok
}

// IDsForCategory returns the definition IDs mapped to a tracking domain.
func (c *Catalog) IDsForCategory(d domain.Domain) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.byCat[d]))
	copy(ids, c.byCat[d])
	return ids
}
