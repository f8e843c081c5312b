// Package mitre serves the MITRE ATT&CK tactics and techniques offered in the
// labeling form.
package mitre

import (
	_ "embed"
	"fmt"
	"sort"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Tactic is a MITRE ATT&CK tactic.
type Tactic struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Technique is a MITRE ATT&CK technique and the tactics it belongs to.
type Technique struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	TacticIDs   []string `json:"tactic_ids" yaml:"tactic_ids"`
	Description string   `json:"description" yaml:"description"`
}

// Catalog is an immutable set of tactics and techniques.
type Catalog struct {
	tactics    []Tactic
	techniques []Technique
}

type catalogFile struct {
	Tactics    []Tactic    `yaml:"tactics"`
	Techniques []Technique `yaml:"techniques"`
}

func newCatalog(f catalogFile) (*Catalog, error) {
	seen := make(map[string]struct{}, len(f.Tactics))
	for _, t := range f.Tactics {
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("tactic %q: id and name are required", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tactic %s", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	for i, t := range f.Techniques {
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("technique %d: id and name are required", i)
		}
		if t.TacticIDs == nil {
			f.Techniques[i].TacticIDs = []string{}
		}
	}

	sort.SliceStable(f.Tactics, func(i, j int) bool { return f.Tactics[i].ID < f.Tactics[j].ID })
	return &Catalog{tactics: f.Tactics, techniques: f.Techniques}, nil
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(embeddedCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded MITRE catalog is invalid: %v", err))
	}
	return c
}

// Tactics returns every tactic ordered by ID.
func (c *Catalog) Tactics() []Tactic {
	return append([]Tactic(nil), c.tactics...)
}

// Techniques returns the techniques of tacticID, or all of them when it is empty.
func (c *Catalog) Techniques(tacticID string) []Technique {
	out := make([]Technique, 0, len(c.techniques))
	for _, t := range c.techniques {
		if tacticID == "" || contains(t.TacticIDs, tacticID) {
			out = append(out, t)
		}
	}
	return out
}

// Tactic looks up a tactic by ID.
func (c *Catalog) Tactic(id string) (Tactic, bool) {
	for _, t := range c.tactics {
		if t.ID == id {
			return t, true
		}
	}
	return Tactic{}, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
