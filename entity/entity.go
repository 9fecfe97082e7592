package entity

import (
	"fmt"
	"sort"
	"strings"
)

// StoreKey addresses a single entity instance in the store.
type StoreKey struct {
	Subgraph   string `json:"subgraph"`
	EntityType string `json:"entity"`
	ID         string `json:"id"`
}

func NewStoreKey(subgraph, entityType, id string) StoreKey {
	return StoreKey{Subgraph: subgraph, EntityType: entityType, ID: id}
}

func (k StoreKey) String() string {
	return k.Subgraph + "/" + k.EntityType + "/" + k.ID
}

func (k StoreKey) Validate() error {
	if k.Subgraph == "" {
		return fmt.Errorf("store key %q: empty subgraph", k)
	}
	if k.EntityType == "" {
		return fmt.Errorf("store key %q: empty entity type", k)
	}
	if k.ID == "" {
		return fmt.Errorf("store key %q: empty id", k)
	}
	return nil
}

// Entity is a full set of attributes for one entity instance. An Entity
// carried by an EntitySet event replaces the stored one entirely.
type Entity map[string]Value

func (e Entity) Get(attribute string) (Value, bool) {
	v, found := e[attribute]
	return v, found
}

func (e Entity) Attributes() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e Entity) Equal(other Entity) bool {
	if len(e) != len(other) {
		return false
	}
	for k, v := range e {
		o, found := other[k]
		if !found || !v.Equal(o) {
			return false
		}
	}
	return true
}

func (e Entity) String() string {
	var parts []string
	for _, attr := range e.Attributes() {
		parts = append(parts, attr+": "+e[attr].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
