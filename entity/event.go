package entity

import "fmt"

// Event is a mutation published by a runtime host. It is either an
// *EntitySet or an *EntityRemoved.
type Event interface {
	StoreKey() StoreKey
	isEvent()
}

// EntitySet creates the entity at Key, or replaces it entirely.
type EntitySet struct {
	Key    StoreKey
	Entity Entity
}

func NewEntitySet(key StoreKey, ent Entity) *EntitySet {
	return &EntitySet{Key: key, Entity: ent}
}

func (e *EntitySet) StoreKey() StoreKey { return e.Key }
func (*EntitySet) isEvent()             {}

func (e *EntitySet) String() string {
	return fmt.Sprintf("set %s %s", e.Key, e.Entity)
}

// EntityRemoved deletes the entity at Key.
type EntityRemoved struct {
	Key StoreKey
}

func NewEntityRemoved(key StoreKey) *EntityRemoved {
	return &EntityRemoved{Key: key}
}

func (e *EntityRemoved) StoreKey() StoreKey { return e.Key }
func (*EntityRemoved) isEvent()             {}

func (e *EntityRemoved) String() string {
	return fmt.Sprintf("remove %s", e.Key)
}
