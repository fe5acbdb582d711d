// Package components provides ready-made component types for card-game
// worlds built on the akashi core: player inventories, soft-capped
// resource counters, and card metadata.
//
// All types are plain values with JSON tags, so they work unchanged with
// the JSON-codec persistence adapters.
package components

import (
	"slices"

	"github.com/stmobo/akashi"
)

// Inventory is a collection of card entities, attached to players.
//
// Cards are referenced by their EntityID; the card entities themselves and
// any data attached to them live in their own component stores.
type Inventory struct {
	Cards []akashi.EntityID `json:"cards"`
}

// Insert adds a card to the inventory. Reports false if the card was
// already present.
func (inv *Inventory) Insert(id akashi.EntityID) bool {
	if inv.Contains(id) {
		return false
	}
	inv.Cards = append(inv.Cards, id)
	return true
}

// Remove takes a card out of the inventory, reporting whether it was
// present.
func (inv *Inventory) Remove(id akashi.EntityID) bool {
	for i, c := range inv.Cards {
		if c == id {
			inv.Cards = slices.Delete(inv.Cards, i, i+1)
			return true
		}
	}
	return false
}

// Contains reports whether the inventory holds the given card.
func (inv *Inventory) Contains(id akashi.EntityID) bool {
	return slices.Contains(inv.Cards, id)
}

// Len reports how many cards the inventory holds.
func (inv *Inventory) Len() int {
	return len(inv.Cards)
}

// IsEmpty reports whether the inventory holds no cards.
func (inv *Inventory) IsEmpty() bool {
	return len(inv.Cards) == 0
}
