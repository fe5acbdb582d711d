package components

import "github.com/stmobo/akashi"

// CardText holds the basic display text of a card.
type CardText struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
}

// CardType links a card to the abstract card-type entity it was printed
// from, grouping together data common to a character or card variety.
type CardType struct {
	TypeID akashi.Snowflake `json:"type_id"`
}

// Rarity is a card's drop-rate tier.
type Rarity uint8

const (
	RarityCommon Rarity = iota + 1
	RarityRare
	RarityEpic
	RarityLegendary
)

func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	default:
		return "unknown"
	}
}
