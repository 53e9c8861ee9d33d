package fish

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

const (
	DeckSize         = 48
	HalfSuitCount    = 8
	CardsPerHalfSuit = 6
	MinPlayers       = 4
	MaxPlayers       = 10
)

type Suit string

const (
	Clubs    Suit = "clubs"
	Diamonds Suit = "diamonds"
	Hearts   Suit = "hearts"
	Spades   Suit = "spades"
)

var Suits = []Suit{Clubs, Diamonds, Hearts, Spades}

var suitSymbol = map[Suit]string{
	Clubs:    "♣",
	Diamonds: "♦",
	Hearts:   "♥",
	Spades:   "♠",
}

func (s Suit) Valid() bool {
	_, ok := suitSymbol[s]
	return ok
}

func (s Suit) Symbol() string {
	return suitSymbol[s]
}

// Rank is the face value of a card. Eights are not part of the deck.
type Rank string

var (
	LowRanks  = []Rank{"2", "3", "4", "5", "6", "7"}
	HighRanks = []Rank{"9", "10", "J", "Q", "K", "A"}
)

func (r Rank) IsLow() bool {
	for _, low := range LowRanks {
		if r == low {
			return true
		}
	}
	return false
}

func (r Rank) Valid() bool {
	if r.IsLow() {
		return true
	}
	for _, high := range HighRanks {
		if r == high {
			return true
		}
	}
	return false
}

type Card struct {
	Suit Suit
	Rank Rank
}

func NewCard(rank Rank, suit Suit) Card {
	return Card{Suit: suit, Rank: rank}
}

// ID is the wire identifier of a card, e.g. "10-hearts".
func (c Card) ID() string {
	return string(c.Rank) + "-" + string(c.Suit)
}

func (c Card) String() string {
	return string(c.Rank) + c.Suit.Symbol()
}

func (c Card) Valid() bool {
	return c.Suit.Valid() && c.Rank.Valid()
}

func (c Card) HalfSuit() HalfSuit {
	if c.Rank.IsLow() {
		return NewHalfSuit(c.Suit, Low)
	}
	return NewHalfSuit(c.Suit, High)
}

type cardJSON struct {
	Suit  Suit   `json:"suit"`
	Value Rank   `json:"value"`
	ID    string `json:"id"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{Suit: c.Suit, Value: c.Rank, ID: c.ID()})
}

// UnmarshalJSON accepts either suit/value fields or a bare id.
func (c *Card) UnmarshalJSON(data []byte) error {
	var raw cardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Suit == "" && raw.Value == "" && raw.ID != "" {
		parsed, err := ParseCard(raw.ID)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	*c = Card{Suit: raw.Suit, Rank: raw.Value}
	return nil
}

// ParseCard parses a wire id such as "Q-spades".
func ParseCard(id string) (Card, error) {
	rank, suit, ok := strings.Cut(id, "-")
	if !ok {
		return Card{}, fmt.Errorf("INVALID_CARD: malformed card id %q", id)
	}
	card := Card{Suit: Suit(suit), Rank: Rank(rank)}
	if !card.Valid() {
		return Card{}, fmt.Errorf("INVALID_CARD: unknown card %q", id)
	}
	return card, nil
}

type Level string

const (
	Low  Level = "low"
	High Level = "high"
)

// HalfSuit is one of the eight scoring groups, e.g. "hearts-low".
type HalfSuit string

func NewHalfSuit(suit Suit, level Level) HalfSuit {
	return HalfSuit(string(suit) + "-" + string(level))
}

func (h HalfSuit) parts() (Suit, Level) {
	suit, level, _ := strings.Cut(string(h), "-")
	return Suit(suit), Level(level)
}

func (h HalfSuit) Suit() Suit {
	suit, _ := h.parts()
	return suit
}

func (h HalfSuit) Level() Level {
	_, level := h.parts()
	return level
}

func (h HalfSuit) Valid() bool {
	suit, level := h.parts()
	return suit.Valid() && (level == Low || level == High)
}

// Cards returns the six canonical cards of the half-suit.
func (h HalfSuit) Cards() []Card {
	if !h.Valid() {
		return nil
	}
	suit, level := h.parts()
	ranks := HighRanks
	if level == Low {
		ranks = LowRanks
	}
	cards := make([]Card, 0, CardsPerHalfSuit)
	for _, rank := range ranks {
		cards = append(cards, Card{Suit: suit, Rank: rank})
	}
	return cards
}

func AllHalfSuits() []HalfSuit {
	halves := make([]HalfSuit, 0, HalfSuitCount)
	for _, suit := range Suits {
		halves = append(halves, NewHalfSuit(suit, Low), NewHalfSuit(suit, High))
	}
	return halves
}

func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, suit := range Suits {
		for _, rank := range LowRanks {
			deck = append(deck, Card{Suit: suit, Rank: rank})
		}
		for _, rank := range HighRanks {
			deck = append(deck, Card{Suit: suit, Rank: rank})
		}
	}
	return deck
}

// Shuffle permutes the deck in place (Fisher-Yates).
func Shuffle(deck []Card, rng *rand.Rand) {
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

var ErrInvalidPlayerCount = errors.New("INVALID_PLAYER_COUNT: Need 4-10 players (even number)")

func ValidPlayerCount(n int) bool {
	return n >= MinPlayers && n <= MaxPlayers && n%2 == 0
}

// Deal shuffles a fresh deck and hands out contiguous slices of
// 48/numPlayers cards. The 48%numPlayers leftover cards are returned as
// undealt unless dealRemainder is set, in which case they go round-robin
// to the first players.
func Deal(numPlayers int, rng *rand.Rand, dealRemainder bool) (hands [][]Card, undealt []Card, err error) {
	if !ValidPlayerCount(numPlayers) {
		return nil, nil, ErrInvalidPlayerCount
	}

	deck := NewDeck()
	Shuffle(deck, rng)

	perPlayer := len(deck) / numPlayers
	hands = make([][]Card, numPlayers)
	for i := range numPlayers {
		hands[i] = append([]Card{}, deck[i*perPlayer:(i+1)*perPlayer]...)
	}

	rest := deck[numPlayers*perPlayer:]
	if dealRemainder {
		for i, card := range rest {
			hands[i%numPlayers] = append(hands[i%numPlayers], card)
		}
		return hands, nil, nil
	}

	return hands, append([]Card{}, rest...), nil
}

func containsCard(cards []Card, card Card) bool {
	for _, c := range cards {
		if c == card {
			return true
		}
	}
	return false
}

func removeCard(cards []Card, card Card) ([]Card, bool) {
	for i, c := range cards {
		if c == card {
			return append(cards[:i:i], cards[i+1:]...), true
		}
	}
	return cards, false
}

func withoutHalfSuit(cards []Card, half HalfSuit) (kept []Card, removed int) {
	kept = make([]Card, 0, len(cards))
	for _, c := range cards {
		if c.HalfSuit() == half {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	return kept, removed
}
