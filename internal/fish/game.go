package fish

import (
	"errors"
	"math/rand"
	"slices"
	"time"
)

var (
	ErrGameOver          = errors.New("GAME_OVER: The game has already finished")
	ErrGamePaused        = errors.New("GAME_PAUSED: Game is paused")
	ErrNotYourTurn       = errors.New("NOT_YOUR_TURN: It is not your turn")
	ErrNotYourTeamsTurn  = errors.New("NOT_YOUR_TEAMS_TURN: Only allowed during your team's turn")
	ErrUnknownPlayer     = errors.New("UNKNOWN_PLAYER: Player is not part of this game")
	ErrInvalidTarget     = errors.New("INVALID_TARGET: You cannot ask yourself")
	ErrInvalidCard       = errors.New("INVALID_CARD: Unknown card")
	ErrInvalidHalfSuit   = errors.New("INVALID_HALF_SUIT: Unknown half-suit")
	ErrInvalidTeam       = errors.New("INVALID_TEAM: Team must be A or B")
	ErrAlreadyClaimed    = errors.New("ALREADY_CLAIMED: Half-suit has already been claimed")
	ErrNotClinched       = errors.New("NOT_CLINCHED: Team needs at least 5 half-suits to be declared winner")
	ErrAwaitingReconnect = errors.New("AWAITING_RECONNECT: Game is paused until the disconnected player returns")
)

// ClinchThreshold is the number of half-suits that guarantees a majority.
const ClinchThreshold = HalfSuitCount/2 + 1

type Reason string

const (
	ReasonSameTeam          Reason = "SAME_TEAM"
	ReasonAlreadyHasCard    Reason = "ALREADY_HAS_CARD"
	ReasonNoCardInHalfSuit  Reason = "NO_CARD_IN_HALFSUIT"
	ReasonWrongTeamMember   Reason = "WRONG_TEAM_MEMBER"
	ReasonWrongHalfSuitCard Reason = "WRONG_HALFSUIT_CARD"
	ReasonDuplicateCard     Reason = "DUPLICATE_CARD"
	ReasonPlayerMissingCard Reason = "PLAYER_MISSING_CARD"
	ReasonIncompleteClaim   Reason = "INCOMPLETE_CLAIM"
)

type TransactionType string

const (
	CardGiven       TransactionType = "CARD_GIVEN"
	CardNotFound    TransactionType = "CARD_NOT_FOUND"
	IllegalQuestion TransactionType = "ILLEGAL_QUESTION"
	ClaimSuccess    TransactionType = "CLAIM_SUCCESS"
	ClaimFailed     TransactionType = "CLAIM_FAILED"
)

// Permanent reports whether a transaction of this type belongs in the game
// log. Legal asks never do.
func (t TransactionType) Permanent() bool {
	return t == IllegalQuestion || t == ClaimSuccess || t == ClaimFailed
}

// Transaction describes a single ask or claim.
type Transaction struct {
	Type        TransactionType `json:"type"`
	PlayerID    PlayerID        `json:"playerId"`
	TargetID    PlayerID        `json:"targetId,omitempty"`
	Card        *Card           `json:"card,omitempty"`
	HalfSuit    HalfSuit        `json:"halfSuit,omitempty"`
	ClaimerTeam Team            `json:"claimerTeam,omitempty"`
	AwardedTo   Team            `json:"awardedTo,omitempty"`
	Reason      Reason          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

type Claims struct {
	A []HalfSuit `json:"A"`
	B []HalfSuit `json:"B"`
}

func (c Claims) Count(team Team) int {
	if team == TeamA {
		return len(c.A)
	}
	return len(c.B)
}

func (c Claims) Total() int {
	return len(c.A) + len(c.B)
}

func (c Claims) Owner(half HalfSuit) (Team, bool) {
	if slices.Contains(c.A, half) {
		return TeamA, true
	}
	if slices.Contains(c.B, half) {
		return TeamB, true
	}
	return "", false
}

func (c *Claims) award(team Team, half HalfSuit) {
	if team == TeamA {
		c.A = append(c.A, half)
		return
	}
	c.B = append(c.B, half)
}

// Leader returns the team with strictly more claims, or Tie.
func (c Claims) Leader() Team {
	switch {
	case len(c.A) > len(c.B):
		return TeamA
	case len(c.B) > len(c.A):
		return TeamB
	default:
		return Tie
	}
}

// DisconnectedMarker is set while the game waits for a player to come back.
type DisconnectedMarker struct {
	PlayerID       PlayerID  `json:"id"`
	Name           string    `json:"name"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
	ReconnectBy    time.Time `json:"reconnectBy"`
}

type GameState struct {
	Hands              map[PlayerID][]Card `json:"hands"`
	Teams              Teams               `json:"teams"`
	Order              []PlayerID          `json:"seatOrder"`
	CurrentPlayer      PlayerID            `json:"currentPlayer"`
	ClaimedHalfSuits   Claims              `json:"claimedHalfSuits"`
	GameLog            []Transaction       `json:"gameLog"`
	LastTransaction    *Transaction        `json:"lastTransaction"`
	IsPaused           bool                `json:"isPaused"`
	PausedBy           PlayerID            `json:"pausedBy,omitempty"`
	GameOver           bool                `json:"gameOver"`
	Winner             Team                `json:"winner,omitempty"`
	DisconnectedPlayer *DisconnectedMarker `json:"disconnectedPlayer"`
	// Undealt holds cards that belong to no hand, e.g. the deal remainder.
	Undealt            []Card              `json:"undealt"`

	now func() time.Time
}

type Options struct {
	DealRemainder bool
	Rand          *rand.Rand
	Now           func() time.Time
}

// NewGame deals a fresh deck to the players in seat order. The first seat
// takes the first turn.
func NewGame(order []PlayerID, teams Teams, opts Options) (*GameState, error) {
	if !ValidPlayerCount(len(order)) {
		return nil, ErrInvalidPlayerCount
	}
	if len(teams.A) != len(teams.B) || len(teams.A)+len(teams.B) != len(order) {
		return nil, ErrUnevenTeams
	}
	for _, id := range order {
		if _, ok := teams.Of(id); !ok {
			return nil, ErrNotOnTeam
		}
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	hands, undealt, err := Deal(len(order), rng, opts.DealRemainder)
	if err != nil {
		return nil, err
	}

	g := &GameState{
		Hands:            make(map[PlayerID][]Card, len(order)),
		Teams:            teams.Clone(),
		Order:            slices.Clone(order),
		CurrentPlayer:    order[0],
		ClaimedHalfSuits: Claims{A: []HalfSuit{}, B: []HalfSuit{}},
		GameLog:          []Transaction{},
		Undealt:          undealt,
		now:              now,
	}
	if g.Undealt == nil {
		g.Undealt = []Card{}
	}
	for i, id := range order {
		g.Hands[id] = hands[i]
	}
	return g, nil
}

func (g *GameState) clock() time.Time {
	if g.now == nil {
		return time.Now()
	}
	return g.now()
}

func (g *GameState) TeamOf(id PlayerID) (Team, bool) {
	return g.Teams.Of(id)
}

func (g *GameState) HasPlayer(id PlayerID) bool {
	_, ok := g.Hands[id]
	return ok
}

// CardCount is the number of cards still in play, hands and undealt.
func (g *GameState) CardCount() int {
	n := len(g.Undealt)
	for _, hand := range g.Hands {
		n += len(hand)
	}
	return n
}

func (g *GameState) record(tx Transaction) {
	tx.Timestamp = g.clock()
	if tx.Type.Permanent() {
		g.GameLog = append(g.GameLog, tx)
	}
	g.LastTransaction = &tx
}

func (g *GameState) teamHoldsTurn(id PlayerID) (Team, error) {
	team, ok := g.Teams.Of(id)
	if !ok {
		return "", ErrUnknownPlayer
	}
	current, ok := g.Teams.Of(g.CurrentPlayer)
	if !ok || current != team {
		return "", ErrNotYourTeamsTurn
	}
	return team, nil
}

// CheckQuestion applies the ask legality rules in priority order. An empty
// reason means the question is legal.
func CheckQuestion(askerHand []Card, card Card, askerTeam, targetTeam Team) Reason {
	if askerTeam == targetTeam {
		return ReasonSameTeam
	}
	if containsCard(askerHand, card) {
		return ReasonAlreadyHasCard
	}
	half := card.HalfSuit()
	for _, c := range askerHand {
		if c.HalfSuit() == half {
			return ""
		}
	}
	return ReasonNoCardInHalfSuit
}

type AskOutcome struct {
	Legal       bool     `json:"legal"`
	Reason      Reason   `json:"reason,omitempty"`
	Transferred bool     `json:"transferred"`
	NextPlayer  PlayerID `json:"currentPlayer"`
}

// AskCard resolves one question. Illegal questions are logged and pass the
// turn to the target; legal ones move the card if the target has it.
func (g *GameState) AskCard(asker, target PlayerID, card Card) (AskOutcome, error) {
	if g.GameOver {
		return AskOutcome{}, ErrGameOver
	}
	if g.IsPaused {
		return AskOutcome{}, ErrGamePaused
	}
	if asker != g.CurrentPlayer {
		return AskOutcome{}, ErrNotYourTurn
	}
	if asker == target {
		return AskOutcome{}, ErrInvalidTarget
	}
	if !card.Valid() {
		return AskOutcome{}, ErrInvalidCard
	}
	askerTeam, ok := g.Teams.Of(asker)
	if !ok {
		return AskOutcome{}, ErrUnknownPlayer
	}
	targetTeam, ok := g.Teams.Of(target)
	if !ok || !g.HasPlayer(target) {
		return AskOutcome{}, ErrUnknownPlayer
	}

	c := card
	if reason := CheckQuestion(g.Hands[asker], card, askerTeam, targetTeam); reason != "" {
		g.CurrentPlayer = target
		g.record(Transaction{
			Type:     IllegalQuestion,
			PlayerID: asker,
			TargetID: target,
			Card:     &c,
			Reason:   reason,
		})
		return AskOutcome{Reason: reason, NextPlayer: target}, nil
	}

	remaining, found := removeCard(g.Hands[target], card)
	if !found {
		g.CurrentPlayer = target
		g.record(Transaction{Type: CardNotFound, PlayerID: asker, TargetID: target, Card: &c})
		return AskOutcome{Legal: true, NextPlayer: target}, nil
	}

	g.Hands[target] = remaining
	g.Hands[asker] = append(slices.Clone(g.Hands[asker]), card)
	g.record(Transaction{Type: CardGiven, PlayerID: asker, TargetID: target, Card: &c})
	return AskOutcome{Legal: true, Transferred: true, NextPlayer: asker}, nil
}

// Distribution maps each named player to the cards they are claimed to hold.
type Distribution map[PlayerID][]Card

type ClaimOutcome struct {
	Success      bool   `json:"success"`
	Reason       Reason `json:"reason,omitempty"`
	AwardedTo    Team   `json:"awardedTo"`
	CardsRemoved int    `json:"cardsRemoved"`
	GameOver     bool   `json:"gameOver"`
	Winner       Team   `json:"winner,omitempty"`
}

func (g *GameState) validateClaim(half HalfSuit, dist Distribution, target Team) Reason {
	named := make([]PlayerID, 0, len(dist))
	for id := range dist {
		named = append(named, id)
	}
	slices.Sort(named)

	members := g.Teams.Members(target)
	for _, id := range named {
		if !slices.Contains(members, id) {
			return ReasonWrongTeamMember
		}
	}

	seen := make(map[Card]bool, CardsPerHalfSuit)
	for _, id := range named {
		for _, card := range dist[id] {
			if card.HalfSuit() != half {
				return ReasonWrongHalfSuitCard
			}
			if seen[card] {
				return ReasonDuplicateCard
			}
			seen[card] = true
			if !containsCard(g.Hands[id], card) {
				return ReasonPlayerMissingCard
			}
		}
	}

	if len(seen) != CardsPerHalfSuit {
		return ReasonIncompleteClaim
	}
	return ""
}

// MakeClaim resolves a claim on a half-suit. A correct claim awards it to the
// asserted team; any mistake awards it to the claimer's opponents. Either way
// the six cards leave every hand.
func (g *GameState) MakeClaim(claimer PlayerID, half HalfSuit, dist Distribution, target Team) (ClaimOutcome, error) {
	if g.GameOver {
		return ClaimOutcome{}, ErrGameOver
	}
	// A team may claim during its own pause; a disconnect pause still holds
	// an absent player's hand.
	if g.DisconnectedPlayer != nil {
		return ClaimOutcome{}, ErrAwaitingReconnect
	}
	claimerTeam, err := g.teamHoldsTurn(claimer)
	if err != nil {
		return ClaimOutcome{}, err
	}
	if !half.Valid() {
		return ClaimOutcome{}, ErrInvalidHalfSuit
	}
	if !target.Valid() {
		return ClaimOutcome{}, ErrInvalidTeam
	}
	if _, claimed := g.ClaimedHalfSuits.Owner(half); claimed {
		return ClaimOutcome{}, ErrAlreadyClaimed
	}

	reason := g.validateClaim(half, dist, target)
	out := ClaimOutcome{Success: reason == "", Reason: reason, AwardedTo: target}
	txType := ClaimSuccess
	if !out.Success {
		out.AwardedTo = claimerTeam.Opponent()
		txType = ClaimFailed
	}

	g.ClaimedHalfSuits.award(out.AwardedTo, half)
	out.CardsRemoved = g.strip(half)
	g.record(Transaction{
		Type:        txType,
		PlayerID:    claimer,
		HalfSuit:    half,
		ClaimerTeam: claimerTeam,
		AwardedTo:   out.AwardedTo,
		Reason:      reason,
	})

	if g.ClaimedHalfSuits.Total() == HalfSuitCount {
		g.finish(g.ClaimedHalfSuits.Leader())
	}
	out.GameOver = g.GameOver
	out.Winner = g.Winner
	return out, nil
}

func (g *GameState) strip(half HalfSuit) int {
	total := 0
	for id, hand := range g.Hands {
		kept, removed := withoutHalfSuit(hand, half)
		g.Hands[id] = kept
		total += removed
	}
	kept, removed := withoutHalfSuit(g.Undealt, half)
	g.Undealt = kept
	return total + removed
}

func (g *GameState) finish(winner Team) {
	g.GameOver = true
	g.Winner = winner
	g.IsPaused = false
	g.PausedBy = ""
}

// TogglePause flips the pause flag. Any member of the team holding the turn
// may pause or unpause.
func (g *GameState) TogglePause(id PlayerID) (bool, error) {
	if g.GameOver {
		return false, ErrGameOver
	}
	if g.DisconnectedPlayer != nil {
		return false, ErrAwaitingReconnect
	}
	if _, err := g.teamHoldsTurn(id); err != nil {
		return false, err
	}
	if g.IsPaused {
		g.IsPaused = false
		g.PausedBy = ""
	} else {
		g.IsPaused = true
		g.PausedBy = id
	}
	return g.IsPaused, nil
}

// DeclareWinner ends the game early for a team that has clinched a majority.
// Authorization is the caller's concern.
func (g *GameState) DeclareWinner(team Team) error {
	if g.GameOver {
		return ErrGameOver
	}
	if !team.Valid() {
		return ErrInvalidTeam
	}
	if g.ClaimedHalfSuits.Count(team) < ClinchThreshold {
		return ErrNotClinched
	}
	g.finish(team)
	return nil
}

// Suspend pauses the game on behalf of a disconnected player. An existing
// marker for another player is kept.
func (g *GameState) Suspend(marker DisconnectedMarker) {
	g.IsPaused = true
	g.PausedBy = ""
	if g.DisconnectedPlayer == nil {
		m := marker
		g.DisconnectedPlayer = &m
	}
}

// Resume clears the marker for id. If another player is still away, next
// takes over the marker and the game stays paused.
func (g *GameState) Resume(id PlayerID, next *DisconnectedMarker) {
	if g.DisconnectedPlayer != nil && g.DisconnectedPlayer.PlayerID != id {
		return
	}
	if next != nil {
		m := *next
		g.DisconnectedPlayer = &m
		g.IsPaused = !g.GameOver
		return
	}
	g.DisconnectedPlayer = nil
	g.IsPaused = false
	g.PausedBy = ""
}

type Redistribution struct {
	PlayerID   PlayerID   `json:"playerId"`
	CardsMoved int        `json:"cardsRedistributed"`
	Recipients []PlayerID `json:"recipients"`
	NextPlayer PlayerID   `json:"currentPlayer"`
	GameOver   bool       `json:"gameOver"`
	Winner     Team       `json:"winner,omitempty"`
}

// RemovePlayer takes a player out of the game. Their hand is dealt
// round-robin to recipients (falling back to every remaining player when
// none of them is still seated) and the turn moves to the next seat if it
// was theirs. A team left with no members loses by attrition.
func (g *GameState) RemovePlayer(id PlayerID, recipients []PlayerID) (Redistribution, error) {
	if _, ok := g.Hands[id]; !ok {
		if _, onTeam := g.Teams.Of(id); !onTeam {
			return Redistribution{}, ErrUnknownPlayer
		}
	}

	hand := g.Hands[id]
	delete(g.Hands, id)
	g.Teams.remove(id)

	seat := slices.Index(g.Order, id)
	if seat >= 0 {
		g.Order = slices.Delete(slices.Clone(g.Order), seat, seat+1)
	}

	targets := make([]PlayerID, 0, len(recipients))
	for _, r := range recipients {
		if r != id && g.HasPlayer(r) && !slices.Contains(targets, r) {
			targets = append(targets, r)
		}
	}
	if len(targets) == 0 {
		for _, r := range g.Order {
			if g.HasPlayer(r) {
				targets = append(targets, r)
			}
		}
	}

	if len(targets) == 0 {
		g.Undealt = append(g.Undealt, hand...)
	} else {
		for i, card := range hand {
			to := targets[i%len(targets)]
			g.Hands[to] = append(slices.Clone(g.Hands[to]), card)
		}
	}

	if g.CurrentPlayer == id {
		g.CurrentPlayer = ""
		if len(g.Order) > 0 && seat >= 0 {
			g.CurrentPlayer = g.Order[seat%len(g.Order)]
		} else if len(g.Order) > 0 {
			g.CurrentPlayer = g.Order[0]
		}
	}
	if g.PausedBy == id {
		g.PausedBy = ""
		g.IsPaused = g.DisconnectedPlayer != nil
	}

	if !g.GameOver {
		switch {
		case len(g.Teams.A) == 0 && len(g.Teams.B) == 0:
			g.finish(g.ClaimedHalfSuits.Leader())
		case len(g.Teams.A) == 0:
			g.finish(TeamB)
		case len(g.Teams.B) == 0:
			g.finish(TeamA)
		}
	}

	out := Redistribution{
		PlayerID:   id,
		CardsMoved: len(hand),
		NextPlayer: g.CurrentPlayer,
		GameOver:   g.GameOver,
		Winner:     g.Winner,
	}
	if len(hand) > 0 {
		out.Recipients = targets
	}
	return out, nil
}

func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	c := *g
	c.Hands = make(map[PlayerID][]Card, len(g.Hands))
	for id, hand := range g.Hands {
		c.Hands[id] = slices.Clone(hand)
	}
	c.Teams = g.Teams.Clone()
	c.Order = slices.Clone(g.Order)
	c.ClaimedHalfSuits = Claims{A: slices.Clone(g.ClaimedHalfSuits.A), B: slices.Clone(g.ClaimedHalfSuits.B)}
	c.GameLog = slices.Clone(g.GameLog)
	for i := range c.GameLog {
		c.GameLog[i].Card = cloneCard(c.GameLog[i].Card)
	}
	if g.LastTransaction != nil {
		tx := *g.LastTransaction
		tx.Card = cloneCard(tx.Card)
		c.LastTransaction = &tx
	}
	if g.DisconnectedPlayer != nil {
		m := *g.DisconnectedPlayer
		c.DisconnectedPlayer = &m
	}
	c.Undealt = slices.Clone(g.Undealt)
	return &c
}

func cloneCard(c *Card) *Card {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
