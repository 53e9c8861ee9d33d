package fish

import (
	"errors"
	"math/rand"
	"slices"
)

type PlayerID string

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
	// Tie is only ever used as a winner value.
	Tie Team = "TIE"
)

func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

func (t Team) Opponent() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

type Teams struct {
	A []PlayerID `json:"A"`
	B []PlayerID `json:"B"`
}

func (t Teams) Of(id PlayerID) (Team, bool) {
	if slices.Contains(t.A, id) {
		return TeamA, true
	}
	if slices.Contains(t.B, id) {
		return TeamB, true
	}
	return "", false
}

func (t Teams) Members(team Team) []PlayerID {
	if team == TeamA {
		return t.A
	}
	return t.B
}

func (t Teams) All() []PlayerID {
	return append(append(make([]PlayerID, 0, len(t.A)+len(t.B)), t.A...), t.B...)
}

func (t Teams) Clone() Teams {
	return Teams{A: slices.Clone(t.A), B: slices.Clone(t.B)}
}

func (t *Teams) remove(id PlayerID) {
	t.A = slices.DeleteFunc(slices.Clone(t.A), func(p PlayerID) bool { return p == id })
	t.B = slices.DeleteFunc(slices.Clone(t.B), func(p PlayerID) bool { return p == id })
}

var (
	ErrUnevenTeams    = errors.New("UNEVEN_TEAMS: Players cannot be split into two equal teams")
	ErrNotOnTeam      = errors.New("NOT_ON_TEAM: Player is not on either team")
	ErrSwapSameTeam   = errors.New("SAME_TEAM: Swap target must be on the opposite team")
	ErrSwapPending    = errors.New("SWAP_PENDING: You already have a pending swap request")
	ErrSwapNotFound   = errors.New("SWAP_NOT_FOUND: Swap request not found")
	ErrNotSwapTarget  = errors.New("NOT_SWAP_TARGET: Only the requested player can respond")
	ErrSwapNotPending = errors.New("SWAP_NOT_PENDING: Swap request was already answered")
	ErrSwapWithSelf   = errors.New("INVALID_SWAP: Cannot swap with yourself")
)

// AssignTeams shuffles the players and splits them into two equal halves.
func AssignTeams(ids []PlayerID, rng *rand.Rand) (Teams, error) {
	if len(ids) == 0 || len(ids)%2 != 0 {
		return Teams{}, ErrUnevenTeams
	}

	shuffled := slices.Clone(ids)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	half := len(shuffled) / 2
	return Teams{
		A: slices.Clone(shuffled[:half]),
		B: slices.Clone(shuffled[half:]),
	}, nil
}

type SwapStatus string

const (
	SwapPending  SwapStatus = "pending"
	SwapAccepted SwapStatus = "accepted"
	SwapDeclined SwapStatus = "declined"
)

type SwapRequest struct {
	ID       int        `json:"id"`
	FromID   PlayerID   `json:"fromId"`
	TargetID PlayerID   `json:"targetId"`
	Status   SwapStatus `json:"status"`
}

// TeamSetup is the negotiation phase between assignment and confirmation.
type TeamSetup struct {
	Teams         Teams         `json:"teams"`
	SwapRequests  []SwapRequest `json:"swapRequests"`
	NextRequestID int           `json:"-"`
}

func NewTeamSetup(ids []PlayerID, rng *rand.Rand) (*TeamSetup, error) {
	teams, err := AssignTeams(ids, rng)
	if err != nil {
		return nil, err
	}
	return &TeamSetup{
		Teams:         teams,
		SwapRequests:  make([]SwapRequest, 0),
		NextRequestID: 1,
	}, nil
}

// Randomize re-deals the current members into fresh teams and drops every
// swap request.
func (s *TeamSetup) Randomize(rng *rand.Rand) error {
	teams, err := AssignTeams(s.Teams.All(), rng)
	if err != nil {
		return err
	}
	s.Teams = teams
	s.SwapRequests = make([]SwapRequest, 0)
	return nil
}

func (s *TeamSetup) hasPending(id PlayerID) bool {
	for _, r := range s.SwapRequests {
		if r.FromID == id && r.Status == SwapPending {
			return true
		}
	}
	return false
}

func (s *TeamSetup) RequestSwap(from, target PlayerID) (SwapRequest, error) {
	if from == target {
		return SwapRequest{}, ErrSwapWithSelf
	}
	fromTeam, ok := s.Teams.Of(from)
	if !ok {
		return SwapRequest{}, ErrNotOnTeam
	}
	targetTeam, ok := s.Teams.Of(target)
	if !ok {
		return SwapRequest{}, ErrNotOnTeam
	}
	if fromTeam == targetTeam {
		return SwapRequest{}, ErrSwapSameTeam
	}
	if s.hasPending(from) {
		return SwapRequest{}, ErrSwapPending
	}

	if s.NextRequestID == 0 {
		s.NextRequestID = 1
	}
	req := SwapRequest{
		ID:       s.NextRequestID,
		FromID:   from,
		TargetID: target,
		Status:   SwapPending,
	}
	s.NextRequestID++
	s.SwapRequests = append(s.SwapRequests, req)
	return req, nil
}

// RespondSwap resolves a pending request. Accepting exchanges the two
// players' seats in one step and declines any other pending request that
// involves either of them, since those were made against the old teams.
func (s *TeamSetup) RespondSwap(requestID int, responder PlayerID, accept bool) (SwapRequest, error) {
	idx := slices.IndexFunc(s.SwapRequests, func(r SwapRequest) bool { return r.ID == requestID })
	if idx == -1 {
		return SwapRequest{}, ErrSwapNotFound
	}
	req := &s.SwapRequests[idx]
	if req.TargetID != responder {
		return SwapRequest{}, ErrNotSwapTarget
	}
	if req.Status != SwapPending {
		return SwapRequest{}, ErrSwapNotPending
	}

	if !accept {
		req.Status = SwapDeclined
		return *req, nil
	}

	fromTeam, ok := s.Teams.Of(req.FromID)
	if !ok {
		return SwapRequest{}, ErrNotOnTeam
	}
	targetTeam, ok := s.Teams.Of(req.TargetID)
	if !ok {
		return SwapRequest{}, ErrNotOnTeam
	}
	if fromTeam == targetTeam {
		return SwapRequest{}, ErrSwapSameTeam
	}

	teams := s.Teams.Clone()
	exchange(teams.A, req.FromID, req.TargetID)
	exchange(teams.B, req.FromID, req.TargetID)
	s.Teams = teams
	req.Status = SwapAccepted

	for i := range s.SwapRequests {
		other := &s.SwapRequests[i]
		if other.ID == req.ID || other.Status != SwapPending {
			continue
		}
		if involves(*other, req.FromID) || involves(*other, req.TargetID) {
			other.Status = SwapDeclined
		}
	}

	return *req, nil
}

// RemovePlayer drops a player from the teams and cancels their requests.
func (s *TeamSetup) RemovePlayer(id PlayerID) {
	s.Teams.remove(id)
	for i := range s.SwapRequests {
		if s.SwapRequests[i].Status == SwapPending && involves(s.SwapRequests[i], id) {
			s.SwapRequests[i].Status = SwapDeclined
		}
	}
}

func (s *TeamSetup) Clone() *TeamSetup {
	if s == nil {
		return nil
	}
	return &TeamSetup{
		Teams:         s.Teams.Clone(),
		SwapRequests:  slices.Clone(s.SwapRequests),
		NextRequestID: s.NextRequestID,
	}
}

func exchange(members []PlayerID, a, b PlayerID) {
	for i, id := range members {
		switch id {
		case a:
			members[i] = b
		case b:
			members[i] = a
		}
	}
}

func involves(r SwapRequest, id PlayerID) bool {
	return r.FromID == id || r.TargetID == id
}
