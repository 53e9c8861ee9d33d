package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fish-server/internal/fish"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// inbound is a server message with the payload left raw for the test to
// decode into the type it expects.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *testClient {
	t.Helper()
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msgType string, payload interface{}) {
	c.t.Helper()
	msg := ClientMessage{Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	require.NoError(c.t, c.conn.Write(context.Background(), websocket.MessageText, mustMarshal(msg)))
}

func (c *testClient) read() inbound {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	require.NoError(c.t, err)
	var msg inbound
	require.NoError(c.t, json.Unmarshal(data, &msg))
	return msg
}

// expect skips ahead to the next message of msgType and decodes its payload
// into dst. An unexpected error fails the test straight away.
func (c *testClient) expect(msgType string, dst interface{}) {
	c.t.Helper()
	for {
		msg := c.read()
		if msg.Type == EventError && msgType != EventError {
			c.t.Fatalf("expected %s, got error %s", msgType, msg.Payload)
		}
		if msg.Type != msgType {
			continue
		}
		if dst != nil {
			require.NoError(c.t, json.Unmarshal(msg.Payload, dst))
		}
		return
	}
}

func (c *testClient) expectError(code string) ErrorMessage {
	c.t.Helper()
	var msg ErrorMessage
	c.expect(EventError, &msg)
	assert.Equal(c.t, code, msg.Code, msg.Message)
	return msg
}

func (c *testClient) register(name, token string) UserRegisteredResponse {
	c.t.Helper()
	c.send(CmdRegisterUser, RegisterUserRequest{Name: name, Token: token})
	var resp UserRegisteredResponse
	c.expect(EventUserRegistered, &resp)
	return resp
}

// table is a room of registered players, one client each. Player i is
// named Player<i>; player 0 is the host.
type table struct {
	code     string
	clients  []*testClient
	ids      []fish.PlayerID
	sessions []UserRegisteredResponse
}

func seatClients(t *testing.T, url string, n int) *table {
	t.Helper()
	tb := &table{}

	for i := range n {
		c := dial(t, url)
		session := c.register(fmt.Sprintf("Player%d", i), "")

		if i == 0 {
			c.send(CmdCreateRoom, CreateRoomRequest{})
			var created RoomJoinedResponse
			c.expect(EventRoomCreated, &created)
			tb.code = created.RoomCode
			tb.ids = append(tb.ids, created.PlayerID)
		} else {
			c.send(CmdJoinRoom, JoinRoomRequest{RoomCode: tb.code})
			var joined PlayerNotification
			c.expect(EventPlayerJoined, &joined)
			tb.ids = append(tb.ids, joined.PlayerID)
			for _, seated := range tb.clients {
				seated.expect(EventPlayerJoined, nil)
			}
		}

		tb.clients = append(tb.clients, c)
		tb.sessions = append(tb.sessions, session)
	}
	return tb
}

// expectAll waits for msgType on every client except skip and decodes the
// payload the first of them saw into dst.
func (tb *table) expectAll(msgType string, skip int, dst interface{}) {
	for i, c := range tb.clients {
		if i == skip {
			continue
		}
		c.expect(msgType, dst)
		dst = nil
	}
}

func (tb *table) start(t *testing.T) RoomSnapshot {
	t.Helper()
	tb.clients[0].send(CmdStartGame, RoomCommand{})
	tb.expectAll(EventTeamsAssigned, -1, nil)

	tb.clients[0].send(CmdConfirmTeams, RoomCommand{RoomCode: tb.code})
	var started RoomEvent
	tb.expectAll(EventGameStarted, -1, &started)
	return started.Room
}

// ============================================================================
// LOBBY
// ============================================================================

func TestHandleRegisterUser(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	c := dial(t, url)
	first := c.register("Alice", "")
	assert.NotEmpty(first.Token)
	assert.NotEmpty(first.UserID)
	assert.Equal("Alice", first.Name)

	again := c.register("", first.Token)
	assert.Equal(first.UserID, again.UserID)

	c.send(CmdRegisterUser, RegisterUserRequest{Token: "forged"})
	c.expectError("TOKEN_NOT_FOUND")
}

func TestHandleCreateRoom(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	c := dial(t, url)
	c.send(CmdCreateRoom, CreateRoomRequest{Name: "Alice"})

	var created RoomJoinedResponse
	c.expect(EventRoomCreated, &created)
	assert.Len(created.RoomCode, 6)
	assert.Equal(created.PlayerID, created.Room.HostID)
	assert.Equal(PhaseLobby, created.Room.Phase)

	c.send(CmdCreateRoom, CreateRoomRequest{Name: "Alice"})
	c.expectError("ALREADY_IN_ROOM")
}

func TestHandleCreateRoom_InvalidUsername(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	c := dial(t, url)
	c.send(CmdCreateRoom, CreateRoomRequest{Name: ""})
	c.expectError("USERNAME_INVALID")
}

func TestHandleJoinRoom(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	host := dial(t, url)
	host.send(CmdCreateRoom, CreateRoomRequest{Name: "Alice"})
	var created RoomJoinedResponse
	host.expect(EventRoomCreated, &created)

	guest := dial(t, url)
	guest.send(CmdJoinRoom, JoinRoomRequest{RoomCode: created.RoomCode, Name: "Bob"})

	var seen PlayerNotification
	host.expect(EventPlayerJoined, &seen)
	assert.Equal("Bob", seen.Name)
	assert.Len(seen.Room.Players, 2)

	var own PlayerNotification
	guest.expect(EventPlayerJoined, &own)
	assert.Equal(seen.PlayerID, own.PlayerID)
}

func TestHandleJoinRoom_Errors(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	host := dial(t, url)
	host.send(CmdCreateRoom, CreateRoomRequest{Name: "Alice"})
	var created RoomJoinedResponse
	host.expect(EventRoomCreated, &created)

	c := dial(t, url)
	c.send(CmdJoinRoom, JoinRoomRequest{RoomCode: "ZZZZZZ", Name: "Bob"})
	c.expectError("ROOM_NOT_FOUND")

	c.send(CmdJoinRoom, JoinRoomRequest{RoomCode: "AB!", Name: "Bob"})
	c.expectError("INVALID_ROOM_CODE")

	c.send(CmdJoinRoom, JoinRoomRequest{RoomCode: created.RoomCode, Name: "alice"})
	c.expectError("USERNAME_TAKEN")
}

func TestHandleJoinRoom_RoomFull(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, fish.MaxPlayers)

	late := dial(t, url)
	late.send(CmdJoinRoom, JoinRoomRequest{RoomCode: tb.code, Name: "Late"})
	late.expectError("ROOM_FULL")
}

func TestCommandsRequireARoom(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	c := dial(t, url)
	for _, cmd := range []string{CmdStartGame, CmdConfirmTeams, CmdTogglePause, CmdLeaveGame} {
		c.send(cmd, RoomCommand{})
		c.expectError("NOT_IN_ROOM")
	}
}

func TestCommandForAnotherRoom(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	other := seatClients(t, url, 1)

	tb.clients[0].send(CmdStartGame, RoomCommand{RoomCode: other.code})
	tb.clients[0].expectError("NOT_IN_ROOM")
}

func TestHandleLeaveRoom(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 3)

	tb.clients[2].send(CmdLeaveRoom, LeaveRoomRequest{})
	var left RoomCommand
	tb.clients[2].expect(EventLeftRoom, &left)
	assert.Equal(tb.code, left.RoomCode)

	var seen PlayerNotification
	tb.clients[0].expect(EventPlayerLeft, &seen)
	assert.Equal(tb.ids[2], seen.PlayerID)
	assert.Len(seen.Room.Players, 2)
	tb.clients[1].expect(EventPlayerLeft, nil)

	// Free to create another room now.
	tb.clients[2].send(CmdCreateRoom, CreateRoomRequest{})
	tb.clients[2].expect(EventRoomCreated, nil)
	assert.Equal(2, s.rooms.RoomCount())
}

func TestHandleLeaveRoom_HostCloses(t *testing.T) {
	s, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 3)

	tb.clients[1].send(CmdLeaveRoom, LeaveRoomRequest{Close: true})
	tb.clients[1].expectError("NOT_HOST")

	tb.clients[0].send(CmdLeaveRoom, LeaveRoomRequest{Close: true})
	var closed RoomClosedNotification
	tb.expectAll(EventRoomClosed, -1, &closed)

	assert.Equal(t, tb.code, closed.RoomCode)
	assert.Equal(t, 0, s.rooms.RoomCount())

	tb.clients[1].send(CmdStartGame, RoomCommand{})
	tb.clients[1].expectError("NOT_IN_ROOM")
}

// ============================================================================
// TEAM SETUP AND PLAY
// ============================================================================

func TestHandleStartGame_NotHost(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.clients[1].send(CmdStartGame, RoomCommand{})
	tb.clients[1].expectError("NOT_HOST")
}

func TestHandleStartGame_OddPlayers(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 5)
	tb.clients[0].send(CmdStartGame, RoomCommand{})
	tb.clients[0].expectError("INVALID_PLAYER_COUNT")
}

func TestSwapFlow(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.clients[0].send(CmdStartGame, RoomCommand{})
	var assigned RoomEvent
	tb.expectAll(EventTeamsAssigned, -1, &assigned)

	teams := assigned.Room.TeamSetup.Teams
	index := func(id fish.PlayerID) int {
		for i, pid := range tb.ids {
			if pid == id {
				return i
			}
		}
		t.Fatalf("unknown player %s", id)
		return -1
	}
	from, target := index(teams.A[0]), index(teams.B[0])

	tb.clients[from].send(CmdSwapRequest, SwapRequestCommand{TargetID: tb.ids[target]})
	var requested SwapNotification
	tb.expectAll(EventSwapRequestSent, -1, &requested)
	assert.Equal(fish.SwapPending, requested.Request.Status)

	tb.clients[target].send(CmdSwapResponse, SwapResponseCommand{RequestID: requested.Request.ID, Accept: true})
	var answered SwapNotification
	tb.expectAll(EventSwapResponseResult, -1, &answered)

	assert.Equal(fish.SwapAccepted, answered.Request.Status)
	team, _ := answered.Room.TeamSetup.Teams.Of(tb.ids[from])
	assert.Equal(fish.TeamB, team)
}

func TestGameFlow_AskCard(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	room := tb.start(t)
	g := room.GameState
	require.NotNil(t, g)
	assert.Equal(PhaseInProgress, room.Phase)
	assert.Equal(tb.ids[0], g.CurrentPlayer)

	card, ok := legalQuestion(g, tb.ids[0])
	require.True(t, ok)
	target := opponentOf(t, g, tb.ids[0])

	tb.clients[1].send(CmdAskCard, AskCardRequest{TargetID: target, Card: card})
	tb.clients[1].expectError("NOT_YOUR_TURN")

	tb.clients[0].send(CmdAskCard, AskCardRequest{RoomCode: tb.code, TargetID: target, Card: card})
	var update GameStateUpdate
	tb.expectAll(EventGameStateUpdate, -1, &update)

	require.NotNil(t, update.Ask)
	assert.True(update.Ask.Legal)
	assert.Equal(update.Ask.NextPlayer, update.Room.GameState.CurrentPlayer)
	assert.Equal(48, update.Room.GameState.CardCount())
}

func TestGameFlow_AskCardById(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	g := tb.start(t).GameState
	card, ok := legalQuestion(g, tb.ids[0])
	require.True(t, ok)

	payload := map[string]interface{}{
		"targetId": opponentOf(t, g, tb.ids[0]),
		"card":     map[string]string{"id": card.ID()},
	}
	tb.clients[0].send(CmdAskCard, payload)

	var update GameStateUpdate
	tb.clients[0].expect(EventGameStateUpdate, &update)
	require.NotNil(t, update.Ask)
	assert.True(t, update.Ask.Legal)
}

func TestGameFlow_ClaimWhilePaused(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	g := tb.start(t).GameState
	team, _ := g.TeamOf(tb.ids[0])

	mate := -1
	for i, id := range tb.ids {
		if other, _ := g.TeamOf(id); i != 0 && other == team {
			mate = i
		}
	}
	require.NotEqual(t, -1, mate)

	tb.clients[mate].send(CmdTogglePause, RoomCommand{})
	var paused GameStateUpdate
	tb.expectAll(EventGameStateUpdate, -1, &paused)
	assert.True(paused.Room.GameState.IsPaused)
	assert.Equal(tb.ids[mate], paused.Room.GameState.PausedBy)

	card, ok := legalQuestion(g, tb.ids[0])
	require.True(t, ok)
	tb.clients[0].send(CmdAskCard, AskCardRequest{TargetID: opponentOf(t, g, tb.ids[0]), Card: card})
	tb.clients[0].expectError("GAME_PAUSED")

	half := fish.AllHalfSuits()[0]
	tb.clients[0].send(CmdMakeClaim, MakeClaimRequest{HalfSuit: half, TargetTeam: team})
	var claimed GameStateUpdate
	tb.expectAll(EventGameStateUpdate, -1, &claimed)

	require.NotNil(t, claimed.Claim)
	assert.False(claimed.Claim.Success)
	assert.Equal(team.Opponent(), claimed.Claim.AwardedTo)
	assert.Equal(6, claimed.Claim.CardsRemoved)
	assert.Equal(42, claimed.Room.GameState.CardCount())
	assert.True(claimed.Room.GameState.IsPaused)

	tb.clients[0].send(CmdTogglePause, RoomCommand{})
	var resumed GameStateUpdate
	tb.expectAll(EventGameStateUpdate, -1, &resumed)
	assert.False(resumed.Room.GameState.IsPaused)
}

func TestGameFlow_DeclareWinnerRecordsHistory(t *testing.T) {
	assert := assert.New(t)
	history := &memoryHistory{}
	s, url, cleanup := setupTestServerWith(DefaultConfig(), history)
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.start(t)
	clinch(t, s.rooms, tb.code)

	tb.clients[0].send(CmdDeclareWinner, DeclareWinnerRequest{Team: fish.TeamA})
	var over GameStateUpdate
	tb.expectAll(EventGameStateUpdate, -1, &over)
	assert.Equal(PhaseGameOver, over.Room.Phase)
	assert.Equal(fish.TeamA, over.Room.GameState.Winner)

	require.Eventually(t, func() bool { return history.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	games, err := history.RecentGames(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(tb.code, games[0].RoomCode)
	assert.Len(games[0].Players, 4)

	tb.clients[0].send(CmdPlayAgain, RoomCommand{})
	var again RoomEvent
	tb.expectAll(EventTeamsAssigned, -1, &again)
	assert.Equal(PhaseTeamSetup, again.Room.Phase)
}

func TestGameFlow_BackToLobby(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.start(t)

	tb.clients[0].send(CmdBackToLobby, RoomCommand{})
	tb.clients[0].expectError("GAME_NOT_OVER")
}

func TestHandleLeaveGame(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 6)
	tb.start(t)

	tb.clients[3].send(CmdLeaveRoom, LeaveRoomRequest{})
	tb.clients[3].expectError("GAME_IN_PROGRESS")

	tb.clients[3].send(CmdLeaveGame, RoomCommand{})
	tb.clients[3].expect(EventLeftRoom, nil)

	var left RedistributionNotification
	tb.expectAll(EventPlayerLeftGame, 3, &left)
	assert.Equal(tb.ids[3], left.PlayerID)
	assert.Equal("Player3", left.Name)
	assert.Equal(8, left.CardsMoved)
	assert.Len(left.Recipients, 5)
	assert.Len(left.Room.Players, 5)
}

// ============================================================================
// DISCONNECTS AND DEVICES
// ============================================================================

func TestDisconnectAndRejoin(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.start(t)

	tb.clients[2].conn.Close(websocket.StatusNormalClosure, "")

	var gone PlayerDisconnectedNotification
	tb.expectAll(EventPlayerDisconnected, 2, &gone)
	assert.Equal(tb.ids[2], gone.PlayerID)
	assert.Equal(int64(60000), gone.GracePeriodMs)
	assert.True(gone.Room.GameState.IsPaused)
	assert.Equal(tb.ids[2], gone.Room.GameState.DisconnectedPlayer.PlayerID)

	tb.clients[0].send(CmdTogglePause, RoomCommand{})
	tb.clients[0].expectError("AWAITING_RECONNECT")

	back := dial(t, url)
	back.register("", tb.sessions[2].Token)
	back.send(CmdJoinRoom, JoinRoomRequest{RoomCode: tb.code})

	var rejoined RoomJoinedResponse
	back.expect(EventGameRejoined, &rejoined)
	assert.Equal(tb.ids[2], rejoined.PlayerID)
	assert.False(rejoined.Room.GameState.IsPaused)
	assert.Len(rejoined.Room.GameState.Hands[tb.ids[2]], 12)

	var returned PlayerNotification
	tb.expectAll(EventPlayerReconnected, 2, &returned)
	assert.Equal(tb.ids[2], returned.PlayerID)
}

func TestForceRedistributeOverWebsocket(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.start(t)

	tb.clients[3].conn.Close(websocket.StatusNormalClosure, "")
	tb.expectAll(EventPlayerDisconnected, 3, nil)

	tb.clients[1].send(CmdForceRedistribute, ForceRedistributeRequest{PlayerID: tb.ids[3]})
	tb.clients[1].expectError("NOT_HOST")

	tb.clients[0].send(CmdForceRedistribute, ForceRedistributeRequest{PlayerID: tb.ids[3]})
	var moved RedistributionNotification
	tb.expectAll(EventCardsRedistributed, 3, &moved)

	assert.Equal(tb.ids[3], moved.PlayerID)
	assert.Equal(12, moved.CardsMoved)
	assert.False(moved.Room.GameState.IsPaused)
	assert.Len(moved.Room.Players, 3)
}

func TestDisconnectInLobbyLeaves(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 3)
	tb.clients[1].conn.Close(websocket.StatusNormalClosure, "")

	var left PlayerNotification
	tb.clients[0].expect(EventPlayerLeft, &left)
	assert.Equal(t, tb.ids[1], left.PlayerID)
	assert.Len(t, left.Room.Players, 2)
}

func TestDeviceSwitch(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 4)
	tb.start(t)

	device2 := dial(t, url)
	device2.register("", tb.sessions[1].Token)

	var rejoined RoomJoinedResponse
	device2.expect(EventGameRejoined, &rejoined)
	assert.Equal(tb.ids[1], rejoined.PlayerID)

	var notice NoticeMessage
	tb.clients[1].expect(EventDisconnectedElsewhere, &notice)
	assert.NotEmpty(notice.Message)

	assert.Eventually(func() bool {
		return s.connectionManager.Count() == 4
	}, time.Second, 5*time.Millisecond)

	snap, err := s.rooms.Snapshot(tb.code)
	require.NoError(t, err)
	assert.False(snap.GameState.IsPaused, "the seat moved without a disconnect")
	for _, p := range snap.Players {
		assert.False(p.Disconnected)
	}

	// Room broadcasts now reach the new device.
	tb.clients[0].send(CmdTogglePause, RoomCommand{})
	var update GameStateUpdate
	device2.expect(EventGameStateUpdate, &update)
	assert.True(update.Room.GameState.IsPaused)
}

// ============================================================================
// INVITES
// ============================================================================

func TestInviteFlow(t *testing.T) {
	assert := assert.New(t)
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 1)
	friend := dial(t, url)
	friendSession := friend.register("Friend", "")

	tb.clients[0].send(CmdInviteToGame, InviteToGameRequest{TargetUserID: friendSession.UserID})

	var invite GameInviteNotification
	friend.expect(EventGameInvite, &invite)
	assert.Equal(tb.code, invite.RoomCode)
	assert.Equal("Player0", invite.FromName)
	assert.Equal(tb.sessions[0].UserID, invite.FromUserID)

	var sent InviteResult
	tb.clients[0].expect(EventInviteSent, &sent)
	assert.Equal(friendSession.UserID, sent.TargetUserID)

	friend.send(CmdInviteResponse, InviteResponseRequest{RoomCode: invite.RoomCode, FromUserID: invite.FromUserID, Accept: true})

	var answer InviteAnswerNotification
	tb.clients[0].expect(EventInviteResponse, &answer)
	assert.True(answer.Accepted)
	assert.Equal("Friend", answer.Name)

	var joined PlayerNotification
	friend.expect(EventPlayerJoined, &joined)
	assert.Equal("Friend", joined.Name)
	assert.Len(joined.Room.Players, 2)

	friend.send(CmdInviteResponse, InviteResponseRequest{RoomCode: invite.RoomCode, Accept: true})
	friend.expectError("INVITE_NOT_FOUND")
}

func TestInviteErrors(t *testing.T) {
	_, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 1)

	tb.clients[0].send(CmdInviteToGame, InviteToGameRequest{TargetUserID: "nobody"})
	var failed InviteResult
	tb.clients[0].expect(EventInviteFailed, &failed)
	assert.Equal(t, "nobody", failed.TargetUserID)

	tb.clients[0].send(CmdInviteToGame, InviteToGameRequest{TargetUserID: tb.sessions[0].UserID})
	tb.clients[0].expectError("INVALID_INVITE")

	anon := dial(t, url)
	anon.send(CmdCreateRoom, CreateRoomRequest{Name: "Anon"})
	anon.expect(EventRoomCreated, nil)
	anon.send(CmdInviteToGame, InviteToGameRequest{TargetUserID: tb.sessions[0].UserID})
	anon.expectError("NOT_REGISTERED")
}

func TestShutdownNotifiesClients(t *testing.T) {
	s, url, cleanup := setupTestServer()
	defer cleanup()

	tb := seatClients(t, url, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for _, c := range tb.clients {
		var notice NoticeMessage
		c.expect(EventServerShutdown, &notice)
		assert.NotEmpty(t, notice.Message)
	}
}
