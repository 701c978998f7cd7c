package signal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/windchat/relay/internal/app"
	"github.com/windchat/relay/internal/config"
	"github.com/windchat/relay/internal/core"
	"github.com/windchat/relay/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// events decodes everything the connection received so far.
func (f *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	frames := append([]core.Frame(nil), f.frames...)
	f.mu.Unlock()
	out := make([]map[string]any, 0, len(frames))
	for _, fr := range frames {
		var ev map[string]any
		if err := json.Unmarshal(fr, &ev); err != nil {
			t.Fatalf("bad frame %q: %v", fr, err)
		}
		out = append(out, ev)
	}
	return out
}

// last returns the most recent event of the given type, failing if none
// arrived.
func (f *fakeConn) last(t *testing.T, typ string) map[string]any {
	t.Helper()
	evs := f.events(t)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i]["type"] == typ {
			return evs[i]
		}
	}
	t.Fatalf("no %q event received, got %v", typ, evs)
	return nil
}

func (f *fakeConn) has(t *testing.T, typ string) bool {
	t.Helper()
	for _, ev := range f.events(t) {
		if ev["type"] == typ {
			return true
		}
	}
	return false
}

func newTestController() *SignalWSController {
	cfg := &config.Config{
		Mode:       "release",
		Port:       3001,
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		SendBuffer: 32,
	}
	return NewSignalWSController(cfg, core.NewRegistry(), app.NewSessionRegistry())
}

// connect simulates an established transport connection: a bound session
// with a fake outbound channel, no real websocket involved.
func connect(ctl *SignalWSController, id domain.ConnID) *fakeConn {
	conn := &fakeConn{}
	ctl.Sessions.Bind(id, core.NewMemberSession(domain.NewSession(id), conn))
	return conn
}

func send(ctl *SignalWSController, id domain.ConnID, conn *fakeConn, event string) {
	ctl.handleSignal(id, conn, []byte(event))
}

func joinRoom(t *testing.T, ctl *SignalWSController, id domain.ConnID, conn *fakeConn, key, name string) {
	t.Helper()
	send(ctl, id, conn, fmt.Sprintf(`{"type":"join-room","roomKey":%q,"displayName":%q}`, key, name))
	if !conn.has(t, "joined") {
		t.Fatalf("%s did not receive joined for room %s", id, key)
	}
}

func TestJoinRoomValidation(t *testing.T) {
	ctl := newTestController()
	conn := connect(ctl, "a")

	for _, event := range []string{
		`{"type":"join-room","roomKey":"","displayName":"alice"}`,
		`{"type":"join-room","roomKey":"abc1","displayName":""}`,
	} {
		send(ctl, "a", conn, event)
	}
	evs := conn.events(t)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2 errors", len(evs))
	}
	for _, ev := range evs {
		if ev["type"] != "error" {
			t.Errorf("event type = %v, want error", ev["type"])
		}
	}
	if ctl.Rooms.Count() != 0 {
		t.Error("invalid join must not create a room")
	}
}

func TestJoinRoomBadPayload(t *testing.T) {
	ctl := newTestController()
	conn := connect(ctl, "a")

	send(ctl, "a", conn, `{"type":"join-room","roomKey":5}`)
	if got := conn.last(t, "error")["message"]; got != "bad payload" {
		t.Errorf("error message = %v, want bad payload", got)
	}
	if ctl.Rooms.Count() != 0 {
		t.Error("malformed join must not create a room")
	}
}

func TestJoinRoomSnapshotAndBroadcast(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")

	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joined := connA.last(t, "joined")
	if joined["isAdmin"] != true {
		t.Error("creator must join as admin")
	}
	if joined["theme"] != string(domain.AssignTheme("abc1")) {
		t.Errorf("theme = %v, want assigned theme", joined["theme"])
	}

	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	if connB.last(t, "joined")["isAdmin"] != false {
		t.Error("second joiner must not be admin")
	}
	if members := connB.last(t, "joined")["members"].([]any); len(members) != 2 {
		t.Errorf("snapshot members = %d, want 2", len(members))
	}

	mj := connA.last(t, "member-joined")
	if mj["connectionId"] != "b" || mj["displayName"] != "bob" {
		t.Errorf("member-joined = %v, want b/bob", mj)
	}
	if connB.has(t, "member-joined") {
		t.Error("joiner must not receive its own member-joined")
	}
}

func TestMessageRelay(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")

	send(ctl, "a", connA, `{"type":"send-message","roomKey":"abc1","payload":"hi","timestamp":1700000000000}`)

	for _, conn := range []*fakeConn{connA, connB} {
		msg := conn.last(t, "message")
		if msg["payload"] != "hi" {
			t.Errorf("payload = %v, want relayed verbatim", msg["payload"])
		}
		if msg["displayName"] != "alice" || msg["connectionId"] != "a" {
			t.Errorf("sender identity = %v/%v, want alice/a", msg["displayName"], msg["connectionId"])
		}
		if msg["timestamp"] != float64(1700000000000) {
			t.Errorf("timestamp = %v, want passthrough", msg["timestamp"])
		}
	}
}

func TestMessageNotInRoom(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")

	send(ctl, "b", connB, `{"type":"send-message","roomKey":"abc1","payload":"x","timestamp":1}`)
	if got := connB.last(t, "error")["message"]; got != core.ErrNotInRoom.Error() {
		t.Errorf("error message = %v, want %q", got, core.ErrNotInRoom.Error())
	}
	if connA.has(t, "message") {
		t.Error("nothing may be broadcast for a non-member's message")
	}
}

func TestTypingBroadcast(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")

	send(ctl, "a", connA, `{"type":"typing-start","roomKey":"abc1"}`)
	tc := connB.last(t, "typing-changed")
	if tc["isTyping"] != true || tc["displayName"] != "alice" {
		t.Errorf("typing-changed = %v, want alice typing", tc)
	}
	if connA.has(t, "typing-changed") {
		t.Error("typist must not receive its own typing event")
	}

	send(ctl, "a", connA, `{"type":"typing-stop","roomKey":"abc1"}`)
	if connB.last(t, "typing-changed")["isTyping"] != false {
		t.Error("typing-stop must broadcast isTyping=false")
	}
}

func TestTypingIgnoredForNonMember(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")

	send(ctl, "b", connB, `{"type":"typing-start","roomKey":"abc1"}`)
	if len(connB.events(t)) != 0 {
		t.Error("typing from a non-member must be silently ignored")
	}
	if connA.has(t, "typing-changed") {
		t.Error("no broadcast for a non-member's typing")
	}
}

func TestAdminRemoveUser(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	connC := connect(ctl, "c")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	joinRoom(t, ctl, "c", connC, "abc1", "carol")

	send(ctl, "a", connA, `{"type":"admin-remove-user","roomKey":"abc1","targetConnectionId":"b"}`)

	if connB.last(t, "removed")["roomKey"] != "abc1" {
		t.Error("target must be privately told it was removed")
	}
	ml := connC.last(t, "member-left")
	if ml["connectionId"] != "b" || ml["displayName"] != "bob" {
		t.Errorf("member-left = %v, want b with last known name", ml)
	}
	if connB.has(t, "member-left") {
		t.Error("removed member is no longer part of the room broadcast")
	}
	if _, ok := ctl.Rooms.Members("abc1", "b"); ok {
		t.Error("target must be out of the room")
	}
}

func TestAdminRemoveUserUnauthorized(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	before := connA.count()

	send(ctl, "b", connB, `{"type":"admin-remove-user","roomKey":"abc1","targetConnectionId":"a"}`)
	if got := connB.last(t, "error")["message"]; got != core.ErrUnauthorized.Error() {
		t.Errorf("error message = %v, want %q", got, core.ErrUnauthorized.Error())
	}
	if connA.count() != before {
		t.Error("unauthorized removal must not notify anyone else")
	}
	if members, ok := ctl.Rooms.Members("abc1", "a"); !ok || len(members) != 2 {
		t.Error("unauthorized removal must not change membership")
	}
}

func TestAdminDeleteRoom(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "xyz9", "alice")
	joinRoom(t, ctl, "b", connB, "xyz9", "bob")

	send(ctl, "a", connA, `{"type":"admin-delete-room","roomKey":"xyz9"}`)
	for _, conn := range []*fakeConn{connA, connB} {
		if conn.last(t, "room-deleted")["roomKey"] != "xyz9" {
			t.Error("every member must receive room-deleted")
		}
	}
	if ctl.Rooms.Count() != 0 {
		t.Error("deleted room must be absent")
	}

	// A stray message referencing the deleted room fails.
	send(ctl, "b", connB, `{"type":"send-message","roomKey":"xyz9","payload":"late","timestamp":2}`)
	if got := connB.last(t, "error")["message"]; got != core.ErrNotInRoom.Error() {
		t.Errorf("stray message error = %v, want %q", got, core.ErrNotInRoom.Error())
	}
}

func TestAdminDeleteRoomUnauthorized(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "xyz9", "alice")
	joinRoom(t, ctl, "b", connB, "xyz9", "bob")

	send(ctl, "b", connB, `{"type":"admin-delete-room","roomKey":"xyz9"}`)
	if got := connB.last(t, "error")["message"]; got != core.ErrUnauthorized.Error() {
		t.Errorf("error message = %v, want %q", got, core.ErrUnauthorized.Error())
	}
	if connA.has(t, "room-deleted") {
		t.Error("unauthorized delete must not notify other members")
	}
	if ctl.Rooms.Count() != 1 {
		t.Error("unauthorized delete must leave the room intact")
	}
}

func TestDisconnectPromotesAdmin(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	connC := connect(ctl, "c")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	joinRoom(t, ctl, "c", connC, "abc1", "carol")

	ctl.handleDisconnect("a")

	if connB.last(t, "member-left")["connectionId"] != "a" {
		t.Error("remaining members must hear about the disconnect")
	}
	if connB.last(t, "admin-promoted")["roomKey"] != "abc1" {
		t.Error("earliest-joined remaining member must be privately promoted")
	}
	if connC.has(t, "admin-promoted") {
		t.Error("only the new admin receives the promotion")
	}
}

func TestDisconnectLastMemberDeletesRoom(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")

	ctl.handleDisconnect("a")
	if ctl.Rooms.Count() != 0 {
		t.Error("room must be absent after the only member disconnects")
	}

	// Rejoining recreates a brand-new room with the identical theme.
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	joined := connB.last(t, "joined")
	if joined["isAdmin"] != true {
		t.Error("joiner of a recreated room must be admin")
	}
	if joined["theme"] != string(domain.AssignTheme("abc1")) {
		t.Error("recreated room must carry the identical theme")
	}
}

func TestSwitchRoomsLeavesPrevious(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")

	joinRoom(t, ctl, "a", connA, "xyz9", "alice")

	if connB.last(t, "member-left")["connectionId"] != "a" {
		t.Error("old room must see the switcher leave")
	}
	if !connB.has(t, "admin-promoted") {
		t.Error("old room's admin role must be handed over")
	}
	if members, ok := ctl.Rooms.Members("xyz9", "a"); !ok || len(members) != 1 {
		t.Error("switcher must be a member of the new room only")
	}
	if _, ok := ctl.Rooms.Members("abc1", "a"); ok {
		t.Error("switcher must be out of the old room")
	}
}

func TestSwitchToFullRoomKeepsPrevious(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	for i := 0; i < domain.MaxRoomMembers; i++ {
		id := domain.ConnID(fmt.Sprintf("c%d", i))
		joinRoom(t, ctl, id, connect(ctl, id), "full", "user")
	}
	before := connB.count()

	send(ctl, "a", connA, `{"type":"join-room","roomKey":"full","displayName":"alice"}`)

	if got := connA.last(t, "error")["message"]; got != core.ErrRoomFull.Error() {
		t.Fatalf("error message = %v, want %q", got, core.ErrRoomFull.Error())
	}
	if connB.count() != before {
		t.Error("rejected switch must not notify the previous room")
	}
	if members, ok := ctl.Rooms.Members("abc1", "a"); !ok || len(members) != 2 {
		t.Error("rejected switch must leave the previous membership intact")
	}
	// a still relays into its original room.
	send(ctl, "a", connA, `{"type":"send-message","roomKey":"abc1","payload":"still here","timestamp":3}`)
	if connB.last(t, "message")["payload"] != "still here" {
		t.Error("sender must still be wired into the previous room")
	}
}

func TestRejoinSameRoomNoBroadcast(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	connB := connect(ctl, "b")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")
	joinRoom(t, ctl, "b", connB, "abc1", "bob")
	before := connA.count()

	joinRoom(t, ctl, "b", connB, "abc1", "bob")

	if members := connB.last(t, "joined")["members"].([]any); len(members) != 2 {
		t.Errorf("rejoin snapshot has %d members, want 2", len(members))
	}
	if connA.count() != before {
		t.Error("rejoin must not re-announce an existing member")
	}
	if connB.has(t, "member-left") {
		t.Error("rejoin must not look like a departure")
	}
}

func TestConcurrentRemovalAndDisconnect(t *testing.T) {
	ctl := newTestController()
	connA := connect(ctl, "a")
	joinRoom(t, ctl, "a", connA, "abc1", "alice")

	for round := 0; round < 20; round++ {
		connB := connect(ctl, "b")
		joinRoom(t, ctl, "b", connB, "abc1", "bob")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			send(ctl, "a", connA, `{"type":"admin-remove-user","roomKey":"abc1","targetConnectionId":"b"}`)
		}()
		go func() {
			defer wg.Done()
			ctl.handleDisconnect("b")
		}()
		wg.Wait()

		if _, ok := ctl.Rooms.Members("abc1", "b"); ok {
			t.Fatal("b must be out of the room either way")
		}
		if members, ok := ctl.Rooms.Members("abc1", "a"); !ok || len(members) != 1 {
			t.Fatalf("a must remain the sole member, ok=%v", ok)
		}
		ctl.Sessions.Unbind("b")
	}
}

func TestPingPong(t *testing.T) {
	ctl := newTestController()
	conn := connect(ctl, "a")

	send(ctl, "a", conn, `{"type":"ping"}`)
	if !conn.has(t, "pong") {
		t.Error("ping must answer pong")
	}
}

func TestUnknownSignalIgnored(t *testing.T) {
	ctl := newTestController()
	conn := connect(ctl, "a")

	send(ctl, "a", conn, `{"type":"no-such-event"}`)
	if len(conn.events(t)) != 0 {
		t.Error("unknown events are dropped without a reply")
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:5173", "https://chat.example.com"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"https://chat.example.com", true},
		{"https://evil.example.org", false},
	}
	for _, tt := range tests {
		r := &http.Request{Header: http.Header{}}
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originAllowed(allowed, r); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
