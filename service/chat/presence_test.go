package chat

import (
	"bytes"
	"testing"

	"PPGate/service/events"
)

func TestPresenceBroadcastsOnEveryChange(t *testing.T) {
	m := NewConnManager()
	pub := &recordingPublisher{}
	NewPresence(m, pub, NewMetrics("test"), "gw")

	alice, fa := newTestConn(t, "u1", "alice")
	if err := m.Admit(alice); err != nil {
		t.Fatal(err)
	}
	if got := rosterIDs(nextRoster(t, fa)); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("alice first roster = %v", got)
	}

	anon, fn := newTestConn(t, "", "")
	if err := m.Admit(anon); err != nil {
		t.Fatal(err)
	}
	// anonymous connections hear the roster but are not on it
	for _, f := range []*fakeTransport{fa, fn} {
		if got := rosterIDs(nextRoster(t, f)); len(got) != 1 || got[0] != "u1" {
			t.Fatalf("roster after anon admit = %v", got)
		}
	}

	bob, fb := newTestConn(t, "u2", "bob")
	if err := m.Admit(bob); err != nil {
		t.Fatal(err)
	}
	for _, f := range []*fakeTransport{fa, fn, fb} {
		if got := rosterIDs(nextRoster(t, f)); len(got) != 2 {
			t.Fatalf("roster after bob admit = %v", got)
		}
	}

	m.Remove(bob)
	for _, f := range []*fakeTransport{fa, fn} {
		if got := rosterIDs(nextRoster(t, f)); len(got) != 1 || got[0] != "u1" {
			t.Fatalf("roster after bob removal = %v", got)
		}
	}
	expectSilence(t, fb)

	if got := pub.Count(events.TopicPresenceChanged); got != 4 {
		t.Fatalf("presence events = %d", got)
	}
}

func TestPresenceAnnounceSendsIdenticalPayload(t *testing.T) {
	m := NewConnManager()
	p := NewPresence(m, nil, nil, "gw")

	a, fa := newTestConn(t, "u1", "alice")
	b, fb := newTestConn(t, "u2", "bob")
	_ = m.Admit(a)
	_ = m.Admit(b)
	nextFrame(t, fa)
	nextFrame(t, fa)
	nextFrame(t, fb)

	p.Announce()
	x, y := nextFrame(t, fa), nextFrame(t, fb)
	if !bytes.Equal(x, y) {
		t.Fatalf("payloads differ: %s vs %s", x, y)
	}
	if string(x) != `{"online":[{"userId":"u1","username":"alice"},{"userId":"u2","username":"bob"}]}` {
		t.Fatalf("payload = %s", x)
	}
}

func TestPresenceEmptyRosterIsArray(t *testing.T) {
	m := NewConnManager()
	NewPresence(m, nil, nil, "gw")
	anon, f := newTestConn(t, "", "")
	_ = m.Admit(anon)
	if got := string(nextFrame(t, f)); got != `{"online":[]}` {
		t.Fatalf("payload = %s", got)
	}
}
