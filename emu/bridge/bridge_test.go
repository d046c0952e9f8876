package bridge

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/go-cmp/cmp"

	"bbemu/emu"
	"bbemu/hw/intc"
)

type injection struct {
	ID    intc.LineID
	Class intc.Class
	Level uint8
}

type fakeMachine struct {
	table *intc.LineTable
	calls []injection
	err   error
}

func newFakeMachine(tb testing.TB) *fakeMachine {
	tb.Helper()
	t := intc.NewLineTable()
	for _, spec := range []intc.LineSpec{
		{Name: "uart", Class: intc.Normal, Priority: 3},
		{Name: "dsp", Class: intc.Fast, Priority: 1},
	} {
		if _, err := t.Add(spec); err != nil {
			tb.Fatal(err)
		}
	}
	return &fakeMachine{table: t}
}

func (f *fakeMachine) LineTable() *intc.LineTable { return f.table }

func (f *fakeMachine) InjectLevel(id intc.LineID, class intc.Class, level uint8) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, injection{id, class, level})
	return nil
}

// parseReply decodes a reply line.
func parseReply(tb testing.TB, reply []byte) (ok bool, msg string) {
	tb.Helper()
	err := jx.DecodeBytes(reply).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "ok":
			ok, err = d.Bool()
		case "error":
			msg, err = d.Str()
		default:
			err = errors.Errorf("unexpected key %q", key)
		}
		return err
	})
	if err != nil {
		tb.Fatalf("bad reply %s: %v", reply, err)
	}
	return ok, msg
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name   string
		req    string
		errMsg string // empty if the request is valid
		want   []injection
	}{
		{"by name", `{"line":"uart","level":1}`, "", []injection{{0, intc.Normal, 1}}},
		{"by id", `{"line":1,"level":0}`, "", []injection{{1, intc.Fast, 0}}},
		{"class override", `{"level":9,"class":"fast","line":"uart"}`, "", []injection{{0, intc.Fast, 9}}},
		{"fiq alias", `{"line":"uart","level":1,"class":"fiq"}`, "", []injection{{0, intc.Fast, 1}}},
		{"unknown field", `{"line":"uart","level":1,"note":{"a":[1,2]}}`, "", []injection{{0, intc.Normal, 1}}},

		{"unknown line", `{"line":"spi","level":1}`, `unknown line "spi"`, nil},
		{"id out of range", `{"line":2,"level":1}`, "line 2 out of range [0,2)", nil},
		{"level out of range", `{"line":0,"level":256}`, "level 256 out of range [0,255]", nil},
		{"bad class", `{"line":0,"level":1,"class":"nmi"}`, `unknown class "nmi"`, nil},
		{"missing line", `{"level":1}`, "missing line", nil},
		{"missing level", `{"line":"uart"}`, "missing level", nil},
		{"line type", `{"line":true,"level":1}`, "line must be a name or an id", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := newFakeMachine(t)
			s := &Server{m: fm}
			ok, msg := parseReply(t, s.Handle([]byte(tt.req)))
			if ok != (tt.errMsg == "") {
				t.Errorf("ok = %t, error %q", ok, msg)
			}
			if !strings.Contains(msg, tt.errMsg) {
				t.Errorf("error = %q, want %q", msg, tt.errMsg)
			}
			if diff := cmp.Diff(tt.want, fm.calls); diff != "" {
				t.Errorf("injections mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleMalformed(t *testing.T) {
	s := &Server{m: newFakeMachine(t)}
	for _, req := range []string{`not json`, `[1,2]`, `{"line":"uart",`, `{"line":"uart","level":"high"}`} {
		if ok, msg := parseReply(t, s.Handle([]byte(req))); ok || msg == "" {
			t.Errorf("Handle(%s) = %t %q, want an error reply", req, ok, msg)
		}
	}
}

func TestHandleInjectError(t *testing.T) {
	fm := newFakeMachine(t)
	fm.err = errors.New("machine halted")
	s := &Server{m: fm}
	if got, want := string(s.Handle([]byte(`{"line":0,"level":1}`))), `{"ok":false,"error":"machine halted"}`; got != want {
		t.Errorf("reply = %s, want %s", got, want)
	}
}

func TestServeConn(t *testing.T) {
	fm := newFakeMachine(t)
	s := &Server{m: fm}

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- s.ServeConn(server) }()

	r := bufio.NewReader(client)
	roundTrip := func(req string) string {
		t.Helper()
		if _, err := client.Write([]byte(req + "\n")); err != nil {
			t.Fatal(err)
		}
		reply, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		return strings.TrimSuffix(reply, "\n")
	}

	if got := roundTrip(`{"line":"dsp","level":1}`); got != `{"ok":true}` {
		t.Errorf("reply = %s", got)
	}
	if got := roundTrip(`garbage`); !strings.HasPrefix(got, `{"ok":false`) {
		t.Errorf("reply = %s", got)
	}
	// The connection survives errors.
	if got := roundTrip(`{"line":"dsp","level":0}`); got != `{"ok":true}` {
		t.Errorf("reply = %s", got)
	}

	client.Close()
	if err := <-done; err != nil {
		t.Errorf("ServeConn = %v", err)
	}
	want := []injection{{1, intc.Fast, 1}, {1, intc.Fast, 0}}
	if diff := cmp.Diff(want, fm.calls); diff != "" {
		t.Errorf("injections mismatch (-want +got):\n%s", diff)
	}
}

func TestServeMachine(t *testing.T) {
	m, err := emu.NewMachine(emu.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Listen("127.0.0.1:0", m)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	for _, req := range []string{`{"line":"swi5","level":3}`, `{"line":"swi5","level":0}`} {
		if _, err := conn.Write([]byte(req + "\n")); err != nil {
			t.Fatal(err)
		}
		reply, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if reply != "{\"ok\":true}\n" {
			t.Fatalf("reply = %q", reply)
		}
	}

	id, _ := m.Lines.Lookup("swi5")
	m.Lock()
	n := m.CPU.Serviced[id]
	m.Unlock()
	if n != 1 {
		t.Errorf("swi5 serviced %d times, want 1", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
