// Package bridge lets external processes drive interrupt lines of a
// running machine over TCP.
//
// The protocol is line-oriented JSON. Each request is a single object:
//
//	{"line": "gpt0", "level": 1}
//	{"line": 3, "level": 0, "class": "fast"}
//
// line is a line name or id, level the level driven (0 is low) and class
// overrides the class of the line. Each request gets a one-line reply,
// {"ok":true} or {"ok":false,"error":"..."}. Errors are reported to the
// peer and the connection stays open.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"

	"bbemu/emu/log"
	"bbemu/hw/intc"
)

// maxRequestSize bounds the size of a request line.
const maxRequestSize = 4096

// Machine is the part of the machine the bridge drives.
type Machine interface {
	LineTable() *intc.LineTable
	InjectLevel(id intc.LineID, class intc.Class, level uint8) error
}

type Server struct {
	m Machine
	l net.Listener
}

// Listen returns a server accepting connections on addr.
func Listen(addr string, m Machine) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "bridge listen")
	}
	log.ModBridge.InfoZ("bridge listening").String("addr", l.Addr().String()).End()
	return &Server{m: m, l: l}, nil
}

func (s *Server) Addr() net.Addr { return s.l.Addr() }

// Serve accepts and serves connections until ctx is done. It closes the
// listener and every connection before returning.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.l.Close()
	})
	g.Go(func() error {
		for {
			conn, err := s.l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "bridge accept")
			}
			log.ModBridge.DebugZ("connection").String("peer", conn.RemoteAddr().String()).End()

			g.Go(func() error {
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()
				defer conn.Close()

				err := s.ServeConn(conn)
				if err != nil && ctx.Err() == nil {
					log.ModBridge.WarnZ("connection error").Error("err", err).End()
				}
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ServeConn serves the requests read from rw until EOF.
func (s *Server) ServeConn(rw io.ReadWriter) error {
	sc := bufio.NewScanner(rw)
	sc.Buffer(make([]byte, 0, 256), maxRequestSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		reply := append(s.Handle(line), '\n')
		if _, err := rw.Write(reply); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Handle applies a single request and returns the reply.
func (s *Server) Handle(data []byte) []byte {
	req, err := s.decode(data)
	if err == nil {
		err = s.m.InjectLevel(req.id, req.class, req.level)
	}
	if err != nil {
		log.ModBridge.WarnZ("bad request").
			String("req", string(data)).
			Error("err", err).
			End()
		return encodeReply(err)
	}

	log.ModBridge.DebugZ("inject").
		String("line", s.m.LineTable().Name(req.id)).
		Stringer("class", req.class).
		Uint8("level", req.level).
		End()
	return encodeReply(nil)
}

type request struct {
	id    intc.LineID
	class intc.Class
	level uint8
}

func (s *Server) decode(data []byte) (request, error) {
	table := s.m.LineTable()
	var (
		req               request
		hasLine, hasLevel bool
		hasClass          bool
	)

	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "line":
			hasLine = true
			switch d.Next() {
			case jx.String:
				name, err := d.Str()
				if err != nil {
					return err
				}
				id, ok := table.Lookup(name)
				if !ok {
					return errors.Errorf("unknown line %q", name)
				}
				req.id = id
			case jx.Number:
				n, err := d.Int()
				if err != nil {
					return err
				}
				if n < 0 || n >= table.Len() {
					return errors.Errorf("line %d out of range [0,%d)", n, table.Len())
				}
				req.id = intc.LineID(n)
			default:
				return errors.New("line must be a name or an id")
			}
		case "level":
			hasLevel = true
			n, err := d.Int()
			if err != nil {
				return err
			}
			if n < 0 || n > 255 {
				return errors.Errorf("level %d out of range [0,255]", n)
			}
			req.level = uint8(n)
		case "class":
			name, err := d.Str()
			if err != nil {
				return err
			}
			c, ok := intc.ClassByName(name)
			if !ok {
				return errors.Errorf("unknown class %q", name)
			}
			req.class, hasClass = c, true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return request{}, errors.Wrap(err, "decode request")
	}
	if !hasLine {
		return request{}, errors.New("missing line")
	}
	if !hasLevel {
		return request{}, errors.New("missing level")
	}
	if !hasClass {
		req.class = table.Spec(req.id).Class
	}
	return req, nil
}

func encodeReply(err error) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("ok", func(e *jx.Encoder) { e.Bool(err == nil) })
		if err != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(err.Error()) })
		}
	})
	return e.Bytes()
}

// Close closes the listener. Serve does it when its context is done.
func (s *Server) Close() error { return s.l.Close() }
