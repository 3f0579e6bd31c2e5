package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

type frame struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ServerError is an error frame sent back by the signaling server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// peer is one side of a probe negotiation: a signaling connection plus a
// PeerConnection. Local candidates are held back until our description has
// been sent, remote ones until the remote description is applied.
type peer struct {
	id, remote string
	ws         *websocket.Conn
	pc         *webrtc.PeerConnection

	wsMu sync.Mutex

	mu          sync.Mutex
	described   bool
	outbound    []webrtc.ICECandidateInit
	remoteSet   bool
	inbound     []webrtc.ICECandidateInit
	sent, recvd int

	errs chan error
	byes chan struct{}
}

func dial(ctx context.Context, server *url.URL, id, remote, token string, api *webrtc.API, cfg webrtc.Configuration) (*peer, error) {
	u := *server
	q := u.Query()
	q.Set("id", id)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("connect %s: %s: %w", id, resp.Status, err)
		}
		return nil, fmt.Errorf("connect %s: %w", id, err)
	}

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("peer connection: %w", err)
	}

	p := &peer{
		id:     id,
		remote: remote,
		ws:     conn,
		pc:     pc,
		errs:   make(chan error, 8),
		byes:   make(chan struct{}, 1),
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.queueLocal(c.ToJSON())
	})
	return p, nil
}

func (p *peer) send(f frame) error {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	return p.ws.WriteJSON(f)
}

func (p *peer) signal(typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.send(frame{Type: typ, From: p.id, To: p.remote, Payload: raw})
}

func (p *peer) queueLocal(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	if !p.described {
		p.outbound = append(p.outbound, c)
		p.mu.Unlock()
		return
	}
	p.sent++
	p.mu.Unlock()
	if err := p.signal("candidate", c); err != nil {
		p.fail(err)
	}
}

// describe sends our session description, then any candidates gathered
// before it.
func (p *peer) describe(desc webrtc.SessionDescription) error {
	if err := p.signal(desc.Type.String(), desc); err != nil {
		return err
	}
	p.mu.Lock()
	p.described = true
	held := p.outbound
	p.outbound = nil
	p.sent += len(held)
	p.mu.Unlock()

	for _, c := range held {
		if err := p.signal("candidate", c); err != nil {
			return err
		}
	}
	return nil
}

func (p *peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	p.mu.Lock()
	p.remoteSet = true
	held := p.inbound
	p.inbound = nil
	p.mu.Unlock()

	for _, c := range held {
		if err := p.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *peer) addRemoteCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	p.recvd++
	if !p.remoteSet {
		p.inbound = append(p.inbound, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(c)
}

func (p *peer) counts() (sent, recvd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.recvd
}

func (p *peer) fail(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

// readLoop dispatches server frames until the connection closes.
func (p *peer) readLoop(onDescription func(webrtc.SessionDescription) error) {
	for {
		var f frame
		if err := p.ws.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				p.fail(err)
			}
			return
		}
		switch f.Type {
		case "offer", "answer":
			var desc webrtc.SessionDescription
			if err := json.Unmarshal(f.Payload, &desc); err != nil {
				p.fail(fmt.Errorf("decode %s: %w", f.Type, err))
				continue
			}
			if err := onDescription(desc); err != nil {
				p.fail(err)
			}
		case "candidate":
			var c webrtc.ICECandidateInit
			if err := json.Unmarshal(f.Payload, &c); err != nil {
				p.fail(fmt.Errorf("decode candidate: %w", err))
				continue
			}
			if err := p.addRemoteCandidate(c); err != nil {
				p.fail(fmt.Errorf("add candidate: %w", err))
			}
		case "error":
			p.fail(&ServerError{Code: f.Code, Message: f.Message})
		case "bye":
			select {
			case p.byes <- struct{}{}:
			default:
			}
		}
	}
}

func (p *peer) close() {
	_ = p.pc.Close()
	p.wsMu.Lock()
	_ = p.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	p.wsMu.Unlock()
	_ = p.ws.Close()
}
