// Package probe runs a complete offer/answer negotiation between two pion
// peers through a signaling server and reports how long each stage took.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

type Options struct {
	// Server is the signaling endpoint, e.g. ws://localhost:8081/ws.
	Server     string
	Caller     string
	Callee     string
	Token      string
	ICEServers []webrtc.ICEServer
	Timeout    time.Duration
	// Loopback lets peers on the same host connect without any interface
	// other than lo.
	Loopback bool
}

type Result struct {
	// Negotiated is the time until the caller applied the answer.
	Negotiated time.Duration
	// Connected is the time until the data channel carried a message.
	Connected          time.Duration
	CallerCandidates   int
	CalleeCandidates   int
	ReceivedByCaller   int
	ReceivedByCallee   int
	PeerNotifiedOnExit bool
}

const probeMessage = "yasignal-probe"

// Run connects both peers, negotiates, exchanges one data channel message,
// then tears the session down with a bye.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Caller == "" || opts.Callee == "" || opts.Caller == opts.Callee {
		return Result{}, errors.New("caller and callee must be distinct non-empty ids")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	server, err := url.Parse(opts.Server)
	if err != nil {
		return Result{}, fmt.Errorf("server url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(opts.Loopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	cfg := webrtc.Configuration{ICEServers: opts.ICEServers}

	callee, err := dial(ctx, server, opts.Callee, opts.Caller, opts.Token, api, cfg)
	if err != nil {
		return Result{}, err
	}
	defer callee.close()
	caller, err := dial(ctx, server, opts.Caller, opts.Callee, opts.Token, api, cfg)
	if err != nil {
		return Result{}, err
	}
	defer caller.close()

	received := make(chan struct{})
	var once sync.Once
	callee.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if string(msg.Data) == probeMessage {
				once.Do(func() { close(received) })
			}
		})
	})

	go callee.readLoop(func(desc webrtc.SessionDescription) error {
		if desc.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("callee got %s", desc.Type)
		}
		if err := callee.setRemote(desc); err != nil {
			return fmt.Errorf("callee set remote: %w", err)
		}
		answer, err := callee.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := callee.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("callee set local: %w", err)
		}
		return callee.describe(answer)
	})

	start := time.Now()
	var res Result
	negotiated := make(chan struct{})
	go caller.readLoop(func(desc webrtc.SessionDescription) error {
		if desc.Type != webrtc.SDPTypeAnswer {
			return fmt.Errorf("caller got %s", desc.Type)
		}
		if err := caller.setRemote(desc); err != nil {
			return fmt.Errorf("caller set remote: %w", err)
		}
		close(negotiated)
		return nil
	})

	dc, err := caller.pc.CreateDataChannel("probe", nil)
	if err != nil {
		return Result{}, fmt.Errorf("data channel: %w", err)
	}
	dc.OnOpen(func() {
		if err := dc.SendText(probeMessage); err != nil {
			caller.fail(fmt.Errorf("data channel send: %w", err))
		}
	})

	offer, err := caller.pc.CreateOffer(nil)
	if err != nil {
		return Result{}, fmt.Errorf("create offer: %w", err)
	}
	if err := caller.pc.SetLocalDescription(offer); err != nil {
		return Result{}, fmt.Errorf("caller set local: %w", err)
	}
	if err := caller.describe(offer); err != nil {
		return Result{}, fmt.Errorf("send offer: %w", err)
	}

	if err := wait(ctx, negotiated, caller, callee); err != nil {
		return res, fmt.Errorf("negotiation: %w", err)
	}
	res.Negotiated = time.Since(start)

	if err := wait(ctx, received, caller, callee); err != nil {
		return res, fmt.Errorf("data channel: %w", err)
	}
	res.Connected = time.Since(start)

	if err := caller.send(frame{Type: "bye", From: opts.Caller, To: opts.Callee}); err != nil {
		return res, fmt.Errorf("bye: %w", err)
	}
	select {
	case <-callee.byes:
		res.PeerNotifiedOnExit = true
	case <-ctx.Done():
	}

	res.CallerCandidates, res.ReceivedByCaller = caller.counts()
	res.CalleeCandidates, res.ReceivedByCallee = callee.counts()
	return res, nil
}

func wait(ctx context.Context, done <-chan struct{}, a, b *peer) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case err := <-a.errs:
		return fmt.Errorf("%s: %w", a.id, err)
	case err := <-b.errs:
		return fmt.Errorf("%s: %w", b.id, err)
	}
}
