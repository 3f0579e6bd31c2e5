// sigprobe negotiates a WebRTC data channel between two local peers through a
// running signaling server and prints how long it took.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Wyydra/yasignal/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yasignal/internal/probe"
	"github.com/pterm/pterm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := flag.String("server", "ws://localhost:8081/ws", "Signaling WebSocket URL")
	caller := flag.String("caller", "probe-caller", "Client id of the offering peer")
	callee := flag.String("callee", "probe-callee", "Client id of the answering peer")
	token := flag.String("token", "", "JWT for servers running with AUTH_MODE=jwt")
	ice := flag.String("ice", "", "Comma separated STUN/TURN urls")
	timeout := flag.Duration("timeout", 15*time.Second, "Overall probe timeout")
	loopback := flag.Bool("loopback", true, "Allow loopback ICE candidates")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	if *debug {
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	}

	var urls []string
	if *ice != "" {
		urls = strings.Split(*ice, ",")
	}

	pterm.DefaultLogger.Info("Probing signaling server", pterm.DefaultLogger.Args("server", *server, "caller", *caller, "callee", *callee))

	spinner, _ := pterm.DefaultSpinner.Start("Negotiating")
	res, err := probe.Run(ctx, probe.Options{
		Server:     *server,
		Caller:     *caller,
		Callee:     *callee,
		Token:      *token,
		ICEServers: pion.ICEServers(urls, "", ""),
		Timeout:    *timeout,
		Loopback:   *loopback,
	})
	if err != nil {
		spinner.Fail(err.Error())
		os.Exit(1)
	}
	spinner.Success("Data channel open")

	_ = pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Stage", "Value"},
		{"Offer/answer", res.Negotiated.String()},
		{"Data channel", res.Connected.String()},
		{"Caller candidates", fmt.Sprintf("%d sent / %d received", res.CallerCandidates, res.ReceivedByCaller)},
		{"Callee candidates", fmt.Sprintf("%d sent / %d received", res.CalleeCandidates, res.ReceivedByCallee)},
		{"Peer notified on bye", fmt.Sprintf("%t", res.PeerNotifiedOnExit)},
	}).Render()
}
