// Command chunkpeer runs one peer: it loads a chunk manifest, binds a UDP
// socket, and answers HELLO/GET/QUERY until killed (spec.md §4.3, §6).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/anacrolix/tagflag"

	"github.com/dannyzb/chunkswarm/common"
	"github.com/dannyzb/chunkswarm/internal/peerserver"
	"github.com/dannyzb/chunkswarm/internal/store"
	"github.com/dannyzb/chunkswarm/version"
)

var flags = struct {
	tagflag.StartPos
	BindIP       string   `help:"peer bind IPv4 address"`
	BindPort     int      `help:"peer bind port"`
	ManifestPath string   `help:"chunk manifest path (id: path per line)"`
	KnownPeers   []string `arity:"*" help:"ip:port of a known peer to flood queries toward"`
}{}

func main() {
	if err := mainErr(); err != nil {
		fmt.Fprintf(os.Stderr, "chunkpeer: %v\n", err)
		os.Exit(1)
	}
}

func mainErr() error {
	defer envpprof.Stop()
	tagflag.Parse(&flags, tagflag.Description("Serves a chunk manifest over the chunkswarm protocol"))

	chunkStore, err := store.Load(flags.ManifestPath)
	if err != nil {
		return err
	}
	defer chunkStore.Close()

	knownPeers := make([]*net.UDPAddr, 0, len(flags.KnownPeers))
	for _, s := range flags.KnownPeers {
		addr, err := common.ParseKnownPeerAddr(s)
		if err != nil {
			return err
		}
		knownPeers = append(knownPeers, addr)
	}

	logger := log.Default
	srv, err := peerserver.New(peerserver.Config{
		BindAddr:   fmt.Sprintf("%s:%d", flags.BindIP, flags.BindPort),
		Store:      chunkStore,
		KnownPeers: knownPeers,
	}, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("shutting down: %s", &srv.Stats)
		srv.Close()
	}()

	logger.Printf("%s (%s) listening on %v (port %d), %d known peer(s)", version.UserAgent, version.ProtocolVersion, srv.LocalAddr(), common.ListenPort(srv.LocalAddr()), len(knownPeers))
	return srv.Serve()
}
