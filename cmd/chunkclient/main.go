// Command chunkclient requests a set of chunks from a bootstrap peer and
// exits after either collecting all of them or the 5-second deadline
// (spec.md §4.4, §6).
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/anacrolix/tagflag"
	"github.com/pkg/errors"

	"github.com/dannyzb/chunkswarm/common"
	"github.com/dannyzb/chunkswarm/internal/client"
	"github.com/dannyzb/chunkswarm/internal/wire"
)

var flags = struct {
	tagflag.StartPos
	BootstrapAddr string `help:"bootstrap peer ip:port"`
	ChunkIDs      string `help:"comma-separated list of u16 chunk ids, no spaces"`
}{}

func main() {
	if err := mainErr(); err != nil {
		fmt.Fprintf(os.Stderr, "chunkclient: %v\n", err)
		os.Exit(1)
	}
}

func mainErr() error {
	defer envpprof.Stop()
	tagflag.Parse(&flags, tagflag.Description("Fetches a set of chunks from a chunkswarm bootstrap peer"))

	bootstrap, err := common.ParseKnownPeerAddr(flags.BootstrapAddr)
	if err != nil {
		return err
	}
	ids, err := parseChunkIDs(flags.ChunkIDs)
	if err != nil {
		return err
	}

	c, err := client.New(client.Config{
		BootstrapAddr: bootstrap,
		ChunkIDs:      ids,
		Sink:          client.FileSink{},
		Logger:        log.Default,
	})
	if err != nil {
		return err
	}
	return c.Run()
}

func parseChunkIDs(s string) ([]wire.ChunkID, error) {
	parts := strings.Split(s, ",")
	ids := make([]wire.ChunkID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing chunk id %q", p)
		}
		ids = append(ids, wire.ChunkID(n))
	}
	return ids, nil
}
