package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	shell "github.com/ipfs/go-ipfs-api"
)

// ErrBackendUnavailable is returned when the upload target cannot be reached.
var ErrBackendUnavailable = errors.New("publish backend unavailable")

type ipfsShell interface {
	Add(r io.Reader, options ...shell.AddOpts) (string, error)
	IsUp() bool
}

// IPFSPublisher adds datasets to an IPFS node and returns ipfs:// URIs.
type IPFSPublisher struct {
	shell ipfsShell
	api   string
	log   *slog.Logger
}

// NewIPFSPublisher connects to the IPFS HTTP API at api (host:port).
func NewIPFSPublisher(api string, log *slog.Logger) *IPFSPublisher {
	return &IPFSPublisher{shell: shell.NewShell(api), api: api, log: log}
}

func (p *IPFSPublisher) Publish(_ context.Context, name string, data []byte) (Published, error) {
	hash := PayloadHash(data)
	if !p.shell.IsUp() {
		p.log.Warn("IPFS node unavailable", slog.String("api", p.api))
		return Published{}, ErrBackendUnavailable
	}

	cid, err := p.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return Published{}, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	p.log.Debug("Stored dataset in IPFS",
		slog.String("cid", cid),
		slog.String("name", name),
		slog.String("payload_hash", hash.Hex()))

	return Published{URI: "ipfs://" + cid, PayloadHash: hash, Size: len(data)}, nil
}

func (p *IPFSPublisher) Name() string {
	return "ipfs-" + p.api
}
