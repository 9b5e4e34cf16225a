// Package runid generates run-scoped identifiers: a short run ID used in
// scratch and socket file names, and the random token that prefixes every
// wire message so traffic from foreign runs can be rejected.
package runid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/teris-io/shortid"
)

// tokenBytes is the entropy of a run token. 16 bytes of hex keeps the
// protocol line short while making cross-run collisions implausible.
const tokenBytes = 16

// Generator produces short run IDs.
type Generator struct {
	sid *shortid.Shortid
}

// NewGenerator creates a Generator seeded from the current time.
func NewGenerator() (*Generator, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("runid: failed to create shortid generator: %w", err)
	}
	return &Generator{sid: sid}, nil
}

// Next returns a new short run ID.
func (g *Generator) Next() (string, error) {
	id, err := g.sid.Generate()
	if err != nil {
		return "", fmt.Errorf("runid: generate: %w", err)
	}
	return id, nil
}

// NewToken returns a fresh random hex run token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("runid: read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
