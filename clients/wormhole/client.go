// Package wormhole fetches VAAs from Wormholescan and verifies them against a guardian set.
package wormhole

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/h2non/gentleman.v2"
)

// ErrVAANotFound is returned while the guardians have not signed the message yet
var ErrVAANotFound = errors.New("vaa not found")

type Client struct {
	http      *gentleman.Client
	guardians []common.Address
	logger    zerolog.Logger
}

// New creates a Wormholescan client. guardians is the hex address list of the current guardian set.
func New(apiURL string, guardians []string, logger zerolog.Logger) (*Client, error) {
	set := make([]common.Address, 0, len(guardians))
	for _, g := range guardians {
		if !common.IsHexAddress(g) {
			return nil, errors.Errorf("invalid guardian address %q", g)
		}
		set = append(set, common.HexToAddress(g))
	}

	return &Client{
		http:      rest.NewClient(strings.TrimRight(apiURL, "/"), rest.DefaultTimeout),
		guardians: set,
		logger:    logger.With().Str(logging.FieldModule, "wormhole").Logger(),
	}, nil
}

// Guardians returns the configured guardian set
func (c *Client) Guardians() []common.Address {
	return c.guardians
}

// GetVAA downloads the raw VAA bytes for a message id
func (c *Client) GetVAA(ctx context.Context, chainID uint16, emitter string, sequence uint64) ([]byte, error) {
	var res struct {
		Data struct {
			VAA string `json:"vaa"`
		} `json:"data"`
	}

	path := fmt.Sprintf("/api/v1/vaas/%d/%s/%d", chainID, strings.TrimPrefix(strings.ToLower(emitter), "0x"), sequence)

	err := rest.Do(ctx, "wormholescan", c.http.Get().AddPath(path), &res)
	switch {
	case rest.IsNotFound(err):
		return nil, ErrVAANotFound
	case err != nil:
		return nil, err
	case res.Data.VAA == "":
		return nil, ErrVAANotFound
	}

	raw, err := base64.StdEncoding.DecodeString(res.Data.VAA)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode vaa")
	}

	return raw, nil
}

// ParseAndVerify decodes a base64 or hex VAA and verifies it against the guardian set.
// The parsed VAA is returned even when verification fails.
func (c *Client) ParseAndVerify(encoded string) (*VAA, error) {
	raw, err := DecodeVAA(encoded)
	if err != nil {
		return nil, err
	}

	v, err := ParseVAA(raw)
	if err != nil {
		return nil, err
	}

	if err := v.Verify(c.guardians); err != nil {
		c.logger.Warn().Err(err).Uint64("sequence", v.Sequence).Msg("VAA verification failed")
		return v, err
	}

	return v, nil
}

// DecodeVAA accepts hex (0x prefixed) or standard base64
func DecodeVAA(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)

	if strings.HasPrefix(encoded, "0x") {
		raw, err := hexutil.Decode(encoded)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidVAA, "bad hex")
		}
		return raw, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidVAA, "bad base64")
	}

	return raw, nil
}
