// Package naisu is the solver-side client of the Naisu REST API.
package naisu

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"gopkg.in/h2non/gentleman.v2"
)

const service = "naisu"

// envelope mirrors models.Envelope with a lazily decoded payload
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	http *gentleman.Client
}

// New creates a client for the API served at baseURL (e.g. http://localhost:8080/api/v1)
func New(baseURL string) *Client {
	return &Client{http: rest.NewClient(strings.TrimRight(baseURL, "/"), rest.DefaultTimeout)}
}

func (c *Client) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error) {
	req := c.http.Get().AddPath("/auctions")
	if status != "" {
		req.AddQuery("status", string(status))
	}

	var auctions []*models.Auction
	if err := c.do(ctx, req, &auctions); err != nil {
		return nil, err
	}

	return auctions, nil
}

func (c *Client) GetAuction(ctx context.Context, id string) (*models.AuctionResponse, error) {
	var res models.AuctionResponse
	if err := c.do(ctx, c.http.Get().AddPath("/auctions/"+id), &res); err != nil {
		return nil, err
	}

	return &res, nil
}

func (c *Client) GetIntent(ctx context.Context, id string) (*models.IntentResponse, error) {
	var res models.IntentResponse
	if err := c.do(ctx, c.http.Get().AddPath("/intents/"+id), &res); err != nil {
		return nil, err
	}

	return &res, nil
}

func (c *Client) ListStrategies(ctx context.Context) ([]*models.StrategyResponse, error) {
	var res []*models.StrategyResponse
	if err := c.do(ctx, c.http.Get().AddPath("/strategies"), &res); err != nil {
		return nil, err
	}

	return res, nil
}

func (c *Client) SubmitBid(ctx context.Context, auctionID string, bid models.SubmitBidRequest) (*models.Bid, error) {
	var res models.Bid
	req := c.http.Post().AddPath("/auctions/" + auctionID + "/bids").JSON(bid)

	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

func (c *Client) Fill(ctx context.Context, auctionID string, fill models.FillRequest) (*models.Bid, error) {
	var res models.Bid
	req := c.http.Post().AddPath("/auctions/" + auctionID + "/fill").JSON(fill)

	if err := c.do(ctx, req, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// do unwraps the API envelope. Error envelopes surface as *rest.APIError with the server message.
func (c *Client) do(ctx context.Context, req *gentleman.Request, out any) error {
	var env envelope

	err := rest.Do(ctx, service, req, &env)
	if err != nil {
		var apiErr *rest.APIError
		if errors.As(err, &apiErr) {
			var failed envelope
			if json.Unmarshal([]byte(apiErr.Body), &failed) == nil && failed.Error != "" {
				apiErr.Body = failed.Error
			}
		}
		return err
	}

	if !env.Success {
		return &rest.APIError{Service: service, Status: env.Code, Body: env.Error}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}

	return errors.Wrap(json.Unmarshal(env.Data, out), "failed to decode naisu data")
}
