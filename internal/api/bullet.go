package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoInstanceServers is returned when a negotiation succeeds but offers
// no websocket endpoint.
var ErrNoInstanceServers = errors.New("no realtime endpoint available")

const (
	bulletPublicPath  = "/api/v1/bullet-public"
	bulletPrivatePath = "/api/v1/bullet-private"
)

// Negotiate requests a websocket token. A private negotiation is signed and
// requires credentials. The token is not cached: every call asks the venue
// for a new one.
func (c *Client) Negotiate(ctx context.Context, private bool) (*Bullet, error) {
	path := bulletPublicPath
	if private {
		path = bulletPrivatePath
		if c.creds == nil {
			return nil, fmt.Errorf("negotiate private: %w", ErrNoCredentials)
		}
	}

	var b Bullet
	if err := c.post(ctx, path, nil, private, &b); err != nil {
		return nil, fmt.Errorf("negotiate: %w", err)
	}
	if len(b.InstanceServers) == 0 {
		return nil, ErrNoInstanceServers
	}
	b.Private = private

	c.logger.Debug("negotiated realtime token",
		"private", private,
		"servers", len(b.InstanceServers),
		"endpoint", b.InstanceServers[0].Endpoint,
	)
	return &b, nil
}
