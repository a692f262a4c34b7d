// Package launcher performs single-provider launch and game-list calls.
// It has no failover logic of its own.
package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/google/uuid"
)

var ErrLaunchRejected = errors.New("launch rejected by provider")

type Launcher struct {
	client   *Client
	newToken func() string
}

func New(client *Client) *Launcher {
	return &Launcher{client: client, newToken: uuid.NewString}
}

// Launch asks d for a game session. A well-formed failure answer from the
// provider is returned alongside ErrLaunchRejected.
func (l *Launcher) Launch(ctx context.Context, req adapters.GameLaunchRequest, d providers.Descriptor) (adapters.GameLaunchResponse, error) {
	a, err := adapters.For(d.Protocol)
	if err != nil {
		return adapters.GameLaunchResponse{}, err
	}

	if req.SessionToken == "" {
		req.SessionToken = l.newToken()
	}

	if req.Currency == "" {
		req.Currency = d.Currency
	}

	wire, err := a.BuildLaunchRequest(req, d)
	if err != nil {
		return adapters.GameLaunchResponse{}, fmt.Errorf("build launch request: %w", err)
	}

	resp, err := l.client.Do(ctx, wire)
	if err != nil {
		return adapters.GameLaunchResponse{}, err
	}

	out, err := a.ParseLaunchResponse(resp)
	if err != nil {
		return adapters.GameLaunchResponse{}, fmt.Errorf("parse launch response: %w", err)
	}

	if !out.Success {
		return out, fmt.Errorf("%w: %s", ErrLaunchRejected, out.ErrorMessage)
	}

	return out, nil
}

// Games fetches the provider's game list.
func (l *Launcher) Games(ctx context.Context, d providers.Descriptor) ([]adapters.Game, error) {
	a, err := adapters.For(d.Protocol)
	if err != nil {
		return nil, err
	}

	wire, err := a.BuildGameListRequest(d)
	if err != nil {
		return nil, fmt.Errorf("build game list request: %w", err)
	}

	resp, err := l.client.Do(ctx, wire)
	if err != nil {
		return nil, err
	}

	games, err := a.ParseGameList(resp)
	if err != nil {
		return nil, fmt.Errorf("parse game list: %w", err)
	}

	for i := range games {
		games[i].ProviderID = d.ID
	}

	return games, nil
}
