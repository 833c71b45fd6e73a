package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"talkie/internal/api"
	"talkie/internal/auth"
	"talkie/internal/chat"
	"talkie/internal/config"
	"talkie/internal/creds"
	clog "talkie/internal/log"
	"talkie/internal/metrics"
	"talkie/internal/storage"
	"talkie/internal/ws"
)

// app wires one session: credential store, REST clients, realtime
// connection, cache and the chat service. Exactly one authoritative instance
// of each per process; no globals.
type app struct {
	cfg *config.Config

	creds   *creds.BboltStore
	cache   *storage.BboltCache
	authAPI *api.Client // unauthenticated path: login, refresh
	api     *api.Client
	conn    *ws.Conn
	service *chat.Service
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	clog.Init(cfg.Env)
	metrics.Register()

	credsStore, err := creds.NewBboltStore(cfg.CredsFile)
	if err != nil {
		return nil, err
	}

	cache, err := storage.NewBboltCache(cfg.CacheFile)
	if err != nil {
		_ = credsStore.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	authAPI := api.NewClient(cfg.BaseURL,
		api.WithHTTPClient(httpClient),
		api.WithLogger(clog.Component("api")),
	)

	refresh := func(ctx context.Context) (creds.TokenPair, error) {
		refreshToken, err := credsStore.ReadRefresh(ctx)
		if err != nil {
			return creds.TokenPair{}, err
		}
		if refreshToken == "" {
			return creds.TokenPair{}, errors.New("no refresh token stored")
		}
		res, err := api.Execute[api.RefreshResponse](ctx, authAPI, api.RefreshRoute(refreshToken))
		if err != nil {
			return creds.TokenPair{}, err
		}
		return creds.TokenPair{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		}, nil
	}

	coordinator := auth.NewCoordinator(credsStore, clog.Component("auth"))
	authenticator := auth.NewAuthenticator(credsStore, coordinator, refresh, func() {
		fmt.Println("Session expired, please log in again.")
	}, clog.Component("auth"))

	apiClient := api.NewClient(cfg.BaseURL,
		api.WithHTTPClient(httpClient),
		api.WithAuthenticator(authenticator),
		api.WithLogger(clog.Component("api")),
	)

	conn := ws.NewConn(ws.Config{
		BaseURL:       cfg.WSBaseURL,
		ReconnectWait: cfg.ReconnectWait,
	}, credsStore, clog.Component("ws"))

	service := chat.NewService(ctx, apiClient, conn, cache, credsStore, clog.Component("chat"))

	return &app{
		cfg:     cfg,
		creds:   credsStore,
		cache:   cache,
		authAPI: authAPI,
		api:     apiClient,
		conn:    conn,
		service: service,
	}, nil
}

func (a *app) close() {
	a.service.Disconnect()
	if err := a.cache.Close(); err != nil {
		fmt.Printf("failed to close cache: %v\n", err)
	}
	if err := a.creds.Close(); err != nil {
		fmt.Printf("failed to close credential store: %v\n", err)
	}
}
