package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/opentdf/drmpolicy/internal/auth"
	"github.com/opentdf/drmpolicy/internal/config"
	"github.com/opentdf/drmpolicy/internal/db"
	"github.com/opentdf/drmpolicy/internal/mediaservice"
	"github.com/opentdf/drmpolicy/pkg/delivery"
	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/opentdf/drmpolicy/pkg/keys"
	"github.com/opentdf/drmpolicy/pkg/license"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/p11"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/store/memory"
	"github.com/opentdf/drmpolicy/pkg/store/postgres"
	"github.com/opentdf/drmpolicy/pkg/teardown"
	"go.uber.org/zap"
)

// session holds everything built once per process.
type session struct {
	store   media.Store
	engine  *drm.Engine
	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newSession(ctx context.Context, c config.Config, out io.Writer, logger *zap.Logger) (*session, error) {
	s := &session{}
	store, closeStore, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closers = append(s.closers, closeStore)

	gen, closeGen, err := openGenerator(c.HSM, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, closeGen)

	engine, err := newEngine(c, store, gen, out, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func newEngine(c config.Config, store media.Store, gen keys.Generator, out io.Writer, logger *zap.Logger) (*drm.Engine, error) {
	requirements, err := c.TokenRequirements()
	if err != nil {
		return nil, err
	}
	var certificate []byte
	if c.FairPlay.CertFile != "" {
		if certificate, err = c.FairPlayCertificate(); err != nil {
			return nil, err
		}
	}
	resolver, err := delivery.NewURLResolver(c.KeyDelivery.BaseURL)
	if err != nil {
		return nil, err
	}

	provisioner := &keys.Provisioner{
		Store:     store,
		Assets:    store,
		Generator: gen,
		Logger:    logger.Named("keys"),
	}
	composer := &policy.Composer{
		Store: store,
		Token: requirements,
		FairPlay: license.FairPlayBuilder{
			Keys:        provisioner,
			ASK:         c.FairPlay.ASK,
			Certificate: certificate,
			Password:    c.FairPlay.CertPassword,
		},
		Names:  policy.Names{Common: c.Policy.Common, CommonCbcs: c.Policy.CommonCbc},
		Logger: logger.Named("policy"),
	}
	td := &teardown.Coordinator{Store: store, Logger: logger.Named("teardown")}
	return &drm.Engine{
		Store:    store,
		Policies: composer,
		Binder: &delivery.Binder{
			Store:    store,
			Keys:     provisioner,
			Policies: composer,
			Teardown: td,
			Resolver: resolver,
			Logger:   logger.Named("delivery"),
		},
		Teardown: td,
		Reporter: drm.NewTextReporter(out),
		Logger:   logger.Named("drm"),
	}, nil
}

func openStore(ctx context.Context, c config.Config, logger *zap.Logger) (media.Store, func(), error) {
	nop := func() {}
	switch c.Store.Driver {
	case "", "memory":
		logger.Warn("using the in-memory store, nothing will be persisted")
		return memory.New(c.Streaming.Origin), nop, nil
	case "postgres":
		client, err := db.NewClient(ctx, c.Store.URL, logger.Named("db"))
		if err != nil {
			return nil, nop, err
		}
		return postgres.New(client, c.Streaming.Origin), client.Close, nil
	case "http":
		endpoint, err := url.Parse(c.Store.Endpoint)
		if err != nil {
			return nil, nop, errors.Join(media.ErrConfiguration, fmt.Errorf("invalid store.endpoint: %w", err))
		}
		hc := auth.NewHTTPClient(nil)
		if c.Store.Issuer != "" {
			cc, err := auth.Discover(ctx, c.Store.Issuer, c.Store.ClientID, c.Store.ClientSecret)
			if err != nil {
				return nil, nop, err
			}
			if hc, err = cc.Client(ctx); err != nil {
				return nil, nop, fmt.Errorf("could not authenticate to %s: %w", c.Store.Issuer, err)
			}
		}
		hc.Timeout = c.Store.Timeout
		client, err := mediaservice.NewClient(mediaservice.ClientOptions{HTTPClient: hc, Endpoint: endpoint})
		if err != nil {
			return nil, nop, err
		}
		return client, hc.CloseIdleConnections, nil
	}
	return nil, nop, errors.Join(media.ErrConfiguration, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
}

func openGenerator(c config.HSMConfig, logger *zap.Logger) (keys.Generator, func(), error) {
	if c.Module == "" {
		return keys.RandomGenerator, func() {}, nil
	}
	session, err := p11.Open(c.Module, c.Slot, c.Pin)
	if err != nil {
		return nil, func() {}, errors.Join(media.ErrConfiguration, err)
	}
	logger.Info("drawing key material from hsm", zap.String("module", c.Module), zap.Uint("slot", c.Slot))
	return session, func() {
		if err := session.Close(); err != nil {
			logger.Warn("could not close hsm session", zap.Error(err))
		}
	}, nil
}

