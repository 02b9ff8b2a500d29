package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/audit"
	"github.com/qrmenu/menu-relay/audit/pgaudit"
	fakeaudit "github.com/qrmenu/menu-relay/audit/repofake"
	"github.com/qrmenu/menu-relay/authority/httpauthority"
	"github.com/qrmenu/menu-relay/authority/oidcresolver"
	fakeauthority "github.com/qrmenu/menu-relay/authority/repofake"
	"github.com/qrmenu/menu-relay/capability"
	"github.com/qrmenu/menu-relay/capability/redisledger"
	"github.com/qrmenu/menu-relay/disclosure"
	"github.com/qrmenu/menu-relay/identity"
	"github.com/qrmenu/menu-relay/internal/config"
	"github.com/qrmenu/menu-relay/payment"
	"github.com/qrmenu/menu-relay/payment/gateway"
	"github.com/qrmenu/menu-relay/payment/pgstore"
	fakeintents "github.com/qrmenu/menu-relay/payment/repofake"
	"github.com/qrmenu/menu-relay/server"
	"github.com/qrmenu/menu-relay/stepup"
	"github.com/qrmenu/menu-relay/stepup/redisstore"
	fakechallenges "github.com/qrmenu/menu-relay/stepup/repofake"
	"github.com/qrmenu/menu-relay/vault"
	"github.com/qrmenu/menu-relay/vault/httpvault"
	"github.com/qrmenu/menu-relay/vault/sealed"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	devAdminID    = "dev-admin"
	devAdminEmail = "admin@localhost"
	devOrderID    = "demo-order"

	ledgerCleanupInterval = time.Minute
)

type stores struct {
	challenges stepup.Store
	ledger     capability.Ledger
	audit      audit.Log
	intents    payment.Store
}

type authorities struct {
	resolver identity.Resolver
	stepUp   stepup.Authority
}

// buildServices wires the configured backends. Anything left unconfigured in
// DEV falls back to an in-process implementation; elsewhere it is an error.
func buildServices(ctx context.Context, c config.Config) (server.Services, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (server.Services, func(), error) {
		closeAll()
		return server.Services{}, func() {}, err
	}
	dev := c.GetEnv() == "DEV"

	st, storeClosers, err := buildStores(ctx, c, dev)
	closers = append(closers, storeClosers...)
	if err != nil {
		return fail(err)
	}

	auth, err := buildAuthorities(ctx, c, dev)
	if err != nil {
		return fail(err)
	}

	v, err := buildVault(c, dev)
	if err != nil {
		return fail(err)
	}

	gw, err := buildGateway(c, v)
	if err != nil {
		return fail(err)
	}

	signingKey, err := capabilityKey(c, dev)
	if err != nil {
		return fail(err)
	}
	issuer, err := capability.NewIssuer(signingKey, c.GetCapabilityTTL())
	if err != nil {
		return fail(err)
	}

	verifier, err := identity.NewVerifier(auth.resolver)
	if err != nil {
		return fail(err)
	}
	manager, err := stepup.NewManager(st.challenges, auth.stepUp, issuer,
		stepup.WithCodeLength(c.GetChallengeCodeLength()),
		stepup.WithTTL(c.GetChallengeTTL()),
		stepup.WithMaxAttempts(c.GetChallengeMaxAttempts()),
	)
	if err != nil {
		return fail(err)
	}
	gate, err := disclosure.NewGate(issuer, st.ledger, v, st.audit)
	if err != nil {
		return fail(err)
	}
	settings, err := disclosure.NewSettings(v, auth.stepUp, st.audit)
	if err != nil {
		return fail(err)
	}
	relay, err := payment.NewRelay(st.intents, gw)
	if err != nil {
		return fail(err)
	}
	reconciler, err := payment.NewReconciler(st.intents, gw)
	if err != nil {
		return fail(err)
	}

	return server.Services{
		Verifier:   verifier,
		StepUp:     manager,
		Gate:       gate,
		Settings:   settings,
		Relay:      relay,
		Reconciler: reconciler,
	}, closeAll, nil
}

func buildStores(ctx context.Context, c config.Config, dev bool) (*stores, []func(), error) {
	var closers []func()
	st := &stores{}

	if addr := c.GetRedisAddr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, closers, errors.Wrap(err, "[buildStores] redis ping")
		}
		st.challenges = redisstore.New(rdb)
		st.ledger = redisledger.New(rdb)
		log.Info().Str("addr", addr).Msg("Using Redis for challenges and capabilities")
	} else if dev {
		st.challenges = fakechallenges.NewFakeChallengeStore()
		ledger := capability.NewInMemoryLedger()
		cleanupCtx, stopCleanup := context.WithCancel(context.Background())
		ledger.StartCleanup(cleanupCtx, ledgerCleanupInterval)
		closers = append(closers, stopCleanup)
		st.ledger = ledger
		log.Warn().Msg("REDIS_ADDR not set, challenges and capabilities are held in memory")
	} else {
		return nil, closers, errors.New("[buildStores] REDIS_ADDR is required")
	}

	if dsn := c.GetPostgresDSN(); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, closers, errors.Wrap(err, "[buildStores] postgres")
		}
		closers = append(closers, pool.Close)

		auditStore := pgaudit.New(pool)
		if err := auditStore.Migrate(ctx); err != nil {
			return nil, closers, errors.Wrap(err, "[buildStores] migrate audit log")
		}
		intentStore := pgstore.New(pool)
		if err := intentStore.Migrate(ctx); err != nil {
			return nil, closers, errors.Wrap(err, "[buildStores] migrate payment intents")
		}
		st.audit = auditStore
		st.intents = intentStore
		log.Info().Msg("Using Postgres for audit log and payment intents")
	} else if dev {
		st.audit = fakeaudit.NewFakeAuditLog()
		intents := fakeintents.NewFakeIntentStore()
		if err := intents.Create(ctx, payment.Intent{
			OrderID: devOrderID,
			Amounts: payment.Amounts{TotalAmount: 10000},
		}); err != nil {
			return nil, closers, err
		}
		st.intents = intents
		log.Warn().Str("order_id", devOrderID).Msg("POSTGRES_DSN not set, using in-memory audit log and intents")
	} else {
		return nil, closers, errors.New("[buildStores] POSTGRES_DSN is required")
	}

	return st, closers, nil
}

func clientCredentials(c config.Config) *clientcredentials.Config {
	if c.GetClientID() == "" || c.GetTokenURL() == "" {
		return nil
	}
	return &clientcredentials.Config{
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		TokenURL:     c.GetTokenURL(),
	}
}

func buildAuthorities(ctx context.Context, c config.Config, dev bool) (*authorities, error) {
	if url := c.GetAuthorityURL(); url != "" {
		opts := []httpauthority.Option{httpauthority.WithTimeout(c.GetRequestTimeout())}
		if cc := clientCredentials(c); cc != nil {
			opts = append(opts, httpauthority.WithClientCredentials(*cc))
		}
		client, err := httpauthority.New(url, opts...)
		if err != nil {
			return nil, err
		}
		a := &authorities{resolver: client, stepUp: client}

		// Session tokens issued by an OpenID provider are verified locally.
		if issuer := c.GetOIDCIssuer(); issuer != "" {
			resolver, err := oidcresolver.New(ctx, issuer, c.GetOIDCAudience())
			if err != nil {
				return nil, errors.Wrap(err, "[buildAuthorities] oidc")
			}
			a.resolver = resolver
		}
		return a, nil
	}

	if !dev {
		return nil, errors.New("[buildAuthorities] AUTHORITY_URL is required")
	}

	fake := fakeauthority.NewFakeAuthority()
	fake.SetLogCodes(true)
	password, err := randomString(18)
	if err != nil {
		return nil, err
	}
	token, err := fake.AddAccount(identity.Identity{
		ID:           devAdminID,
		Email:        devAdminEmail,
		Role:         identity.RoleSuperAdmin,
		AdminOrAbove: true,
	}, password)
	if err != nil {
		return nil, err
	}

	log.Warn().Msg("AUTHORITY_URL not set, using the development authority")
	log.Info().Msgf("👤 Development Admin:")
	log.Info().Msgf("   Email:       %s", devAdminEmail)
	log.Info().Msgf("   Password:    %s", password)
	log.Info().Msgf("   Token:       %s", token)
	return &authorities{resolver: fake, stepUp: fake}, nil
}

func buildVault(c config.Config, dev bool) (vault.Backend, error) {
	if url := c.GetVaultURL(); url != "" {
		return httpvault.New(url, c.GetRequestTimeout(), clientCredentials(c))
	}

	key := c.GetVaultSealKey()
	if key == "" {
		if !dev {
			return nil, errors.New("[buildVault] VAULT_URL or VAULT_SEAL_KEY is required")
		}
		var err error
		if key, err = sealed.GenerateKey(); err != nil {
			return nil, err
		}
		log.Warn().Msg("VAULT_SEAL_KEY not set, sealed vault uses an ephemeral key")
	}
	v, err := sealed.New(key)
	if err != nil {
		return nil, err
	}

	if secret := c.GetMerchantSecretKey(); secret != "" {
		env := vault.EnvironmentProduction
		if dev {
			env = vault.EnvironmentTest
		}
		if err := v.Store(sealed.AccountScope, vault.Bundle{
			ProductCode: c.GetMerchantProductCode(),
			SecretKey:   secret,
			AccountName: c.GetAppName(),
			Environment: env,
		}); err != nil {
			return nil, err
		}
		log.Info().Str("product_code", c.GetMerchantProductCode()).Str("secret_key", vault.Mask(secret)).Msg("Merchant credentials sealed")
	} else {
		log.Warn().Msg("MERCHANT_SECRET_KEY not set, the sealed vault is empty")
	}
	return v, nil
}

func buildGateway(c config.Config, v vault.Vault) (payment.Gateway, error) {
	if url := c.GetGatewayURL(); url != "" {
		return gateway.New(url, c.GetGatewaySuccessURL(), c.GetGatewayFailureURL(), c.GetRequestTimeout())
	}
	log.Warn().Msg("GATEWAY_URL not set, payment forms are signed in process")
	return gateway.NewSigner(v, sealed.AccountScope, c.GetGatewaySuccessURL(), c.GetGatewayFailureURL())
}

func capabilityKey(c config.Config, dev bool) ([]byte, error) {
	if key := c.GetCapabilitySigningKey(); key != "" {
		return []byte(key), nil
	}
	if !dev {
		return nil, errors.New("[capabilityKey] CAPABILITY_SIGNING_KEY is required")
	}
	log.Warn().Msg("CAPABILITY_SIGNING_KEY not set, capabilities use an ephemeral key")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
