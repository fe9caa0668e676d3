// Package access guards the revenue figures behind the tenant's PIN.
package access

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fixshop/internal/domain"
	"fixshop/internal/metrics"
)

// ScopeRevenue is the only scope a grant carries.
const ScopeRevenue = "revenue"

// DefaultGrantTTL applies when Options.TTL is zero.
const DefaultGrantTTL = 15 * time.Minute

// Store persists PIN hashes with compare-and-swap semantics.
type Store interface {
	SetTenantPIN(ctx context.Context, tenantID string, current *string, next string) error
}

// Grant is a short-lived capability unlocking revenue figures.
type Grant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type grantClaims struct {
	Scope string `json:"scope"`
	jwt.StandardClaims
}

// Options configures a Gate.
type Options struct {
	// Secret signs grants. A random per-process secret is used when empty.
	Secret []byte
	TTL    time.Duration
	// Cost is the bcrypt cost. Defaults to bcrypt.DefaultCost.
	Cost int
	Now  func() time.Time
}

// Gate verifies PINs and issues revenue grants.
type Gate struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	secret  []byte
	ttl     time.Duration
	cost    int
	now     func() time.Time
}

// NewGate builds a gate.
func NewGate(store Store, m *metrics.Metrics, logger *slog.Logger, opts Options) (*Gate, error) {
	g := &Gate{
		store:   store,
		metrics: m,
		logger:  logger.With("component", "access"),
		secret:  opts.Secret,
		ttl:     opts.TTL,
		cost:    opts.Cost,
		now:     opts.Now,
	}
	if len(g.secret) == 0 {
		g.secret = make([]byte, 32)
		if _, err := rand.Read(g.secret); err != nil {
			return nil, fmt.Errorf("generate grant secret: %w", err)
		}
		g.logger.Warn("REVENUE_GRANT_SECRET not set; grants will not survive a restart")
	}
	if g.ttl <= 0 {
		g.ttl = DefaultGrantTTL
	}
	if g.cost == 0 {
		g.cost = bcrypt.DefaultCost
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// Verify checks pin against the tenant's stored PIN and returns a grant on a
// match. Tenants without a PIN never match. A legacy cleartext PIN is
// rehashed after a successful match.
func (g *Gate) Verify(ctx context.Context, tenant domain.Tenant, pin string) (*Grant, bool, error) {
	if !tenant.HasPIN() {
		g.count("unset")
		return nil, false, nil
	}
	stored := *tenant.PINHash
	if !g.matches(stored, pin) {
		g.count("mismatch")
		g.logger.Info("pin mismatch", "tenant_id", tenant.ID)
		return nil, false, nil
	}
	g.count("ok")

	if !isHash(stored) {
		g.upgrade(ctx, tenant.ID, stored, pin)
	}

	grant, err := g.issue(tenant.ID)
	if err != nil {
		return nil, false, err
	}
	return grant, true, nil
}

// Set stores a first PIN. It fails when a PIN is already set.
func (g *Gate) Set(ctx context.Context, tenant domain.Tenant, pin string) error {
	if tenant.HasPIN() {
		return fmt.Errorf("set pin: %w", domain.Validationf("pin already set; use change"))
	}
	if err := checkPIN(pin); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	hash, err := g.hash(pin)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	if err := g.store.SetTenantPIN(ctx, tenant.ID, tenant.PINHash, hash); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	g.logger.Info("pin set", "tenant_id", tenant.ID)
	return nil
}

// Change replaces the PIN after checking the current one.
func (g *Gate) Change(ctx context.Context, tenant domain.Tenant, oldPIN, newPIN string) error {
	if !tenant.HasPIN() || !g.matches(*tenant.PINHash, oldPIN) {
		g.count("mismatch")
		return fmt.Errorf("change pin: current pin does not match: %w", domain.ErrAuthorization)
	}
	if err := checkPIN(newPIN); err != nil {
		return fmt.Errorf("change pin: %w", err)
	}
	hash, err := g.hash(newPIN)
	if err != nil {
		return fmt.Errorf("change pin: %w", err)
	}
	if err := g.store.SetTenantPIN(ctx, tenant.ID, tenant.PINHash, hash); err != nil {
		return fmt.Errorf("change pin: %w", err)
	}
	g.logger.Info("pin changed", "tenant_id", tenant.ID)
	return nil
}

// Authorize reports whether token is a live revenue grant for tenant.
func (g *Gate) Authorize(tenant domain.Tenant, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true}
	var claims grantClaims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		g.logger.Debug("reject grant", "tenant_id", tenant.ID, "error", err)
		return false
	}
	if claims.Scope != ScopeRevenue || claims.Subject != tenant.ID {
		return false
	}
	return claims.VerifyExpiresAt(g.now().Unix(), true)
}

func (g *Gate) issue(tenantID string) (*Grant, error) {
	now := g.now()
	expires := now.Add(g.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &grantClaims{
		Scope: ScopeRevenue,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   tenantID,
			IssuedAt:  now.Unix(),
			ExpiresAt: expires.Unix(),
		},
	})
	signed, err := t.SignedString(g.secret)
	if err != nil {
		return nil, fmt.Errorf("sign grant: %w", err)
	}
	return &Grant{Token: signed, ExpiresAt: time.Unix(expires.Unix(), 0).UTC()}, nil
}

func (g *Gate) matches(stored, pin string) bool {
	if isHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pin)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(pin)) == 1
}

func (g *Gate) hash(pin string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), g.cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(b), nil
}

func (g *Gate) upgrade(ctx context.Context, tenantID, stored, pin string) {
	hash, err := g.hash(pin)
	if err != nil {
		g.logger.Warn("rehash legacy pin", "tenant_id", tenantID, "error", err)
		return
	}
	err = g.store.SetTenantPIN(ctx, tenantID, &stored, hash)
	switch {
	case errors.Is(err, domain.ErrConflict):
		g.logger.Info("legacy pin changed concurrently", "tenant_id", tenantID)
	case err != nil:
		g.logger.Warn("store rehashed pin", "tenant_id", tenantID, "error", err)
	default:
		g.logger.Info("legacy pin rehashed", "tenant_id", tenantID)
	}
}

func (g *Gate) count(result string) {
	if g.metrics == nil {
		return
	}
	g.metrics.PINChecks.WithLabelValues(result).Inc()
}

// isHash reports whether stored looks like a bcrypt hash rather than a legacy
// cleartext PIN.
func isHash(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

func checkPIN(pin string) error {
	if len(pin) != 4 {
		return domain.Validationf("pin must be exactly 4 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return domain.Validationf("pin must be exactly 4 digits")
		}
	}
	return nil
}
