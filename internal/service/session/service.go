// Package session owns the cart lifecycle around the cart engine:
// key resolution, per-key serialization, load/save-through against the
// dual-table store, the login key rotation and the background sweeps.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"cocart-replica/internal/domain"
	sessionrepo "cocart-replica/internal/repository/session"
	cartsvc "cocart-replica/internal/service/cart"
)

// CartKeyLength matches the cart_key column width.
const CartKeyLength = 42

// Options configures the session service.
type Options struct {
	SessionTTL       time.Duration
	CartTTL          time.Duration
	PreserveOnLogout bool
	Source           string
}

type Service struct {
	repo   sessionrepo.Repository
	engine *cartsvc.Service
	clock  clock.Clock
	logger *log.Logger
	opts   Options

	locks keyedMutex
}

func New(repo sessionrepo.Repository, engine *cartsvc.Service, clk clock.Clock, logger *log.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Source == "" {
		opts.Source = domain.SourceCoCart
	}
	return &Service{
		repo:   repo,
		engine: engine,
		clock:  clk,
		logger: logger,
		opts:   opts,
	}
}

// Engine exposes the cart engine for handlers that mutate through
// Mutate callbacks.
func (s *Service) Engine() *cartsvc.Service { return s.engine }

// GenerateKey mints a fresh opaque guest cart key, 42 chars.
func GenerateKey() string {
	a := strings.ReplaceAll(uuid.NewString(), "-", "")
	b := strings.ReplaceAll(uuid.NewString(), "-", "")
	return a + b[:CartKeyLength-len(a)]
}

// UserKey is the cart key of an authenticated user.
func UserKey(userID int64) string {
	return fmt.Sprintf("%d", userID)
}

// IsUserKey reports whether key was minted by UserKey. User keys are
// bare decimal ids; guest keys are 42-char opaque tokens.
func IsUserKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// View loads the cart for key without persisting anything. A missing or
// expired guest key yields a fresh transient cart under a new key,
// matching the lazy-creation lifecycle; a user key stays stable so
// authenticated clients always see their own key back.
func (s *Service) View(ctx context.Context, key string) (*domain.Cart, error) {
	if key == "" {
		return s.newCart(GenerateKey()), nil
	}
	unlock := s.locks.lock(key)
	defer unlock()

	cart, err := s.load(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if IsUserKey(key) {
				return s.newCart(key), nil
			}
			return s.newCart(GenerateKey()), nil
		}
		return nil, err
	}
	return cart, nil
}

// Mutate runs fn against the cart under key, creating the cart lazily,
// and saves the result. fn's error aborts the save, so a failed
// operation leaves no partial state. Operations on one key serialize.
func (s *Service) Mutate(ctx context.Context, key string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	if key == "" {
		key = GenerateKey()
	}
	unlock := s.locks.lock(key)
	defer unlock()
	return s.mutateLocked(ctx, key, fn)
}

// MutateIdempotent is Mutate with request-id replay detection: when the
// cart's last applied request id matches, fn is skipped and the current
// state returned with replayed true.
func (s *Service) MutateIdempotent(ctx context.Context, key, requestID string, fn func(*domain.Cart) error) (cart *domain.Cart, replayed bool, err error) {
	if key == "" {
		key = GenerateKey()
	}
	unlock := s.locks.lock(key)
	defer unlock()

	cart, err = s.load(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		cart = s.newCart(key)
	}
	if requestID != "" && cart.LastRequestID == requestID {
		return cart, true, nil
	}

	if err := fn(cart); err != nil {
		return nil, false, err
	}
	cart.LastRequestID = requestID
	if err := s.save(ctx, cart); err != nil {
		return nil, false, err
	}
	return cart, false, nil
}

func (s *Service) mutateLocked(ctx context.Context, key string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	cart, err := s.load(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		cart = s.newCart(key)
	}

	if err := fn(cart); err != nil {
		return nil, err
	}
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Delete purges a cart from both tables.
func (s *Service) Delete(ctx context.Context, key string) error {
	unlock := s.locks.lock(key)
	defer unlock()
	if err := s.repo.Delete(ctx, key); err != nil {
		return domain.ErrStorage
	}
	return nil
}

// LoginResult is what the login transition produced.
type LoginResult struct {
	Cart     *domain.Cart
	Warnings []string
}

// Login rotates a guest cart onto the user's key. An empty user cart is
// an atomic rename; an existing one absorbs the guest lines one by one
// under the usual admission rules, dropping overflow with warnings.
func (s *Service) Login(ctx context.Context, guestKey string, userID int64) (*LoginResult, error) {
	userKey := UserKey(userID)
	if guestKey == "" || guestKey == userKey {
		cart, err := s.View(ctx, userKey)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Cart: cart}, nil
	}

	unlock := s.locks.lockPair(guestKey, userKey)
	defer unlock()

	guest, err := s.load(ctx, guestKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		guest = nil
	}
	if guest == nil || guest.IsEmpty() {
		if guest != nil {
			if err := s.repo.Delete(ctx, guestKey); err != nil {
				return nil, domain.ErrStorage
			}
		}
		cart, err := s.load(ctx, userKey)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			cart = s.newCart(userKey)
		}
		return &LoginResult{Cart: cart}, nil
	}

	user, err := s.load(ctx, userKey)
	switch {
	case err == nil && !user.IsEmpty():
		return s.mergeCarts(ctx, guest, user)
	case err == nil || errors.Is(err, domain.ErrNotFound):
		// Empty or absent user cart: take the guest cart over wholesale.
		if err := s.repo.Rename(ctx, guestKey, userKey); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Raced with another login; fall back to merging.
				if user, err = s.load(ctx, userKey); err == nil {
					return s.mergeCarts(ctx, guest, user)
				}
			}
			return nil, domain.ErrStorage
		}
		guest.Key = userKey
		if err := s.save(ctx, guest); err != nil {
			return nil, err
		}
		return &LoginResult{Cart: guest}, nil
	default:
		return nil, err
	}
}

// mergeCarts folds guest lines and coupons into the user cart, then
// deletes the guest cart.
func (s *Service) mergeCarts(ctx context.Context, guest, user *domain.Cart) (*LoginResult, error) {
	var warnings []string
	for i := range guest.Items {
		item := &guest.Items[i]
		_, err := s.engine.AddItem(ctx, user, cartsvc.AddItemInput{
			ProductID:    item.ProductID,
			VariationID:  item.VariationID,
			Quantity:     item.Quantity,
			Attributes:   item.VariationAttributes,
			CartItemData: item.CartItemData,
		})
		if err != nil {
			var apiErr *domain.Error
			if !errors.As(err, &apiErr) {
				return nil, err
			}
			warnings = append(warnings, fmt.Sprintf("%s: %s", item.Name, apiErr.Message))
		}
	}
	for _, code := range guest.AppliedCoupons {
		if err := s.engine.ApplyCoupon(ctx, user, code); err != nil {
			var apiErr *domain.Error
			if !errors.As(err, &apiErr) {
				return nil, err
			}
			warnings = append(warnings, fmt.Sprintf("coupon %s: %s", code, apiErr.Message))
		}
	}

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, guest.Key); err != nil {
		return nil, domain.ErrStorage
	}
	return &LoginResult{Cart: user, Warnings: warnings}, nil
}

// Logout detaches the identity. The user cart is preserved under the
// user key unless configured otherwise. Returns a fresh guest key for
// the client to continue with.
func (s *Service) Logout(ctx context.Context, userID int64) (string, error) {
	if !s.opts.PreserveOnLogout {
		if err := s.Delete(ctx, UserKey(userID)); err != nil {
			return "", err
		}
	}
	return GenerateKey(), nil
}

// Sweep removes expired rows from both tables.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.repo.SweepExpired(ctx, s.clock.Now().Unix())
}

// RunSweeper loops Sweep on the configured interval until ctx ends.
// Failures are logged and retried on the next tick.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Printf("sweeper: %v", err)
				continue
			}
			if count > 0 {
				s.logger.Printf("sweeper: removed %d expired carts", count)
			}
		}
	}
}

// TransferLegacy drains the pre-existing session table once.
func (s *Service) TransferLegacy(ctx context.Context) (int64, error) {
	return s.repo.TransferLegacy(ctx)
}

// AdminGet decodes the durable record for key.
func (s *Service) AdminGet(ctx context.Context, key string) (*domain.Cart, *domain.CartRecord, error) {
	rec, err := s.repo.LoadDurable(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	cart, err := decodeCart(rec)
	if err != nil {
		return nil, nil, err
	}
	return cart, rec, nil
}

// AdminList returns durable records for the admin surface.
func (s *Service) AdminList(ctx context.Context, limit int) ([]domain.CartRecord, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) newCart(key string) *domain.Cart {
	now := s.clock.Now().Unix()
	return &domain.Cart{
		SchemaVersion: domain.CartSchemaVersion,
		Key:           key,
		CreatedAt:     now,
		ExpiresAt:     now + int64(s.opts.SessionTTL.Seconds()),
		Source:        s.opts.Source,
	}
}

// load prefers the session row and falls back to the durable row,
// promoting it back into the session table on the next save.
func (s *Service) load(ctx context.Context, key string) (*domain.Cart, error) {
	rec, err := s.repo.Load(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = s.repo.LoadDurable(ctx, key)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.ErrStorage
	}
	return decodeCart(rec)
}

func (s *Service) save(ctx context.Context, cart *domain.Cart) error {
	now := s.clock.Now().Unix()
	cart.ExpiresAt = now + int64(s.opts.SessionTTL.Seconds())

	rec, err := encodeCart(cart)
	if err != nil {
		return err
	}
	cartExpiry := now + int64(s.opts.CartTTL.Seconds())
	if err := s.repo.Save(ctx, rec, cart.ExpiresAt, cartExpiry); err != nil {
		s.logger.Printf("session: save key=%s: %v", cart.Key, err)
		return domain.ErrStorage
	}
	return nil
}

func encodeCart(cart *domain.Cart) (domain.CartRecord, error) {
	cart.SchemaVersion = domain.CartSchemaVersion
	value, err := json.Marshal(cart)
	if err != nil {
		return domain.CartRecord{}, fmt.Errorf("encode cart %s: %w", cart.Key, err)
	}
	return domain.CartRecord{
		Key:     cart.Key,
		Value:   value,
		Created: cart.CreatedAt,
		Expiry:  cart.ExpiresAt,
		Source:  cart.Source,
		Hash:    cart.ContentHash,
	}, nil
}

func decodeCart(rec *domain.CartRecord) (*domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(rec.Value, &cart); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", rec.Key, err)
	}
	if cart.SchemaVersion > domain.CartSchemaVersion {
		return nil, fmt.Errorf("decode cart %s: unsupported schema version %d", rec.Key, cart.SchemaVersion)
	}
	cart.Key = rec.Key
	cart.ExpiresAt = rec.Expiry
	return &cart, nil
}

// keyedMutex serializes work per cart key. Entries are refcounted so
// the map does not grow with dead keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func (m *keyedMutex) lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*keyLock)
	}
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.ch <- struct{}{}
	return func() {
		<-entry.ch
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// lockPair acquires both keys in a stable order so concurrent logins
// cannot deadlock.
func (m *keyedMutex) lockPair(a, b string) (unlock func()) {
	keys := []string{a, b}
	sort.Strings(keys)
	first := m.lock(keys[0])
	second := m.lock(keys[1])
	return func() {
		second()
		first()
	}
}
