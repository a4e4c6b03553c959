package apikeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnimsg/omnigate/internal/cache"
	"github.com/omnimsg/omnigate/internal/db"
)

// ErrInvalidKey is returned for any key that fails validation:
// unknown, malformed, revoked, or expired. Callers get no more
// detail than that.
var ErrInvalidKey = errors.New("invalid api key")

// ErrPrimaryKeyImmutable rejects rename or delete of the bootstrap key.
var ErrPrimaryKeyImmutable = errors.New("primary api key cannot be renamed or deleted")

// ValidateTTL bounds how long a validated key is served from cache
// before the database is consulted again.
const ValidateTTL = 60 * time.Second

const cacheKeyPrefix = "apikey:"

// Service validates and manages API keys. Validation results are
// cached by key hash so the hot path normally skips the database.
type Service struct {
	store    Store
	cache    *cache.Cache[Key]
	recorder *UsageRecorder
	logger   *slog.Logger
}

// NewService creates an API key service. The cache and recorder are
// optional; without them every validation hits the database and usage
// is not tracked.
func NewService(log *slog.Logger, store Store, keyCache *cache.Cache[Key], recorder *UsageRecorder) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		cache:    keyCache,
		recorder: recorder,
		logger:   log.With(slog.String("service", "apikeys")),
	}
}

// Validate checks a plain-text key and returns its identity and
// scopes. Revoked and expired keys fail even when a cached entry is
// still present; the stale entry is dropped on sight.
func (s *Service) Validate(ctx context.Context, plainKey string) (Validated, error) {
	if !strings.HasPrefix(plainKey, KeyPrefix) {
		return Validated{}, ErrInvalidKey
	}
	hash := HashKey(plainKey)

	key, cached, err := s.lookup(ctx, hash)
	if err != nil {
		return Validated{}, err
	}
	if !key.IsActive || key.Expired(time.Now()) {
		if cached {
			s.invalidate(key.KeyHash)
		}
		return Validated{}, ErrInvalidKey
	}

	if s.recorder != nil {
		s.recorder.Record(key.ID)
	}
	return Validated{ID: key.ID, Name: key.Name, Scopes: key.Scopes}, nil
}

func (s *Service) lookup(ctx context.Context, hash string) (Key, bool, error) {
	if s.cache != nil {
		if key, ok := s.cache.Get(cacheKeyPrefix + hash); ok {
			return key, true, nil
		}
	}
	key, err := s.store.GetByHash(ctx, hash)
	if errors.Is(err, db.ErrNotFound) {
		return Key{}, false, ErrInvalidKey
	}
	if err != nil {
		return Key{}, false, err
	}
	if s.cache != nil {
		s.cache.SetTTL(cacheKeyPrefix+hash, key, ValidateTTL)
	}
	return key, false, nil
}

func (s *Service) invalidate(hash string) {
	if s.cache != nil {
		s.cache.Delete(cacheKeyPrefix + hash)
	}
}

// Create issues a new key. The returned plain text is shown once and
// never recoverable afterwards.
func (s *Service) Create(ctx context.Context, params CreateParams) (Created, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return Created{}, fmt.Errorf("key name is required")
	}
	if len(params.Scopes) == 0 {
		params.Scopes = []string{"*"}
	}

	plain, err := GenerateKey()
	if err != nil {
		return Created{}, fmt.Errorf("generate key: %w", err)
	}
	key, err := s.store.Insert(ctx, InsertParams{
		Name:      params.Name,
		KeyHash:   HashKey(plain),
		KeyPrefix: DisplayPrefix(plain),
		Scopes:    params.Scopes,
		ExpiresAt: params.ExpiresAt,
	})
	if err != nil {
		return Created{}, err
	}

	s.logger.Info("api key created",
		slog.String("key_id", key.ID.String()),
		slog.String("name", key.Name),
	)
	return Created{Key: key, PlainText: plain}, nil
}

// GetByID fetches a key row.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Key, error) {
	return s.store.GetByID(ctx, id)
}

// List returns all keys, masked, oldest first.
func (s *Service) List(ctx context.Context) ([]Key, error) {
	return s.store.List(ctx)
}

// Update applies partial changes and drops the key's cached
// validation so the next request sees the new state. The primary key
// cannot be renamed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (Key, error) {
	if params.Name != nil {
		primary, err := s.isPrimary(ctx, id)
		if err != nil {
			return Key{}, err
		}
		if primary {
			return Key{}, ErrPrimaryKeyImmutable
		}
	}
	key, err := s.store.Update(ctx, id, params)
	if err != nil {
		return Key{}, err
	}
	s.invalidate(key.KeyHash)
	s.logger.Info("api key updated", slog.String("key_id", id.String()))
	return key, nil
}

// Revoke deactivates a key and drops its cached validation. Revoked
// keys fail validation immediately, not after cache expiry.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (Key, error) {
	key, err := s.store.SetActive(ctx, id, false)
	if err != nil {
		return Key{}, err
	}
	s.invalidate(key.KeyHash)
	s.logger.Info("api key revoked", slog.String("key_id", id.String()))
	return key, nil
}

// Delete removes a key permanently. The primary key is refused.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	primary, err := s.isPrimary(ctx, id)
	if err != nil {
		return err
	}
	if primary {
		return ErrPrimaryKeyImmutable
	}
	key, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(key.KeyHash)
	s.logger.Info("api key deleted", slog.String("key_id", id.String()))
	return nil
}

func (s *Service) isPrimary(ctx context.Context, id uuid.UUID) (bool, error) {
	key, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return key.Name == PrimaryKeyName, nil
}

// PrimaryInfo describes the bootstrap key after EnsurePrimary.
// DisplayKey is the full plain text only when a key was freshly
// generated; otherwise it is masked.
type PrimaryInfo struct {
	KeyID      uuid.UUID
	IsNew      bool
	FromConfig bool
	DisplayKey string
}

// EnsurePrimary makes sure the bootstrap key exists. A configured
// plain key takes precedence when no primary exists yet; with
// neither, a key is generated and its plain text returned this one
// time.
func (s *Service) EnsurePrimary(ctx context.Context, configuredKey string) (PrimaryInfo, error) {
	existing, err := s.store.GetByName(ctx, PrimaryKeyName)
	if err == nil {
		return PrimaryInfo{
			KeyID:      existing.ID,
			DisplayKey: existing.KeyDisplay,
		}, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return PrimaryInfo{}, err
	}

	plain := configuredKey
	fromConfig := strings.HasPrefix(plain, KeyPrefix)
	if !fromConfig {
		plain, err = GenerateKey()
		if err != nil {
			return PrimaryInfo{}, fmt.Errorf("generate primary key: %w", err)
		}
	}

	key, err := s.store.Insert(ctx, InsertParams{
		Name:      PrimaryKeyName,
		KeyHash:   HashKey(plain),
		KeyPrefix: DisplayPrefix(plain),
		Scopes:    []string{"*"},
	})
	if err != nil {
		return PrimaryInfo{}, err
	}

	info := PrimaryInfo{KeyID: key.ID, IsNew: !fromConfig, FromConfig: fromConfig}
	if fromConfig {
		info.DisplayKey = key.KeyDisplay
		s.logger.Info("primary api key taken from configuration")
	} else {
		info.DisplayKey = plain
		s.logger.Info("generated new primary api key")
	}
	return info, nil
}
