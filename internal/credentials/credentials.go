package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"contact-insights-go/internal/config"
)

var ErrMissing = errors.New("credentials not configured")

// Credentials authenticate requests to the name-cleaning service.
type Credentials struct {
	APIKey string
	Secret string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.APIKey) == "" || strings.TrimSpace(c.Secret) == "" {
		return ErrMissing
	}
	return nil
}

type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static serves credentials taken from config or the environment.
type Static Credentials

func (s Static) Credentials(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	c := Credentials(s)
	if err := c.validate(); err != nil {
		return Credentials{}, fmt.Errorf("static credentials: %w", err)
	}
	return c, nil
}

// Keyring keeps the key and the secret as two items of the OS keyring.
type Keyring struct {
	Service string
	User    string
}

func (k Keyring) keyItem() string    { return k.User + "/api_key" }
func (k Keyring) secretItem() string { return k.User + "/secret" }

func (k Keyring) Credentials(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	key, err := k.get(k.keyItem())
	if err != nil {
		return Credentials{}, err
	}
	secret, err := k.get(k.secretItem())
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{APIKey: key, Secret: secret}, nil
}

func (k Keyring) get(item string) (string, error) {
	v, err := keyring.Get(k.Service, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring %s/%s: %w", k.Service, item, ErrMissing)
	}
	if err != nil {
		return "", fmt.Errorf("keyring %s/%s: %w", k.Service, item, err)
	}
	return v, nil
}

// Store saves c. If the secret cannot be written the key is removed again.
func (k Keyring) Store(c Credentials) error {
	if err := c.validate(); err != nil {
		return err
	}
	if err := keyring.Set(k.Service, k.keyItem(), c.APIKey); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	if err := keyring.Set(k.Service, k.secretItem(), c.Secret); err != nil {
		if rollbackErr := keyring.Delete(k.Service, k.keyItem()); rollbackErr != nil {
			return fmt.Errorf("store secret and rollback api key: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

// FromConfig picks the provider named by cfg.Source.
func FromConfig(cfg config.Credentials) (Provider, error) {
	switch cfg.Source {
	case "", config.CredentialsEnv:
		return Static{APIKey: cfg.APIKey, Secret: cfg.Secret}, nil
	case config.CredentialsKeyring:
		return Keyring{Service: cfg.KeyringService, User: cfg.KeyringUser}, nil
	default:
		return nil, fmt.Errorf("unsupported credentials source %q", cfg.Source)
	}
}
