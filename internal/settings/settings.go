// Package settings resolves installation-wide wallet settings once at process start.
package settings

import (
	"context"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/config"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/wallet"
)

// Keys in the global settings table.
const (
	KeySalt        = "update_check_id"
	KeyIssuerID    = "googlepaypasses_issuer_id"
	KeyCredentials = "googlepaypasses_credentials"
	KeyMapsAPIKey  = "googlepaypasses_maps_api_key"
)

// Store is the host's global key/value settings table.
type Store interface {
	GetGlobalSetting(ctx context.Context, key string) (string, bool, error)
	SetGlobalSetting(ctx context.Context, key, value string) error
	// InsertGlobalSettingIfAbsent stores value unless key is set and returns whatever
	// is stored afterwards.
	InsertGlobalSettingIfAbsent(ctx context.Context, key, value string) (string, error)
}

// Installation is immutable after Resolve.
type Installation struct {
	Salt        string
	IssuerID    string
	Credentials []byte
	MapsAPIKey  string
}

func (i *Installation) Namespace() wallet.Namespace {
	return wallet.Namespace{IssuerID: i.IssuerID, Salt: i.Salt}
}

// Configured reports whether wallet passes can be issued at all.
func (i *Installation) Configured() bool {
	return i.IssuerID != "" && len(i.Credentials) > 0
}

// Resolve reads the installation settings. Environment values take precedence over
// the settings table. The salt is created on first use.
func Resolve(ctx context.Context, store Store, cfg *config.Config) (*Installation, error) {
	salt, err := store.InsertGlobalSettingIfAbsent(ctx, KeySalt, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		return nil, errors.Wrap(err, "resolve installation salt")
	}
	inst := &Installation{Salt: salt}

	if inst.IssuerID, err = resolve(ctx, store, KeyIssuerID, cfg.IssuerID); err != nil {
		return nil, err
	}
	if inst.MapsAPIKey, err = resolve(ctx, store, KeyMapsAPIKey, cfg.MapsAPIKey); err != nil {
		return nil, err
	}

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		stored, err := resolve(ctx, store, KeyCredentials, "")
		if err != nil {
			return nil, err
		}
		if stored != "" {
			creds = []byte(stored)
		}
	}
	inst.Credentials = creds
	return inst, nil
}

func resolve(ctx context.Context, store Store, key, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	v, _, err := store.GetGlobalSetting(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "read setting %s", key)
	}
	return v, nil
}

// Values is the operator-editable part of the settings. Empty fields are left untouched
// by Save.
type Values struct {
	IssuerID    string
	Credentials []byte
	MapsAPIKey  string
}

// Save validates and stores values. Credentials that do not parse as a service account
// are rejected before anything is written.
func Save(ctx context.Context, store Store, v Values) error {
	if v.IssuerID != "" && strings.IndexFunc(v.IssuerID, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "issuer id %q must be numeric", v.IssuerID)
	}
	if len(v.Credentials) > 0 {
		if _, err := wallet.ParseCredentials(v.Credentials); err != nil {
			return errors.Wrap(err, "validate credentials")
		}
	}

	pending := []struct{ key, value string }{
		{KeyIssuerID, v.IssuerID},
		{KeyCredentials, string(v.Credentials)},
		{KeyMapsAPIKey, v.MapsAPIKey},
	}
	for _, p := range pending {
		if p.value == "" {
			continue
		}
		if err := store.SetGlobalSetting(ctx, p.key, p.value); err != nil {
			return errors.Wrapf(err, "store setting %s", p.key)
		}
	}
	return nil
}
