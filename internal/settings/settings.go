// Package settings provides the endpoint settings collaborator for the IPFS client.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	"github.com/starford/pinpress/internal/apperr"
	"github.com/starford/pinpress/internal/ipfs"
	"github.com/starford/pinpress/internal/storage"
)

// Key is the KV slot holding user settings.
const Key = "settings"

// Validate checks that any non-empty field is an absolute http(s) URL.
func Validate(s ipfs.Settings) error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.APIEndpoint, is.URL, validation.By(httpScheme)),
		validation.Field(&s.Gateway, is.URL, validation.By(httpScheme)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
	}
	return nil
}

func httpScheme(v any) error {
	s, _ := v.(string)
	if s == "" || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return nil
	}
	return fmt.Errorf("must start with http:// or https://")
}

// Static always returns the same settings.
type Static ipfs.Settings

func (s Static) Settings(context.Context) (ipfs.Settings, error) {
	return ipfs.Settings(s), nil
}

// KV stores settings as a JSON document in a storage.KV slot.
type KV struct {
	kv storage.KV
}

// NewKV returns a settings provider backed by kv.
func NewKV(kv storage.KV) *KV {
	return &KV{kv: kv}
}

// Settings reads the stored document. A slot that was never written yields
// empty settings.
func (k *KV) Settings(ctx context.Context) (ipfs.Settings, error) {
	raw, ok, err := k.kv.Get(ctx, Key)
	if err != nil {
		return ipfs.Settings{}, fmt.Errorf("settings: %w: %w", apperr.ErrStorage, err)
	}
	if !ok {
		return ipfs.Settings{}, nil
	}
	var s ipfs.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return ipfs.Settings{}, fmt.Errorf("settings: %w: decode: %w", apperr.ErrStorage, err)
	}
	return s, nil
}

// Save validates and stores s, replacing the previous document.
func (k *KV) Save(ctx context.Context, s ipfs.Settings) error {
	s.APIEndpoint = strings.TrimSpace(s.APIEndpoint)
	s.Gateway = strings.TrimSpace(s.Gateway)
	if err := Validate(s); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := k.kv.Set(ctx, Key, raw); err != nil {
		return fmt.Errorf("settings: %w: %w", apperr.ErrStorage, err)
	}
	return nil
}

// File reads settings from a YAML file on every call. A missing file yields
// empty settings.
type File struct {
	path string
}

// NewFile returns a provider reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Settings parses the file with ${ENV} expansion.
func (f *File) Settings(context.Context) (ipfs.Settings, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ipfs.Settings{}, nil
		}
		return ipfs.Settings{}, fmt.Errorf("settings: read %s: %w", f.path, err)
	}
	var s ipfs.Settings
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &s); err != nil {
		return ipfs.Settings{}, fmt.Errorf("settings: parse %s: %w", f.path, err)
	}
	return s, nil
}
