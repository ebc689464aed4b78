package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/HCTech2/GOLD-HFT/config"
)

// Credentials holds the venue access secrets stored in Vault.
type Credentials struct {
	Token     string `json:"token"`
	BaseURL   string `json:"base_url"`
	StreamURL string `json:"stream_url"`
}

// Client wraps the HashiCorp Vault client. When Vault is disabled the client
// serves credentials from configuration, so development setups need no
// running Vault.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// VenueCredentials retrieves the venue secrets. Results are cached for the
// process lifetime; venue tokens rotate on restart, not mid-session.
func (c *Client) VenueCredentials(ctx context.Context, fallback config.VenueConfig) (Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		creds := Credentials{
			Token:     fallback.Token,
			BaseURL:   fallback.BaseURL,
			StreamURL: fallback.StreamURL,
		}
		c.store(creds)
		return creds, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read venue credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("no venue credentials at %s", path)
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := Credentials{
		Token:     stringField(data, "token"),
		BaseURL:   stringField(data, "base_url"),
		StreamURL: stringField(data, "stream_url"),
	}
	if creds.Token == "" {
		return Credentials{}, fmt.Errorf("venue credentials at %s carry no token", path)
	}
	if creds.BaseURL == "" {
		creds.BaseURL = fallback.BaseURL
	}
	if creds.StreamURL == "" {
		creds.StreamURL = fallback.StreamURL
	}

	c.store(creds)
	return creds, nil
}

// StoreVenueCredentials writes venue secrets to Vault.
func (c *Client) StoreVenueCredentials(ctx context.Context, creds Credentials) error {
	if !c.config.Enabled {
		c.store(creds)
		return nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"token":      creds.Token,
			"base_url":   creds.BaseURL,
			"stream_url": creds.StreamURL,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		return fmt.Errorf("failed to store venue credentials in vault: %w", err)
	}

	c.store(creds)
	return nil
}

// HealthCheck verifies Vault connectivity. Disabled mode is always healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) store(creds Credentials) {
	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
