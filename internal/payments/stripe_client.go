package payments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/zap"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Environment   string
	Timeout       time.Duration
}

// StripeClient holds the process-wide Stripe settings. It is created once at
// startup and handed to the gateway and the webhook verifier.
type StripeClient struct {
	environment   string
	signingSecret string
	timeout       time.Duration
}

func NewStripeClient(cfg StripeConfig, log *zap.Logger) (*StripeClient, error) {
	env, err := normalizeEnv(cfg.Environment)
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	log.Info("stripe client initialized", zap.String("env", env), zap.Duration("timeout", timeout))

	return &StripeClient{
		environment:   env,
		signingSecret: signingSecret,
		timeout:       timeout,
	}, nil
}

func (c *StripeClient) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *StripeClient) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func (c *StripeClient) Timeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.timeout
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
