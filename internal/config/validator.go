package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the project's validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration accepts Go duration strings with a positive value.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate checks struct tags plus cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateJWTKeys(); err != nil {
		return err
	}
	return c.validateProviders()
}

// validateJWTKeys rejects duplicate kids: the registry must resolve
// each kid to exactly one verification key.
func (c *Config) validateJWTKeys() error {
	seen := make(map[string]struct{}, len(c.Auth.JWT.Keys))
	for _, key := range c.Auth.JWT.Keys {
		if _, dup := seen[key.KID]; dup {
			return fmt.Errorf("auth.jwt.keys: duplicate kid %q", key.KID)
		}
		seen[key.KID] = struct{}{}
	}
	return nil
}

// validateProviders warns about a chain with no usable provider by
// failing fast: a gateway with neither provider configured can still
// run (the local fallback answers), but an explicit primary pointing
// at an unconfigured provider is almost certainly a deployment mistake.
func (c *Config) validateProviders() error {
	switch c.Providers.Primary {
	case "openrouter":
		if c.Providers.OpenRouter.BaseURL != "" && c.Providers.OpenRouter.APIKey == "" {
			return errors.New("providers.openrouter: base_url set but api_key missing")
		}
	case "local-inference":
		if c.Providers.LocalInference.Endpoint == "" && c.Providers.OpenRouter.BaseURL != "" {
			return errors.New("providers: primary is local-inference but only openrouter is configured")
		}
	}
	return nil
}

// formatValidationErrors converts validator errors into actionable
// messages keyed by the config path.
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace "Config.Server.HTTPAddr" -> "server.http_addr"-ish;
		// the struct path alone is already actionable.
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", path))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", path, fe.Param()))
		case "duration":
			msgs = append(msgs, fmt.Sprintf("%s must be a positive duration like \"30s\"", path))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", path, fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", path, fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", path, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", path, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
