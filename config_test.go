package oauthkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultAuthorizationCodeTimeout, cfg.AuthorizationCodeTimeout)
	assert.Zero(t, cfg.AccessTokenTimeout, "tokens never expire by default")
	assert.NotNil(t, cfg.Logger)
}

func TestConfigOverrides(t *testing.T) {
	cfg := Config{
		AuthorizationCodeTimeout: 5 * time.Minute,
		AccessTokenTimeout:       time.Hour,
	}.withDefaults()

	assert.Equal(t, 5*time.Minute, cfg.AuthorizationCodeTimeout)
	assert.Equal(t, time.Hour, cfg.AccessTokenTimeout)
}
