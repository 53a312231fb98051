package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkattest/pkg/types"
)

func TestValidateAppConfig_Valid(t *testing.T) {
	require.NoError(t, ValidateAppConfig(nil))
	require.NoError(t, ValidateAppConfig(&types.AppConfig{
		Environment: types.StringPtr("dev"),
		Prover: &types.UserProverConfig{
			Workers:      types.IntPtr(2),
			ProveTimeout: types.StringPtr("2m"),
			Backends:     []string{"groth16-v1", "plonk-v1"},
		},
		Cache: &types.UserCacheConfig{Persistence: types.StringPtr("redis")},
		API:   &types.UserAPIConfig{WaitTimeout: types.StringPtr("30s")},
	}))
}

func TestValidateAppConfig_CollectsAllErrors(t *testing.T) {
	factor := 0.5
	err := ValidateAppConfig(&types.AppConfig{
		Environment: types.StringPtr("staging"),
		Prover: &types.UserProverConfig{
			Workers:       types.IntPtr(-1),
			ProveTimeout:  types.StringPtr("5 minutes"),
			BackoffFactor: &factor,
			Backends:      []string{"groth16-v1", "groth16-v1", ""},
		},
		Cache: &types.UserCacheConfig{Persistence: types.StringPtr("disk")},
		API:   &types.UserAPIConfig{HTTPAddr: types.StringPtr(" ")},
	})
	require.Error(t, err)

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]bool{}
	for _, e := range verrs.Errors {
		fields[e.(*ValidationError).Field] = true
	}
	for _, f := range []string{
		"environment", "prover.workers", "prover.prove_timeout",
		"prover.backoff_factor", "prover.backends", "cache.persistence", "api.http_addr",
	} {
		require.True(t, fields[f], f)
	}
}
