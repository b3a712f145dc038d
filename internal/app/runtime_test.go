package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-stock/internal/testing/guard"
)

func TestTestModeFlag(t *testing.T) {
	require.True(t, InTestMode())

	for value, want := range map[string]bool{"0": false, "": false, "true": true, "yes": false, "1": true} {
		t.Setenv(testModeEnv, value)
		require.Equal(t, want, InTestMode(), value)
	}
}
