package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerCmd_RequiresSecretsPassphrase(t *testing.T) {
	t.Run("refuses to start without a passphrase", func(t *testing.T) {
		cmd := &ServerCmd{
			StoreType: "memory",
		}

		err := cmd.Run(&Globals{Version: "test"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "secrets passphrase is required")
	})

	t.Run("passphrase clears the startup check", func(t *testing.T) {
		cmd := &ServerCmd{
			StoreType:         "memory",
			SecretsPassphrase: "k1",
			AuthPublicKeyFile: filepath.Join(t.TempDir(), "missing.pem"),
		}

		// Startup proceeds past the codec check and fails on the next
		// configuration step instead.
		err := cmd.Run(&Globals{Version: "test"})
		require.Error(t, err)
		require.NotContains(t, err.Error(), "secrets passphrase")
		require.Contains(t, err.Error(), "auth public key")
	})
}
