package badger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	configtypes "github.com/weisyn/zkattest/pkg/types"
)

func TestFromUserConfig(t *testing.T) {
	def := FromUserConfig(nil)
	require.Equal(t, Defaults(), def)
	require.True(t, filepath.IsAbs(def.Path))
	require.False(t, def.SyncWrites)
	require.True(t, def.AutoCompaction)

	root := t.TempDir()
	sync := true
	opts := FromUserConfig(&configtypes.UserStorageConfig{DataRoot: &root, SyncWrites: &sync})
	require.Equal(t, filepath.Join(root, "badger"), opts.Path)
	require.True(t, opts.SyncWrites)
	require.EqualValues(t, 64<<20, opts.MemTableSize)
}
