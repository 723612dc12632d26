package manuals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ValidatesCleanly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AssetsDir = "./assets"
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsMissingAssetsDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AssetsDir = ""
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeConfidenceThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 1.5
	require.Error(t, cfg.Validate())
}
