package evaluator

import (
	"os"
	"path/filepath"
	"testing"

	"wisefido-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdTable_BoundsFor(t *testing.T) {
	table := NewThresholdTable(DefaultThresholdBands())

	band, ok := table.BoundsFor(models.ParamHeartRate)
	require.True(t, ok)
	assert.Equal(t, 50.0, *band.WarningLow)
	assert.Equal(t, 110.0, *band.WarningHigh)
	assert.Equal(t, 40.0, *band.CriticalLow)
	assert.Equal(t, 140.0, *band.CriticalHigh)

	band, ok = table.BoundsFor(models.ParamSpO2)
	require.True(t, ok)
	assert.Equal(t, 92.0, *band.WarningLow)
	assert.Nil(t, band.WarningHigh)
	assert.Equal(t, 88.0, *band.CriticalLow)
	assert.Nil(t, band.CriticalHigh)

	_, ok = table.BoundsFor(models.ParamPainScore)
	assert.False(t, ok)
	_, ok = table.BoundsFor("unknown")
	assert.False(t, ok)
}

func TestThresholdTable_Immutable(t *testing.T) {
	bands := DefaultThresholdBands()
	table := NewThresholdTable(bands)

	// 修改入参不影响表
	*bands[models.ParamHeartRate].WarningHigh = 999
	delete(bands, models.ParamSpO2)

	band, ok := table.BoundsFor(models.ParamHeartRate)
	require.True(t, ok)
	assert.Equal(t, 110.0, *band.WarningHigh)
	_, ok = table.BoundsFor(models.ParamSpO2)
	assert.True(t, ok)

	// 修改返回值也不影响表
	*band.WarningHigh = 1
	again, _ := table.BoundsFor(models.ParamHeartRate)
	assert.Equal(t, 110.0, *again.WarningHigh)
}

func TestThresholdTable_Parameters(t *testing.T) {
	bands := DefaultThresholdBands()
	bands["etco2"] = models.ThresholdBand{WarningHigh: ptr(45)}
	bands["blood_glucose"] = models.ThresholdBand{WarningLow: ptr(4)}
	table := NewThresholdTable(bands)

	want := []string{
		models.ParamHeartRate,
		models.ParamSystolicBP,
		models.ParamDiastolicBP,
		models.ParamSpO2,
		models.ParamTemperature,
		models.ParamRespiratoryRate,
		models.ParamGCS,
		"blood_glucose",
		"etco2",
	}
	assert.Equal(t, want, table.Parameters())
	assert.Equal(t, want, table.Parameters())
}

func TestLoadThresholdBands(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		bands, err := LoadThresholdBands("")
		require.NoError(t, err)
		assert.Equal(t, DefaultThresholdBands(), bands)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "thresholds.yaml")
		content := `
thresholds:
  heart_rate:
    warning_low: 55
    warning_high: 105
    critical_low: 45
    critical_high: 130
  pain_score:
    warning_high: 6
    critical_high: 8
  gcs: null
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		bands, err := LoadThresholdBands(path)
		require.NoError(t, err)

		hr := bands[models.ParamHeartRate]
		assert.Equal(t, 55.0, *hr.WarningLow)
		assert.Equal(t, 130.0, *hr.CriticalHigh)

		pain, ok := bands[models.ParamPainScore]
		require.True(t, ok)
		assert.Nil(t, pain.WarningLow)
		assert.Equal(t, 6.0, *pain.WarningHigh)

		_, ok = bands[models.ParamGCS]
		assert.False(t, ok)

		// 未出现在文件中的参数保持默认
		assert.Equal(t, DefaultThresholdBands()[models.ParamSpO2], bands[models.ParamSpO2])
	})

	t.Run("inconsistent band", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "thresholds.yaml")
		content := `
thresholds:
  heart_rate:
    warning_high: 110
    critical_high: 100
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := LoadThresholdBands(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadThresholdBands(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
