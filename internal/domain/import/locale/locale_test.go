package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Run("spanish statement", func(t *testing.T) {
		loc := Detect([]string{"1.234,56", "-38,69", "24,00", "1.000,00", "5.678,90"})
		assert.Equal(t, ',', int32(loc.DecimalSep))
		assert.Equal(t, '.', int32(loc.ThousandSep))
		assert.True(t, loc.IsEuropean())
		assert.Equal(t, "EU", loc.Family())
		assert.Greater(t, loc.Confidence, 0.6)
	})

	t.Run("anglo statement", func(t *testing.T) {
		loc := Detect([]string{"1,234.56", "-38.69", "24.00", "1,000.00"})
		assert.Equal(t, '.', int32(loc.DecimalSep))
		assert.Equal(t, ',', int32(loc.ThousandSep))
		assert.False(t, loc.IsEuropean())
		assert.Equal(t, "EN", loc.Family())
	})

	t.Run("space grouping reads as european", func(t *testing.T) {
		loc := Detect([]string{"1 234,56", "10 000,00", "-38,69"})
		assert.True(t, loc.IsEuropean())
	})

	t.Run("no evidence falls back to spanish default", func(t *testing.T) {
		loc := Detect([]string{"1000", "250", "42"})
		def := DefaultSpanish()
		assert.Equal(t, def.DecimalSep, loc.DecimalSep)
		assert.Equal(t, def.ThousandSep, loc.ThousandSep)
		assert.InDelta(t, 0.6, loc.Confidence, 0.0001)
	})

	t.Run("empty input falls back to spanish default", func(t *testing.T) {
		loc := Detect(nil)
		assert.True(t, loc.IsEuropean())
	})

	t.Run("confidence capped", func(t *testing.T) {
		samples := make([]string, 0, 50)
		for i := 0; i < 50; i++ {
			samples = append(samples, "1.234,56")
		}
		loc := Detect(samples)
		assert.LessOrEqual(t, loc.Confidence, 0.95)
	})
}
