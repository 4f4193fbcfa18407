package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	d := NewDetector([]string{"en", "de", "NB", "xx"})
	assert.True(t, d.Enabled())

	assert.Equal(t, "en", d.Detect("The weather is lovely today and we are going for a long walk in the park."))
	assert.Equal(t, "de", d.Detect("Das Wetter ist heute wunderbar und wir machen einen langen Spaziergang im Park."))
	assert.Equal(t, "", d.Detect("   "))
}

func TestDisabled(t *testing.T) {
	for _, codes := range [][]string{nil, {"en"}, {"en", "xx"}} {
		d := NewDetector(codes)
		assert.False(t, d.Enabled())
		assert.Equal(t, "", d.Detect("The weather is lovely today."))
	}

	var nilDetector *Detector
	assert.Equal(t, "", nilDetector.Detect("The weather is lovely today."))
}

func TestIsoToLingua(t *testing.T) {
	supported := supportedLanguages()

	lang, ok := isoToLingua("nb", supported)
	assert.True(t, ok)
	assert.Equal(t, "nb", supported[lang])

	_, ok = isoToLingua("xx", supported)
	assert.False(t, ok)
}
