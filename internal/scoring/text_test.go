package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "evacuation", Normalize("Évacuation"))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, "cafe", Normalize("café"))
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The river is FLOODING near 5th Street, and the bridge's down!")
	assert.Equal(t, []string{"river", "flooding", "near", "5th", "street", "bridge", "s", "down"}, got)
	assert.Empty(t, Tokenize("  the  and  "))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine("Wildfire spreading", "wildfire SPREADING"), 1e-12)
	assert.Zero(t, Cosine("wildfire", "earthquake"))
	assert.Zero(t, Cosine("", "earthquake"))
	assert.Zero(t, Cosine("the", "the"), "stop words only")

	// {flood:1, road:1} vs {flood:1}: 1/sqrt(2).
	assert.InDelta(t, 0.70710678, Cosine("flood road", "flood"), 1e-6)
}

func TestCosine_Symmetric(t *testing.T) {
	a := "Chemical spill in industrial zone near the port"
	b := "industrial chemical leak reported"
	assert.Equal(t, Cosine(a, b), Cosine(b, a))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, clamp(1.0000001))
	assert.Equal(t, 0.0, clamp(-0.2))
	assert.Equal(t, 0.5, clamp(0.5))
}
