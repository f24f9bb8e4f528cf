package queryx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	require.Equal(t, "design a scalable API", Normalize("  design   a\tscalable\nAPI "))
	require.Equal(t, "", Normalize("   \t\n"))
}

func TestFingerprint_StableAcrossWhitespace(t *testing.T) {
	a := Fingerprint("design a scalable API")
	b := Fingerprint(" design  a scalable API\n")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestFingerprint_CaseSensitive(t *testing.T) {
	require.NotEqual(t, Fingerprint("Design"), Fingerprint("design"))
}
