package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koursa_back_end/internal/models"
)

func TestParseLegacy(t *testing.T) {
	ref, err := ParseLegacy("stripe:pi_abc123")
	require.NoError(t, err)
	assert.Equal(t, Ref{Provider: "stripe", ID: "pi_abc123"}, ref)

	// L'identifiant peut lui-même contenir un deux-points : seule la
	// première occurrence sépare
	ref, err = ParseLegacy("adyen:psp:ref:42")
	require.NoError(t, err)
	assert.Equal(t, "adyen", ref.Provider)
	assert.Equal(t, "psp:ref:42", ref.ID)
}

func TestParseLegacyRejectsMalformed(t *testing.T) {
	for _, field := range []string{"", "pi_abc123", ":pi_abc123", "stripe:"} {
		_, err := ParseLegacy(field)
		assert.Error(t, err, "champ %q", field)
	}
}

func TestResolveTripRefPrefersCanonical(t *testing.T) {
	trip := &models.Trip{
		PaymentRef:         "pi_canonical",
		LegacyPaymentField: "stripe:pi_legacy",
	}

	ref, err := ResolveTripRef(trip)
	require.NoError(t, err)
	assert.Equal(t, "pi_canonical", ref.ID)
	assert.Equal(t, DefaultProvider, ref.Provider)
}

func TestResolveTripRefFallsBackToLegacy(t *testing.T) {
	trip := &models.Trip{LegacyPaymentField: "stripe:pi_legacy"}

	ref, err := ResolveTripRef(trip)
	require.NoError(t, err)
	assert.Equal(t, "pi_legacy", ref.ID)
}

func TestResolveTripRefNoRef(t *testing.T) {
	_, err := ResolveTripRef(&models.Trip{})
	assert.ErrorIs(t, err, ErrNoPaymentRef)
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "stripe:pi_abc", Ref{Provider: "stripe", ID: "pi_abc"}.String())
}
