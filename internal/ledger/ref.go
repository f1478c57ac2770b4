package ledger

import (
	"errors"
	"fmt"
	"strings"

	"koursa_back_end/internal/models"
)

// Provider par défaut pour les références stockées dans le champ canonique
const DefaultProvider = "stripe"

var ErrNoPaymentRef = errors.New("aucune référence de paiement sur la course")

// Ref est la référence canonique d'autorisation. Toute la logique du ledger
// ne manipule que ce type : les deux encodages historiques (champ direct
// payment_ref vs champ composite "provider:id") sont normalisés ici, à la
// frontière, et nulle part ailleurs.
type Ref struct {
	Provider string
	ID       string
}

func (r Ref) String() string {
	return r.Provider + ":" + r.ID
}

// ParseLegacy décode l'ancien champ composite "provider:id" encore présent
// sur les courses créées par les vieilles versions de l'app
func ParseLegacy(field string) (Ref, error) {
	provider, id, found := strings.Cut(field, ":")
	if !found || provider == "" || id == "" {
		return Ref{}, fmt.Errorf("champ de paiement legacy illisible: %q", field)
	}
	return Ref{Provider: provider, ID: id}, nil
}

// ResolveTripRef lit la référence depuis le champ canonique de la course,
// et retombe sur le champ legacy si le canonique est absent
func ResolveTripRef(t *models.Trip) (Ref, error) {
	if t.PaymentRef != "" {
		return Ref{Provider: DefaultProvider, ID: t.PaymentRef}, nil
	}
	if t.LegacyPaymentField != "" {
		return ParseLegacy(t.LegacyPaymentField)
	}
	return Ref{}, ErrNoPaymentRef
}
