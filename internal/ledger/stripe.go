package ledger

import (
	"context"
	"log"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
)

// StripeProcessor implémente Processor avec des PaymentIntents en capture
// manuelle : autoriser = créer l'intent, capturer = Capture, libérer = Cancel
type StripeProcessor struct{}

func NewStripeProcessor() *StripeProcessor {
	return &StripeProcessor{}
}

func (p *StripeProcessor) Authorize(ctx context.Context, amount float64, currency string, metadata map[string]string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(amount * 100)),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: metadata,
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		log.Println("❌ Erreur Stripe (authorize):", err)
		return "", err
	}

	log.Printf("💳 Autorisation Stripe créée : %s (%.2f %s)", intent.ID, amount, currency)
	return intent.ID, nil
}

func (p *StripeProcessor) Capture(ctx context.Context, ref string, amount float64) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(int64(amount * 100)),
	}
	params.Context = ctx

	if _, err := paymentintent.Capture(ref, params); err != nil {
		log.Printf("❌ Erreur Stripe (capture %s): %v", ref, err)
		return err
	}

	log.Printf("💰 Capture Stripe : %s (%.2f)", ref, amount)
	return nil
}

func (p *StripeProcessor) Cancel(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := paymentintent.Cancel(ref, params); err != nil {
		log.Printf("❌ Erreur Stripe (cancel %s): %v", ref, err)
		return err
	}

	log.Printf("🔓 Autorisation Stripe libérée : %s", ref)
	return nil
}

func (p *StripeProcessor) Refund(ctx context.Context, ref string, amount float64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
		Amount:        stripe.Int64(int64(amount * 100)),
		Reason:        stripe.String("requested_by_customer"),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		log.Printf("❌ Erreur Stripe (refund %s): %v", ref, err)
		return "", err
	}

	log.Printf("💸 Remboursement Stripe : %s (%.2f) → %s", ref, amount, r.ID)
	return r.ID, nil
}
