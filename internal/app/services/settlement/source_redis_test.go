package settlement

import (
	"testing"

	"github.com/vibestream/fanventures/internal/app/domain/payment"
)

func TestDecodeOutcomeCompleted(t *testing.T) {
	raw := []byte(`{
		"type": "payment.completed",
		"payment_reference": "pay-1",
		"amount": "150.50",
		"purpose": {"investment_id": "inv-1", "venture_id": "venture-1"}
	}`)

	out, err := decodeOutcome(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	done, ok := out.(payment.Completed)
	if !ok {
		t.Fatalf("expected Completed, got %T", out)
	}
	if done.Ref != "pay-1" {
		t.Fatalf("unexpected ref: %s", done.Ref)
	}
	if done.Purpose.InvestmentID != "inv-1" || done.Purpose.VentureID != "venture-1" {
		t.Fatalf("unexpected purpose: %+v", done.Purpose)
	}
	if done.Amount.String() != "150.5" {
		t.Fatalf("unexpected amount: %s", done.Amount)
	}
}

func TestDecodeOutcomeFailed(t *testing.T) {
	raw := []byte(`{
		"type": "payment.failed",
		"payment_reference": "pay-2",
		"reason": "card declined",
		"purpose": {"investment_id": "inv-2", "venture_id": "venture-1"}
	}`)

	out, err := decodeOutcome(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fail, ok := out.(payment.Failed)
	if !ok {
		t.Fatalf("expected Failed, got %T", out)
	}
	if fail.Reason != "card declined" {
		t.Fatalf("unexpected reason: %s", fail.Reason)
	}
}

func TestDecodeOutcomeRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"unknown type": `{"type": "payment.refunded", "purpose": {"investment_id": "i"}}`,
		"missing id":   `{"type": "payment.completed", "purpose": {}}`,
		"bad amount":   `{"type": "payment.completed", "amount": "abc", "purpose": {"investment_id": "i"}}`,
	}
	for name, raw := range cases {
		if _, err := decodeOutcome([]byte(raw)); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}
