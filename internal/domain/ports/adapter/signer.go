package adapter

import "rental-payments/internal/domain/model"

// MetadataSigner computes and checks the integrity tag over checkout
// metadata. Verification must always run against the stored metadata and
// stored signature, never against caller-supplied values.
type MetadataSigner interface {
	Sign(md model.PaymentMetadata) string
	Verify(md model.PaymentMetadata, signature string) bool
}
