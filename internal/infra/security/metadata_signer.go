// File: internal/infra/security/metadata_signer.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"rental-payments/internal/domain/model"
)

// MetadataSigner computes and checks the keyed integrity tag over checkout
// metadata. The tag is HMAC-SHA256 over a canonical serialization with a
// fixed field order, so signing and verifying logically-identical metadata
// always agree.
type MetadataSigner struct {
	secret []byte
}

func NewMetadataSigner(secret string) (*MetadataSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("signing secret must be at least 16 bytes")
	}
	return &MetadataSigner{secret: []byte(secret)}, nil
}

// canonical serializes metadata with a fixed field order. Amount is rendered
// with two decimals so 500 and 500.00 sign identically.
func canonical(md model.PaymentMetadata) string {
	var b strings.Builder
	b.WriteString("v1|")
	b.WriteString(string(md.Type))
	b.WriteByte('|')
	b.WriteString(md.SubjectID)
	b.WriteByte('|')
	b.WriteString(md.PlanType)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(md.Credits, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(md.Amount, 'f', 2, 64))
	b.WriteByte('|')
	b.WriteString(md.Email)
	return b.String()
}

func (s *MetadataSigner) Sign(md model.PaymentMetadata) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(md)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a stored signature against stored metadata in constant time.
func (s *MetadataSigner) Verify(md model.PaymentMetadata, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(md)))
	return hmac.Equal(mac.Sum(nil), want)
}
