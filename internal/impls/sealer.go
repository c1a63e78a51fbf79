package impls

// Sealer encrypts credential material at rest. Seal must use a fresh
// nonce per call; Open must fail on a wrong key rather than return
// corrupted plaintext.
type Sealer interface {
	Seal(plaintext string) ([]byte, error)
	Open(sealed []byte) (string, error)
}
