package vault

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	c := ContentHash([]byte("hello!"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestDocIDFormat(t *testing.T) {
	r := NewRegistry()
	doc, dup := r.Register("u1", []byte("bytes"), "lease.pdf", "application/pdf")
	require.False(t, dup)

	assert.Regexp(t, regexp.MustCompile(`^SEM-\d{4}-\d{6}-[A-Z2-7]{4}$`), doc.DocID)
	assert.Equal(t, 1, doc.CurrentVersion)
	assert.Equal(t, StatusActive, doc.Status)
	assert.Equal(t, IntegrityVerified, doc.Integrity)
	require.Len(t, doc.Versions, 1)
	require.Len(t, doc.CustodyLog, 1)
	assert.Equal(t, "registered", doc.CustodyLog[0].Action)
}

func TestDocIDSequenceMonotonic(t *testing.T) {
	r := NewRegistry()
	d1, _ := r.Register("u1", []byte("one"), "a.txt", "")
	d2, _ := r.Register("u1", []byte("two"), "b.txt", "")
	assert.NotEqual(t, d1.DocID, d2.DocID)
	assert.Contains(t, d1.DocID, "-000001-")
	assert.Contains(t, d2.DocID, "-000002-")
}

func TestDuplicateRegistrationReturnsSameDocument(t *testing.T) {
	r := NewRegistry()
	content := []byte("identical bytes")

	first, dup := r.Register("u1", content, "doc.pdf", "application/pdf")
	require.False(t, dup)

	second, dup := r.Register("u1", content, "doc-again.pdf", "application/pdf")
	require.True(t, dup)
	assert.Equal(t, first.DocID, second.DocID)

	require.Len(t, second.CustodyLog, 2)
	assert.Equal(t, "duplicate_upload", second.CustodyLog[1].Action)

	// Same bytes from a different user are a new document.
	third, dup := r.Register("u2", content, "doc.pdf", "application/pdf")
	require.False(t, dup)
	assert.NotEqual(t, first.DocID, third.DocID)
}

func TestRegisterTwiceEqualsRegisterPlusCustody(t *testing.T) {
	// register(bytes); register(bytes) == register(bytes); custody.append(duplicate)
	r1 := NewRegistry()
	r1.Register("u", []byte("b"), "f", "")
	afterTwo, _ := r1.Register("u", []byte("b"), "f", "")

	r2 := NewRegistry()
	once, _ := r2.Register("u", []byte("b"), "f", "")
	r2.AppendCustody(once.DocID, "duplicate_upload", "u", nil)
	reference, _ := r2.Get(once.DocID)

	assert.Equal(t, len(reference.CustodyLog), len(afterTwo.CustodyLog))
	assert.Equal(t, reference.ContentHash, afterTwo.ContentHash)
}

func TestVerifyIntegrity(t *testing.T) {
	r := NewRegistry()
	content := []byte("original")
	doc, _ := r.Register("u1", content, "f.txt", "")

	assert.Equal(t, IntegrityVerified, r.VerifyIntegrity(doc.DocID, content))

	state := r.VerifyIntegrity(doc.DocID, []byte("altered"))
	assert.Equal(t, IntegrityTampered, state)

	flagged, _ := r.Get(doc.DocID)
	assert.Equal(t, IntegrityTampered, flagged.Integrity)
	last := flagged.CustodyLog[len(flagged.CustodyLog)-1]
	assert.Equal(t, "integrity_violation", last.Action)
}

func TestCallersGetCopies(t *testing.T) {
	r := NewRegistry()
	doc, _ := r.Register("u1", []byte("b"), "f.txt", "")

	doc.Status = "mangled"
	doc.CustodyLog[0].Action = "mangled"

	fresh, _ := r.Get(doc.DocID)
	assert.Equal(t, StatusActive, fresh.Status)
}
