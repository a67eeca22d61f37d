package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "everkeep/pkg/domain-errors"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	codec, err := NewCodec(key)
	require.NoError(t, err)
	return codec
}

func TestNewCodec_RejectsBadKeys(t *testing.T) {
	_, err := NewCodec([]byte("short"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = NewCodecFromBase64("not base64!!!")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	// Includes the base64 alphabet, padding characters, separators, and
	// non-ASCII content so no internal encoding choice can break on them.
	plaintexts := []string{
		"goodbye, world",
		"contains.dots.and=padding==chars//",
		"multi\nline\ncontent with spaces",
		"emoji 💌 and ünïcode",
		"x",
		"a very long message " + string(make([]byte, 4096)),
	}

	for _, plaintext := range plaintexts {
		ciphertext, keyMaterial, err := codec.Seal(plaintext)
		require.NoError(t, err)
		require.NotEmpty(t, ciphertext)
		require.NotEmpty(t, keyMaterial)
		assert.NotContains(t, ciphertext, plaintext)

		opened, err := codec.Open(ciphertext, keyMaterial)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSeal_FreshKeyPerMessage(t *testing.T) {
	codec := newTestCodec(t)

	ct1, km1, err := codec.Seal("same content")
	require.NoError(t, err)
	ct2, km2, err := codec.Seal("same content")
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2)
	assert.NotEqual(t, km1, km2)

	// Key material from one message must not open another message.
	_, err = codec.Open(ct1, km2)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func TestOpen_DetectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	ciphertext, keyMaterial, err := codec.Seal("the will is in the drawer")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)

	// Flip one bit at every position; each mutation must fail closed.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := codec.Open(base64.StdEncoding.EncodeToString(mutated), keyMaterial)
		require.Errorf(t, err, "bit flip at byte %d went undetected", i)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
	}
}

func TestOpen_DetectsKeyMaterialTampering(t *testing.T) {
	codec := newTestCodec(t)
	ciphertext, keyMaterial, err := codec.Seal("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(keyMaterial)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF

	_, err = codec.Open(ciphertext, base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func TestOpen_RejectsGarbageInputs(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Open("%%% not base64", "also not base64")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))

	_, err = codec.Open(base64.StdEncoding.EncodeToString([]byte("tiny")),
		base64.StdEncoding.EncodeToString([]byte("tiny")))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func TestGenerateMasterKey(t *testing.T) {
	encoded, err := GenerateMasterKey()
	require.NoError(t, err)

	codec, err := NewCodecFromBase64(encoded)
	require.NoError(t, err)

	ct, km, err := codec.Seal("works end to end")
	require.NoError(t, err)
	opened, err := codec.Open(ct, km)
	require.NoError(t, err)
	assert.Equal(t, "works end to end", opened)
}
