package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "everkeep/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseUserID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(valid), id)
	})
}

func TestIDJSONRoundTrip(t *testing.T) {
	original := NewMessageID()

	marshaled, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `"`+original.String()+`"`, string(marshaled))

	var decoded MessageID
	require.NoError(t, json.Unmarshal(marshaled, &decoded))
	assert.Equal(t, original, decoded)

	t.Run("nil UUID is rejected on unmarshal", func(t *testing.T) {
		var id UserID
		err := json.Unmarshal([]byte(`"00000000-0000-0000-0000-000000000000"`), &id)
		require.Error(t, err)
	})
}

// Parsing sits at every trust boundary, so hostile input must never slip
// through as a usable ID.
func TestParseID_RejectsHostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"path traversal", "../../../etc/passwd", true},
		{"null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"oversized input", strings.Repeat("a", 1000), true},
		{"zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"whitespace only", "   ", true},
		{"uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"lowercase valid UUID", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// Every ID type shares the same parsing rules; a type with laxer validation
// would be an enumeration or injection foothold.
func TestAllIDTypes_ConsistentParsing(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errUser := ParseUserID(validUUID)
		_, errRecipient := ParseRecipientID(validUUID)
		_, errMessage := ParseMessageID(validUUID)
		_, errLink := ParseLinkID(validUUID)
		_, errContact := ParseContactID(validUUID)
		_, errAttestation := ParseAttestationID(validUUID)

		require.NoError(t, errUser)
		require.NoError(t, errRecipient)
		require.NoError(t, errMessage)
		require.NoError(t, errLink)
		require.NoError(t, errContact)
		require.NoError(t, errAttestation)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errUser := ParseUserID(input)
			_, errRecipient := ParseRecipientID(input)
			_, errMessage := ParseMessageID(input)
			_, errLink := ParseLinkID(input)
			_, errContact := ParseContactID(input)
			_, errAttestation := ParseAttestationID(input)

			require.Error(t, errUser)
			require.Error(t, errRecipient)
			require.Error(t, errMessage)
			require.Error(t, errLink)
			require.Error(t, errContact)
			require.Error(t, errAttestation)
		})
	}
}
