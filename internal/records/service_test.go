package records

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTypeFor(t *testing.T) {
	assert.Equal(t, "PDF", FileTypeFor("statement.pdf"))
	assert.Equal(t, "PDF", FileTypeFor("STATEMENT.PDF"))
	assert.Equal(t, "Excel", FileTypeFor("ledger.xlsx"))
	assert.Equal(t, "Excel", FileTypeFor("legacy.xls"))
	assert.Equal(t, "CSV", FileTypeFor("transactions.csv"))
	assert.Equal(t, "CSV", FileTypeFor("export.txt"))
	assert.Equal(t, "CSV", FileTypeFor("noextension"))
}

func TestParseFlagID(t *testing.T) {
	recordID := uuid.New()

	kind, index, err := parseFlagID(recordID, recordID.String()+"-anomaly-0")
	require.NoError(t, err)
	assert.Equal(t, "anomaly", kind)
	assert.Equal(t, 0, index)

	kind, index, err = parseFlagID(recordID, recordID.String()+"-compliance-3")
	require.NoError(t, err)
	assert.Equal(t, "compliance", kind)
	assert.Equal(t, 3, index)
}

func TestParseFlagIDRejectsMalformed(t *testing.T) {
	recordID := uuid.New()

	cases := []string{
		"",
		"anomaly-0",
		uuid.New().String() + "-anomaly-0", // wrong record
		recordID.String() + "-anomaly",
		recordID.String() + "-anomaly-x",
		recordID.String() + "-anomaly--1",
		recordID.String() + "-finding-0",
	}

	for _, flagID := range cases {
		_, _, err := parseFlagID(recordID, flagID)
		assert.ErrorIs(t, err, ErrInvalidFlagID, flagID)
	}
}
