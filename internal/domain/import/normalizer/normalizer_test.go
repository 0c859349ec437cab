package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripDiacritics(t *testing.T) {
	assert.Equal(t, "TRANSFERENCIA", StripDiacritics("TRANSFERENCIA"))
	assert.Equal(t, "nomina", StripDiacritics("nómina"))
	assert.Equal(t, "Alquiler Malaga", StripDiacritics("Alquiler Málaga"))
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Fecha Operación", "fecha operacion"},
		{"  IMPORTE (EUR) ", "importe"},
		{"Saldo", "saldo"},
		{"F. Valor", "f. valor"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeHeader(tc.in), tc.in)
	}
}

func TestNormalizeForHash(t *testing.T) {
	// Casing, accents, punctuation and whitespace all collapse to the same key.
	a := NormalizeForHash("  TRANSFERENCIA A: García, S.L. ")
	b := NormalizeForHash("transferencia a garcia s.l.")
	assert.Equal(t, a, b)
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "PAGO TARJETA 1234", CleanDescription("  PAGO   TARJETA\t1234 "))
	assert.Equal(t, "", CleanDescription("   "))
}

func TestNormalizeReference(t *testing.T) {
	assert.Equal(t, "ES9121000418450200051332", NormalizeReference(" es91 2100 0418 4502 0005 1332 "))
}
