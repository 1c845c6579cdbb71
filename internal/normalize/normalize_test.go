package normalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_RepairRules(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "I read as quantity one",
			input: "Ix Coffee 3.50",
			want:  "1x Coffee 3.50",
		},
		{
			name:  "lowercase l read as quantity one",
			input: "lx Latte 4.50",
			want:  "1x Latte 4.50",
		},
		{
			name:  "Z read as quantity two",
			input: "Zx Burger 12.00",
			want:  "2x Burger 12.00",
		},
		{
			name:  "hyphen as decimal point",
			input: "Burger 12-50",
			want:  "Burger 12.50",
		},
		{
			name:  "hyphen in name left alone",
			input: "Stir-Fry 14.00",
			want:  "Stir-Fry 14.00",
		},
		{
			name:  "quoted code removed",
			input: `Salad "AB123" 8.00`,
			want:  "Salad 8.00",
		},
		{
			name:  "trailing sku fragment removed",
			input: "Pasta 14.00 B1234",
			want:  "Pasta 14.00",
		},
		{
			name:  "trailing letter garbage after price",
			input: "Coffee 3.50 ab",
			want:  "Coffee 3.50",
		},
		{
			name:  "duplicated price token",
			input: "Soda 2.50 2.50",
			want:  "Soda 2.50",
		},
		{
			name:  "distinct prices kept",
			input: "2x Soda 2.50 5.00",
			want:  "2x Soda 2.50 5.00",
		},
		{
			name:  "trailing tax code letter",
			input: "Wine 9.00 A",
			want:  "Wine 9.00",
		},
		{
			name:  "repeated trailing tax code letters",
			input: "Wine 9.00 A A",
			want:  "Wine 9.00",
		},
		{
			name:  "stacked sku fragments",
			input: "Pasta 14.00 B12 C34",
			want:  "Pasta 14.00",
		},
		{
			name:  "sku fragment behind tax code",
			input: "Juice 6.00 B12 A",
			want:  "Juice 6.00",
		},
		{
			name:  "tax code behind currency marker",
			input: "Beer 7.00 AUD A",
			want:  "Beer 7.00",
		},
		{
			name:  "currency prefix removed",
			input: "AU$ Latte 4.50",
			want:  "Latte 4.50",
		},
		{
			name:  "parenthesized currency removed",
			input: "Beer (AUD) 7.00",
			want:  "Beer 7.00",
		},
		{
			name:  "whitespace collapsed",
			input: "Fish   and    Chips  16.50",
			want:  "Fish and Chips 16.50",
		},
		{
			name:  "clean line untouched",
			input: "2x Coffee 3.50 7.00",
			want:  "2x Coffee 3.50 7.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			assert.Equal(t, tt.want, got.Normalized)
			assert.Equal(t, tt.input, got.Original, "original must be preserved verbatim")
		})
	}
}

func TestNormalize_ChangeLog(t *testing.T) {
	got := Normalize("Ix Coffee 3.50 ab")
	require.NotEmpty(t, got.Changes)
	assert.Equal(t, "1x Coffee 3.50", got.Normalized)

	clean := Normalize("Burger 12.50")
	assert.Empty(t, clean.Changes)
}

func TestLines(t *testing.T) {
	text := "COFFEE SHOP\n\n2x Coffee 3.50 7.00\n   \nTOTAL 19.50\n"
	lines := Lines(text)
	require.Len(t, lines, 3)
	assert.Equal(t, "COFFEE SHOP", lines[0].Normalized)
	assert.Equal(t, "2x Coffee 3.50 7.00", lines[1].Normalized)
	assert.Equal(t, "TOTAL 19.50", lines[2].Normalized)
}

// genReceiptLine builds plausible OCR receipt lines, including the confusion
// patterns the rules repair.
func genReceiptLine() gopter.Gen {
	names := gen.OneConstOf("Coffee", "Flat White", "Burger", "Fish and Chips", "Pasta", "Soda")
	prefixes := gen.OneConstOf("", "Ix ", "lx ", "Zx ", "2x ", "3x ")
	monies := gen.OneConstOf(
		"3.50", "12-50", "7.00", "2.50 2.50", "14.00 B1234", "9.00 A",
		"9.00 A A", "14.00 B12 C34", "6.00 B12 A", "7.00 AUD A", "3.50 ab cd",
	)
	return gopter.CombineGens(prefixes, names, monies).Map(func(vals []interface{}) string {
		return vals[0].(string) + vals[1].(string) + " " + vals[2].(string)
	})
}

func TestNormalize_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("normalizing twice changes nothing", prop.ForAll(
		func(line string) bool {
			once := Normalize(line)
			twice := Normalize(once.Normalized)
			return twice.Normalized == once.Normalized
		},
		genReceiptLine(),
	))

	properties.Property("normalized output has no doubled spaces", prop.ForAll(
		func(line string) bool {
			out := Normalize(line).Normalized
			return !multiSpaceRe.MatchString(out)
		},
		genReceiptLine(),
	))

	properties.TestingRun(t)
}
