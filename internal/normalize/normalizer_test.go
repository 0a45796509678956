package normalize

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
)

func TestMerchant(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "Netflix", want: "NETFLIX"},
		{name: "domain suffix", raw: "NETFLIX.COM", want: "NETFLIX"},
		{name: "pos debit prefix", raw: "POS DEBIT NETFLIX.COM", want: "NETFLIX"},
		{name: "phone number tail", raw: "Netflix.com 866-579-7172", want: "NETFLIX"},
		{name: "store number", raw: "WHOLE FOODS MARKET #10234", want: "WHOLE FOODS MARKET"},
		{name: "attached store number", raw: "SHELL OIL57444", want: "SHELL OIL"},
		{name: "square prefix", raw: "SQ *BLUE BOTTLE COFFEE", want: "BLUE BOTTLE COFFEE"},
		{name: "paypal prefix", raw: "PAYPAL *SPOTIFY", want: "SPOTIFY"},
		{name: "recurring marker", raw: "SPOTIFY USA RECURRING", want: "SPOTIFY USA"},
		{name: "apostrophe", raw: "McDonald's F1234", want: "MCDONALDS F"},
		{name: "diacritics", raw: "Café Crème", want: "CAFE CREME"},
		{name: "collapse whitespace", raw: "  uber    eats  ", want: "UBER EATS"},
		{name: "ampersand kept", raw: "AT&T BILL PAYMENT", want: "AT&T BILL"},
		{name: "short digits kept", raw: "76 GAS STATION", want: "76 GAS STATION"},
		{name: "reference code dropped", raw: "AMZN Mktp US*2K34L5R", want: "AMZN MKTP US"},
		{name: "token limit", raw: "THE GREAT BIG LOCAL HARDWARE STORE", want: "THE GREAT BIG LOCAL"},
		{name: "length limit", raw: "SUPERCALIFRAGILISTIC EXPIALIDOCIOUS STORE", want: "SUPERCALIFRAGILISTIC"},
		{name: "only boilerplate", raw: "RECURRING PAYMENT", want: Unknown},
		{name: "empty", raw: "", want: Unknown},
		{name: "prefix alone kept", raw: "PAYPAL", want: "PAYPAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merchant(tt.raw))
		})
	}
}

func TestMerchantSameMerchantVariants(t *testing.T) {
	variants := []string{
		"NETFLIX.COM",
		"Netflix.com",
		"POS NETFLIX.COM 12345",
		"RECURRING DEBIT NETFLIX COM",
		"netflix",
	}
	for _, v := range variants {
		assert.Equal(t, "NETFLIX", Merchant(v), v)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	fixed := []string{
		"SUPERCALIFRAGILISTICEXPIALIDO123456",
		"ABCDEFGHIJKLMNOPQRSTUVWXYZABC123 X",
		"POS POS POS",
		"INC PAYPAL SPOTIFY",
		"POS1234 NETFLIX",
		"ǰ straße ﬁne",
		"& & &",
		"### ***",
		"NETFLIX ㎏",
		"ªNETFLIX",
		"ℓ STORE",
		"ﬀ ǰ ℹ",
	}
	faker := gofakeit.New(42)
	for range 500 {
		fixed = append(fixed,
			faker.Company(),
			faker.Company()+" #"+faker.Numerify("####"),
			"POS "+faker.AppName()+"*"+faker.Regex("[A-Z0-9]{6}"),
			faker.Sentence(6),
		)
	}

	n := New(DefaultConfig())
	for _, raw := range fixed {
		once := n.Normalize(raw)
		assert.Equal(t, once, n.Normalize(once), "input %q", raw)
		assert.NotEmpty(t, once)
	}
}

func TestNormalizeCompatibilityLetters(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "NETFLIX ㎏", want: "NETFLIX KG"},
		{raw: "ªNETFLIX", want: "ANETFLIX"},
		{raw: "ℓ STORE", want: "L STORE"},
		{raw: "café ǰ", want: "CAFE J"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Merchant(tt.raw))
		})
	}
}

func TestCustomConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Noise = append(cfg.Noise, "STORE")
	cfg.MaxTokens = 2
	n := New(cfg)

	assert.Equal(t, "HARDWARE CITY", n.Normalize("hardware city store downtown"))
}
