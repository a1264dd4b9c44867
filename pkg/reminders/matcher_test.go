package reminders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"case and accents", "Café", "cafe"},
		{"portuguese", "Eletrônicos À VENDA", "eletronicos a venda"},
		{"whitespace runs", "  grande\t\tdesconto \n\n hoje  ", "grande desconto hoje"},
		{"control runes", "pro\x00mo\x07", "promo"},
		{"zero width", "des\u200bconto", "desconto"},
		{"dotted capital i", "İstanbul", "istanbul"},
		{"empty", " \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"Grande DESCONTO em eletrônicos hoje!",
		"Ação\r\npromoção   ÚNICA",
		"İİ ǅ ß Ⅻ",
		"\x1b[31mred\x1b[0m",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
	assert.Equal(t, Sanitize("cafe"), Sanitize("Café"))
}

func TestMatch_AllTextsRequired(t *testing.T) {
	groups := []Group{
		{UserID: 1, Name: "promo", Texts: []string{"desconto", "eletronicos"}},
		{UserID: 1, Name: "promo2", Texts: []string{"desconto", "livros"}},
	}

	got := Match("Grande desconto em eletrônicos hoje", groups)

	assert.Equal(t, map[int64][]string{1: {"promo"}}, got)
}

func TestMatch_MultipleUsersAndGroups(t *testing.T) {
	groups := []Group{
		{UserID: 1, Name: "cpu", Texts: []string{"Ryzen"}},
		{UserID: 1, Name: "gpu", Texts: []string{"rtx", "4090"}},
		{UserID: 2, Name: "tudo", Texts: []string{"PROMOÇÃO"}},
		{UserID: 3, Name: "nada", Texts: []string{"geladeira"}},
	}

	got := Match("Promoção: Ryzen 7 + RTX 4090 https://loja.example/x", groups)

	assert.Equal(t, []string{"cpu", "gpu"}, got[1])
	assert.Equal(t, []string{"tudo"}, got[2])
	assert.NotContains(t, got, int64(3))
}

func TestMatch_DegenerateGroups(t *testing.T) {
	groups := []Group{
		{UserID: 1, Name: "empty", Texts: nil},
		{UserID: 2, Name: "blank", Texts: []string{"  "}},
	}
	assert.Empty(t, Match("anything at all", groups))
	assert.Empty(t, Match("", []Group{{UserID: 1, Name: "x", Texts: []string{"x"}}}))
}

func TestMatch_EquivalentToPerTextContainment(t *testing.T) {
	msg := "Oferta relâmpago: SSD NVMe 1TB por R$ 299"
	texts := [][]string{
		{"ssd"},
		{"ssd", "nvme"},
		{"ssd", "hdd"},
		{"RELAMPAGO", "1tb", "r$ 299"},
	}
	for _, tt := range texts {
		want := true
		for _, text := range tt {
			if !contains(Sanitize(msg), Sanitize(text)) {
				want = false
			}
		}
		got := Match(msg, []Group{{UserID: 9, Name: "g", Texts: tt}})
		assert.Equal(t, want, len(got[9]) == 1, "texts %v", tt)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitList(" a, b c ,,d, "))
	assert.Empty(t, SplitList(" , "))
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "- promo\n- gpu", FormatList([]string{"promo", "gpu"}))
	assert.Equal(t, "", FormatList(nil))
}
