package investigation

import (
	"strings"
	"testing"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Python é uma linguagem. Foi criada em 1991!  Quem diria? versão 3.12 existe")
	assert.Equal(t, []string{
		"Python é uma linguagem.",
		"Foi criada em 1991!",
		"Quem diria?",
		"versão 3.12 existe",
	}, got)

	assert.Empty(t, SplitSentences("   "))
}

func TestExtractFactSentences(t *testing.T) {
	text := "Curta é. " +
		"Python é uma linguagem de programação de alto nível. " +
		"Nada aqui combina com padrões conhecidos de verbo algum hoje. " +
		strings.Repeat("muito longa ", 20) + "é demais. " +
		"Go was designed at Google in 2007."

	got := ExtractFactSentences(text)
	assert.Equal(t, []string{
		"Python é uma linguagem de programação de alto nível.",
		"Go was designed at Google in 2007.",
	}, got)
}

func TestExtractFactSentences_Cap(t *testing.T) {
	text := strings.Repeat("O gato tem quatro patas e bigodes. ", 8)
	assert.Len(t, ExtractFactSentences(text), 5)
}

func TestParseTriple(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		want     domain.Triple
		ok       bool
	}{
		{
			name:     "copula pt",
			sentence: "Python é uma linguagem de programação.",
			want:     domain.Triple{Subject: "Python", Relation: "é", Object: "Uma linguagem de programação"},
			ok:       true,
		},
		{
			name:     "possession pt",
			sentence: "O gato tem quatro patas",
			want:     domain.Triple{Subject: "O gato", Relation: "tem", Object: "Quatro patas"},
			ok:       true,
		},
		{
			name:     "location pt",
			sentence: "Maria mora na cidade do Porto.",
			want:     domain.Triple{Subject: "Maria", Relation: "vive em", Object: "Cidade do porto"},
			ok:       true,
		},
		{
			name:     "copula en",
			sentence: "Go is a compiled language!",
			want:     domain.Triple{Subject: "Go", Relation: "is", Object: "A compiled language"},
			ok:       true,
		},
		{
			name:     "location en",
			sentence: "The panda lives in China",
			want:     domain.Triple{Subject: "The panda", Relation: "lives in", Object: "China"},
			ok:       true,
		},
		{
			name:     "no verb",
			sentence: "Linguagens de programação modernas",
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTriple(tt.sentence)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
