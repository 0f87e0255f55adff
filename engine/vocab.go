package engine

import "strings"

// equipmentVocab routes listings to the equipment model. Stems are
// matched as case-insensitive substrings of the title.
var equipmentVocab = []string{
	"генератор",
	"бензопил",
	"компресор",
	"зварюв",
	"мотоблок",
	"верстат",
	"двигун",
	"перфоратор",
	"generator",
	"compressor",
	"chainsaw",
}

// scrapVocab routes listings to the spot-metal model.
var scrapVocab = []string{
	"лом",
	"брухт",
	"срібл",
	"срібн",
	"золот",
	"позолот",
	"проба",
	"bullion",
	"scrap",
}

// goldVocab distinguishes gold lots from silver within the spot model.
var goldVocab = []string{
	"золот",
	"позолот",
	"gold",
}

func matchesVocab(text string, vocab []string) bool {
	lower := strings.ToLower(text)
	for _, stem := range vocab {
		if strings.Contains(lower, stem) {
			return true
		}
	}
	return false
}
