package game

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedInput is the typed result of parsing a redemption's free-text input.
type ParsedInput struct {
	BotIndex int    // 0-indexed internal position
	Payload  string // character name for CHOIX_PERSO, empty otherwise
}

var charSelectPattern = regexp.MustCompile(`^(\d+)\s+(\S.*)$`)

// ParseInput applies the per-category input grammar.
//
// Level adjustments expect a single bot number in [1,4]. Character select
// expects "<bot number> <character name>" where the name is at least one
// non-space token. User-facing bot numbers are 1-indexed; the returned
// BotIndex is 0-indexed.
func ParseInput(cat Category, input string) (ParsedInput, error) {
	input = strings.TrimSpace(input)
	switch cat {
	case CategoryLevelUp, CategoryLevelDown:
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > NumBots {
			return ParsedInput{}, validationf("invalid input %q: use a number between 1 and %d", input, NumBots)
		}
		return ParsedInput{BotIndex: n - 1}, nil
	case CategoryCharSelect:
		m := charSelectPattern.FindStringSubmatch(input)
		if m == nil {
			return ParsedInput{}, validationf("invalid format %q: use: [1-%d] [character name]", input, NumBots)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > NumBots {
			return ParsedInput{}, validationf("invalid format %q: use: [1-%d] [character name]", input, NumBots)
		}
		return ParsedInput{BotIndex: n - 1, Payload: strings.TrimSpace(m[2])}, nil
	default:
		return ParsedInput{}, validationf("unknown bonus category %q", cat)
	}
}

// Outcome titles look like "Choix 3", "Bot 2", "ordi 4" or a bare "1":
// optional leading label, then the bot number.
var winnerPattern = regexp.MustCompile(`^\D*?(\d+)`)

// ExtractBotNumber pulls the 1-indexed bot number out of a prediction outcome
// title. Returns nil when the title carries no digit.
func ExtractBotNumber(title string) *int {
	m := winnerPattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
