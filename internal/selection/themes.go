package selection

import (
	"strings"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// Theme restricts sources to matching descriptions on one calendar day
type Theme struct {
	Month    time.Month `yaml:"month"`
	Day      int        `yaml:"day"`
	Keywords []string   `yaml:"keywords"`
}

// DefaultThemes is the birthday calendar the bot has always celebrated
func DefaultThemes() []Theme {
	return []Theme{
		{Month: time.January, Day: 22, Keywords: []string{"brenda"}},
		{Month: time.April, Day: 3, Keywords: []string{"ander"}},
		{Month: time.April, Day: 14, Keywords: []string{"gab"}},
		{Month: time.April, Day: 30, Keywords: []string{"gui"}},
		{Month: time.May, Day: 27, Keywords: []string{"xxk", "gayzito"}},
		{Month: time.June, Day: 10, Keywords: []string{"lucas", "c4", "celta"}},
		{Month: time.August, Day: 12, Keywords: []string{"valb", "punhet"}},
		{Month: time.October, Day: 25, Keywords: []string{"dedey"}},
	}
}

// ActiveTheme returns the first theme whose date matches now in now's location
func ActiveTheme(themes []Theme, now time.Time) (Theme, bool) {
	for _, th := range themes {
		if now.Month() == th.Month && now.Day() == th.Day {
			return th, true
		}
	}
	return Theme{}, false
}

// MatchesKeywords is a case-insensitive substring match against any keyword
func MatchesKeywords(description string, keywords []string) bool {
	desc := strings.ToLower(description)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(desc, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// FilterThemed keeps the sources matching the theme keywords
func FilterThemed(sources []models.Source, th Theme) []models.Source {
	var result []models.Source
	for _, s := range sources {
		if MatchesKeywords(s.Description, th.Keywords) {
			result = append(result, s)
		}
	}
	return result
}
