package selection

import (
	"testing"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestActiveTheme(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}

	tests := []struct {
		name     string
		now      time.Time
		wantOK   bool
		keywords []string
	}{
		{"birthday", time.Date(2025, time.June, 10, 9, 0, 0, 0, saoPaulo), true, []string{"lucas", "c4", "celta"}},
		{"ordinary day", time.Date(2025, time.June, 11, 9, 0, 0, 0, saoPaulo), false, nil},
		// 01:00 UTC on Apr 4 is still Apr 3 in Sao Paulo
		{"local date wins", time.Date(2025, time.April, 4, 1, 0, 0, 0, time.UTC).In(saoPaulo), true, []string{"ander"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, ok := ActiveTheme(DefaultThemes(), tt.now)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.keywords, th.Keywords)
			}
		})
	}
}

func TestFilterThemed(t *testing.T) {
	sources := []models.Source{
		{Asset: models.Asset{ID: "1"}, Description: "Lucas no carro"},
		{Asset: models.Asset{ID: "2"}, Description: "um CELTA prata"},
		{Asset: models.Asset{ID: "3"}, Description: "gato"},
		{Asset: models.Asset{ID: "4"}},
	}

	got := FilterThemed(sources, Theme{Keywords: []string{"lucas", "celta"}})
	if assert.Len(t, got, 2) {
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, "2", got[1].ID)
	}

	assert.Empty(t, FilterThemed(sources, Theme{Keywords: []string{""}}))
}
