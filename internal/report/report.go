// Package report renders the catalog summary sent to the creator.
package report

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
)

// Ranking is how many submissions one author has
type Ranking struct {
	Author models.Author
	Count  int
}

type Summary struct {
	Templates int
	Sources   int
	Authors   int
	// TemplateRanking lists every author; SourceRanking only those with at
	// least one source.
	TemplateRanking []Ranking
	SourceRanking   []Ranking
}

// Summarize counts submissions per author. Ties keep the authors' stored order.
func Summarize(templates []models.Template, sources []models.Source, authors []models.Author) Summary {
	templateCounts := map[int64]int{}
	for _, t := range templates {
		templateCounts[t.AuthorID]++
	}
	sourceCounts := map[int64]int{}
	for _, s := range sources {
		sourceCounts[s.AuthorID]++
	}

	s := Summary{Templates: len(templates), Sources: len(sources), Authors: len(authors)}
	for _, a := range authors {
		s.TemplateRanking = append(s.TemplateRanking, Ranking{Author: a, Count: templateCounts[a.ID]})
		if n := sourceCounts[a.ID]; n > 0 {
			s.SourceRanking = append(s.SourceRanking, Ranking{Author: a, Count: n})
		}
	}
	byCount := func(r []Ranking) func(i, j int) bool {
		return func(i, j int) bool { return r[i].Count > r[j].Count }
	}
	sort.SliceStable(s.TemplateRanking, byCount(s.TemplateRanking))
	sort.SliceStable(s.SourceRanking, byCount(s.SourceRanking))
	return s
}

// HTML formats the summary using the subset of HTML Telegram accepts
func (s Summary) HTML() string {
	var b strings.Builder
	b.WriteString("<b>📊 Relatório Geral</b>\n")
	b.WriteString("<b>Resumo:</b>\n")
	fmt.Fprintf(&b, "• Templates: %d\n", s.Templates)
	fmt.Fprintf(&b, "• Sources: %d\n", s.Sources)
	fmt.Fprintf(&b, "• Autores: %d\n\n", s.Authors)

	b.WriteString("<b>📝 Templates</b>\n")
	for i, r := range s.TemplateRanking {
		fmt.Fprintf(&b, "%d. <b>%s</b>: %d templates.\n", i+1, html.EscapeString(r.Author.DisplayName()), r.Count)
	}

	b.WriteString("\n<b>🖼 Sources</b>\n")
	for i, r := range s.SourceRanking {
		fmt.Fprintf(&b, "%d. <b>%s</b>: %d sources.\n", i+1, html.EscapeString(r.Author.DisplayName()), r.Count)
	}
	return b.String()
}

// Build loads everything from the store and renders the report
func Build(ctx context.Context, store storage.Store) (string, error) {
	templates, err := store.Templates().FindAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load templates: %w", err)
	}
	sources, err := store.Sources().FindAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load sources: %w", err)
	}
	authors, err := store.Authors().FindAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load authors: %w", err)
	}
	return Summarize(templates, sources, authors).HTML(), nil
}
