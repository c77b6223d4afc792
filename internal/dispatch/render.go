package dispatch

import (
	"fmt"
	"strings"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Payload is the webhook body. Field names follow the chat adapter's
// embed-style contract; the adapter owns the final presentation.
type Payload struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tickers     []string `json:"tickers"`
	Score       float64  `json:"score"`
	Price       float64  `json:"price"`
	Regime      string   `json:"regime"`
	Fields      []Field  `json:"fields"`
	Links       []Link   `json:"links,omitempty"`
}

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// RenderPayload maps a scored item onto the webhook contract.
func RenderPayload(item models.ScoredItem) Payload {
	p := Payload{
		Title:       fmt.Sprintf("%s | %s", strings.Join(item.Tickers, ", "), item.Title),
		Description: item.BodySnippet,
		Tickers:     item.Tickers,
		Score:       item.SourceWeight,
		Price:       item.LastPrice,
		Regime:      string(item.Regime),
		Fields: []Field{
			{Name: "RVol", Value: fmt.Sprintf("%.2fx", item.RVolMultiplier)},
			{Name: "Float", Value: string(item.FloatClass)},
			{Name: "Confidence", Value: fmt.Sprintf("%.2f", item.Confidence)},
		},
	}
	if item.OfferingSeverity != "" && item.OfferingSeverity != models.OfferingNone {
		p.Fields = append(p.Fields, Field{Name: "Offering", Value: string(item.OfferingSeverity)})
	}
	if item.Link != "" {
		p.Links = append(p.Links, Link{Label: "Source", URL: item.Link})
	}
	if len(item.Tickers) > 0 {
		p.Links = append(p.Links, Link{
			Label: "Chart",
			URL:   "https://finance.yahoo.com/chart/" + item.Tickers[0],
		})
	}
	return p
}
