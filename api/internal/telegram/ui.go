package telegram

import (
	"fmt"
	"strings"

	"repair-assistant/api/internal/pipeline"
)

// FormatResponse renders a run as a plain text chat message.
func FormatResponse(resp pipeline.Response) string {
	var b strings.Builder
	if len(resp.Summary) > 0 {
		b.WriteString("🛠 " + resp.Summary[0] + "\n")
	}
	if len(resp.RepairSteps) > 0 {
		b.WriteString("\nRepair steps:\n")
		for i, s := range resp.RepairSteps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, stripNumber(s))
		}
	}

	md := resp.Metadata
	if md.NeedsPro {
		b.WriteString("\n👷 A professional is recommended.")
	} else {
		b.WriteString("\n🙂 You can probably do this yourself.")
	}
	fmt.Fprintf(&b, " Confidence: %.0f%%\n", md.Confidence*100)
	if len(md.PartsNeeded) > 0 {
		b.WriteString("Parts: " + strings.Join(md.PartsNeeded, ", ") + "\n")
	}

	if len(resp.ContractorsNearby) > 0 {
		b.WriteString("\nContractors nearby:\n")
		for _, c := range resp.ContractorsNearby {
			rating := "no rating"
			if c.Rating != nil {
				rating = fmt.Sprintf("★ %.1f", *c.Rating)
			}
			fmt.Fprintf(&b, "• %s (%s, %.1f km)\n  %s\n  %s\n", c.Name, rating, c.DistanceKm, c.Address, c.MapsURL)
		}
	}
	if len(resp.ProductsNeeded) > 0 {
		b.WriteString("\nProducts:\n")
		for _, p := range resp.ProductsNeeded {
			fmt.Fprintf(&b, "• %s - %s at %s\n  %s\n", p.Title, p.Price, p.Store, p.Link)
		}
	}
	if md.Error != "" {
		b.WriteString("\n⚠️ " + md.Error + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripNumber drops a leading "1. " the model sometimes adds itself.
func stripNumber(s string) string {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
