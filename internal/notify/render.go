// Killwatch - Killmail Tracking and Notification Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killwatch

package notify

import (
	"fmt"
	"strings"

	"github.com/tomtom215/killwatch/internal/models"
)

const killURLFormat = "https://zkillboard.com/kill/%d/"

func killURL(id int64) string {
	return fmt.Sprintf(killURLFormat, id)
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func renderTitle(ev *models.EnrichedEvent) string {
	ship := orUnknown(ev.ShipName, "Ship")
	system := orUnknown(ev.SystemName, fmt.Sprintf("system %d", ev.SystemID))
	return fmt.Sprintf("%s destroyed in %s", ship, system)
}

func renderBody(ev *models.EnrichedEvent) string {
	var b strings.Builder

	victim := orUnknown(ev.VictimName, "Unknown pilot")
	if ev.VictimCorporation != "" {
		victim += " (" + ev.VictimCorporation + ")"
	}
	fmt.Fprintf(&b, "%s lost a %s", victim, orUnknown(ev.ShipName, "ship"))
	if ev.TotalValue > 0 {
		fmt.Fprintf(&b, " worth %s ISK", formatISK(ev.TotalValue))
	}
	b.WriteString(".")

	for _, a := range ev.AttackerSummaries {
		if a.FinalBlow {
			fmt.Fprintf(&b, " Final blow: %s", orUnknown(a.CharacterName, "unknown"))
			if a.ShipName != "" {
				fmt.Fprintf(&b, " in a %s", a.ShipName)
			}
			b.WriteString(".")
			break
		}
	}
	if n := len(ev.AttackerSummaries); n > 1 {
		fmt.Fprintf(&b, " %d attackers.", n)
	}
	return b.String()
}

// formatISK abbreviates v: 1.5e9 -> "1.50B".
func formatISK(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
