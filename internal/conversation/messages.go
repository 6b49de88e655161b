package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ticketconcierge/internal/catalog"
	"ticketconcierge/internal/messaging"
)

// sendCategoryList sends the closed category-enum list. An anti-loop guard
// suppresses resending within 5s of the last send for this phone, unless
// force is true (an explicit retry path, e.g. an invalid category) — spec
// §4.9's anti-loop guard.
func (c *Controller) sendCategoryList(ctx context.Context, phone string, force bool) error {
	if !force && !c.shouldSendCategoryMenu(phone) {
		return nil
	}

	rows := make([]messaging.ListRow, 0, len(catalog.AllCategories()))
	for _, cat := range catalog.AllCategories() {
		rows = append(rows, messaging.ListRow{
			ID:    string(cat),
			Title: titleCase(string(cat)),
		})
	}

	return c.messaging.SendList(ctx, phone, "What kind of event are you looking for?", "Browse", []messaging.ListSection{
		{Title: "Categories", Rows: rows},
	})
}

func (c *Controller) shouldSendCategoryMenu(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastCategoryMenus[phone]
	now := time.Now()
	if ok && now.Sub(last) < antiLoopWindow {
		return false
	}
	c.lastCategoryMenus[phone] = now
	return true
}

func (c *Controller) sendEventsList(ctx context.Context, phone string, events []catalog.Event) {
	if len(events) == 0 {
		c.messaging.SendText(ctx, phone, "No events in that category right now.")
		c.backToCategories(ctx, phone)
		return
	}

	rows := make([]messaging.ListRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, messaging.ListRow{
			ID:          e.ID.String(),
			Title:       e.Title,
			Description: fmt.Sprintf("%s — %s", e.Venue, e.Start.Format("Jan 2, 3:04 PM")),
		})
	}
	rows = append(rows, messaging.ListRow{ID: backToCategories, Title: "Back to categories"})

	c.messaging.SendList(ctx, phone, "Pick an event:", "Events", []messaging.ListSection{
		{Title: "Events", Rows: rows},
	})
}

func (c *Controller) sendTierList(ctx context.Context, phone string, event *catalog.Event) {
	rows := make([]messaging.ListRow, 0, len(event.Tiers)+1)
	for _, t := range event.Tiers {
		if t.Available() <= 0 {
			continue
		}
		rows = append(rows, messaging.ListRow{
			ID:          t.ID.String(),
			Title:       t.Name,
			Description: fmt.Sprintf("KES %d — %d left", t.UnitPriceKES, t.Available()),
		})
	}
	rows = append(rows, messaging.ListRow{ID: backToCategories, Title: "Back to categories"})

	c.messaging.SendList(ctx, phone, fmt.Sprintf("%s — pick a ticket tier:", event.Title), "Tiers", []messaging.ListSection{
		{Title: "Tiers", Rows: rows},
	})
}

func (c *Controller) sendGeneric(ctx context.Context, phone string) {
	c.messaging.SendText(ctx, phone, "Something went wrong. Type 'menu' to start over.")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
