package seed

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"
)

type Event struct {
	EventID    int64   `parquet:"event_id"`
	UserID     string  `parquet:"user_id"`
	SessionID  string  `parquet:"session_id"`
	EventType  string  `parquet:"event_type"`
	Amount     float64 `parquet:"amount"`
	Currency   string  `parquet:"currency"`
	Country    string  `parquet:"country"`
	Device     string  `parquet:"device"`
	OccurredAt string  `parquet:"occurred_at"`
}

var csvHeader = []string{
	"event_id", "user_id", "session_id", "event_type", "amount",
	"currency", "country", "device", "occurred_at",
}

func (e Event) csvRecord() []string {
	return []string{
		strconv.FormatInt(e.EventID, 10),
		e.UserID,
		e.SessionID,
		e.EventType,
		strconv.FormatFloat(e.Amount, 'f', 2, 64),
		e.Currency,
		e.Country,
		e.Device,
		e.OccurredAt,
	}
}

type Generator struct {
	rnd             *rand.Rand
	userCardinality int
	sequence        int64
	now             func() time.Time
}

func NewGenerator(seed int64, userCardinality int) *Generator {
	return &Generator{
		rnd:             rand.New(rand.NewSource(seed)),
		userCardinality: userCardinality,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) Events(n int) []Event {
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, g.NextEvent())
	}
	return events
}

func (g *Generator) NextEvent() Event {
	g.sequence++
	eventType := g.pickEventType()
	return Event{
		EventID:    g.sequence,
		UserID:     fmt.Sprintf("user-%04d", g.rnd.Intn(g.userCardinality)+1),
		SessionID:  fmt.Sprintf("sess-%08x", g.rnd.Uint32()),
		EventType:  eventType,
		Amount:     g.pickAmount(eventType),
		Currency:   "USD",
		Country:    pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Device:     pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		OccurredAt: g.now().Format(time.RFC3339Nano),
	}
}

func (g *Generator) pickEventType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
