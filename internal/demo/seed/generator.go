package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Client struct {
	ID        int64
	Name      string
	Industry  string
	Country   string
	CreatedAt time.Time
}

type Ticket struct {
	ID          int64
	ClientID    int64
	Subject     string
	Status      string
	Priority    string
	HoursLogged float64
	OpenedAt    time.Time
}

type Dataset struct {
	Clients []Client
	Tickets []Ticket
}

// Generator produces a reproducible PSA dataset for a given seed.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) Generate(clients, ticketsPerClient int) Dataset {
	base := g.now().Truncate(time.Second)
	dataset := Dataset{
		Clients: make([]Client, 0, clients),
		Tickets: make([]Ticket, 0, clients*ticketsPerClient),
	}

	var ticketID int64
	for i := 1; i <= clients; i++ {
		client := Client{
			ID:        int64(i),
			Name:      fmt.Sprintf("%s %s", pickOne(g.rnd, companyPrefixes), pickOne(g.rnd, companySuffixes)),
			Industry:  pickOne(g.rnd, []string{"healthcare", "legal", "manufacturing", "retail", "finance"}),
			Country:   pickOne(g.rnd, []string{"US", "DE", "GB", "CA", "AU"}),
			CreatedAt: base.Add(-time.Duration(g.rnd.Intn(720)) * time.Hour),
		}
		dataset.Clients = append(dataset.Clients, client)

		for j := 0; j < ticketsPerClient; j++ {
			ticketID++
			status := g.pickStatus()
			dataset.Tickets = append(dataset.Tickets, Ticket{
				ID:          ticketID,
				ClientID:    client.ID,
				Subject:     pickOne(g.rnd, ticketSubjects),
				Status:      status,
				Priority:    pickOne(g.rnd, []string{"low", "medium", "high", "critical"}),
				HoursLogged: g.pickHours(status),
				OpenedAt:    base.Add(-time.Duration(g.rnd.Intn(240)) * time.Hour),
			})
		}
	}
	return dataset
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 40:
		return "closed"
	case p < 70:
		return "open"
	case p < 90:
		return "in_progress"
	default:
		return "waiting_on_client"
	}
}

func (g *Generator) pickHours(status string) float64 {
	switch status {
	case "closed":
		return round2(0.5 + g.rnd.Float64()*12)
	case "open":
		return 0
	default:
		return round2(g.rnd.Float64() * 6)
	}
}

var (
	companyPrefixes = []string{"Acme", "Northwind", "Contoso", "Globex", "Initech", "Umbrella", "Stark", "Wayne"}
	companySuffixes = []string{"Dental", "Logistics", "Partners", "Labs", "Holdings", "Clinic", "Foods"}
	ticketSubjects  = []string{
		"Printer offline",
		"VPN connection drops",
		"New user onboarding",
		"Password reset",
		"Backup job failed",
		"Email quota exceeded",
		"Laptop replacement",
		"Firewall rule change",
	}
)

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
