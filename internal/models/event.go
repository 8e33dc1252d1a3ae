package models

import "time"

type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	EventDate   time.Time `json:"event_date"`
	PriceMinor  int64     `json:"price_minor"`
	Currency    string    `json:"currency"`
	Capacity    int       `json:"capacity"`
	TicketsSold int       `json:"tickets_sold"`
	IsActive    bool      `json:"is_active"`
}

func (e *Event) SoldOut() bool {
	return e.TicketsSold >= e.Capacity
}
