package domain

import "time"

// HomeData is the payload of GET /home-data.
type HomeData struct {
	Greeting string     `json:"greeting,omitempty"`
	Items    []HomeItem `json:"items"`
}

// HomeItem is one entry on the home screen.
type HomeItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
