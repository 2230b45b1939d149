package model

import "time"

type Customer struct {
	ID        string    `json:"id"`
	StudioID  string    `json:"studioId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	FCMToken  *string   `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// QRCode is the aftercare context a reminder refers back to.
type QRCode struct {
	ID           string    `json:"id"`
	StudioID     string    `json:"studioId"`
	Code         string    `json:"code"`
	PiercingType string    `json:"piercingType"`
	CreatedAt    time.Time `json:"createdAt"`
}
