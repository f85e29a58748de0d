package models

import "time"

// DataProfile is a named extraction template owned by one organization.
// Name is unique per organization.
type DataProfile struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	OrganizationID int64     `json:"organization_id"`
	Instructions   string    `json:"instructions"`
	TableName      *string   `json:"table_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
