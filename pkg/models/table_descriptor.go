package models

import "time"

// TableDescriptor is one catalog entry: a managed warehouse table, the DDL it
// was created from, and the natural-language description the model uses to
// route uploads to it. TableName is always derived from CreateStatement.
type TableDescriptor struct {
	TableName       string     `json:"table_name"`
	CreateStatement string     `json:"create_statement"`
	Description     string     `json:"description"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// OrganizationTable grants an organization write access to a managed table.
type OrganizationTable struct {
	OrganizationID int64     `json:"organization_id"`
	TableName      string    `json:"table_name"`
	Alias          *string   `json:"alias,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DisplayName returns the alias when set, otherwise the table name.
func (o *OrganizationTable) DisplayName() string {
	if o.Alias != nil && *o.Alias != "" {
		return *o.Alias
	}
	return o.TableName
}
