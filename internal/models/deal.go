package models

// SinkRecord is the CRM deal created for one accepted post.
// Duplicate is set when an existing deal already references the post URL;
// in that case ID is empty.
type SinkRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Duplicate   bool   `json:"duplicate"`
}
