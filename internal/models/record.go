package models

import "time"

// FEMRecord is a stored contact-form submission. Timestamps are kept in the
// store but not exposed through the API.
type FEMRecord struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// RecordPatch carries a partial update. Nil fields are left unchanged by
// PATCH; PUT requires all of them to be set.
type RecordPatch struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Message *string `json:"message"`
}

// Complete reports whether every field of the patch is present.
func (p RecordPatch) Complete() bool {
	return p.Name != nil && p.Email != nil && p.Message != nil
}

// Apply copies the present fields of the patch onto the record.
func (p RecordPatch) Apply(r *FEMRecord) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Email != nil {
		r.Email = *p.Email
	}
	if p.Message != nil {
		r.Message = *p.Message
	}
}
