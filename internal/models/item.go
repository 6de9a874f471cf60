package models

// Item is the read-only projection of a lost-and-found report that this
// service needs: who reported it and how to reach them.
type Item struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string `gorm:"type:text" json:"name"`
	ReporterID  string `gorm:"type:varchar(64);not null;index" json:"reporter_id"`
	ContactInfo string `gorm:"type:text" json:"-"`
}

func (Item) TableName() string { return "lost_items" }

// ItemContactInfo is what the approval gate decides on.
type ItemContactInfo struct {
	ContactInfo string
	ReporterID  string
}

func (i Item) ContactProjection() ItemContactInfo {
	return ItemContactInfo{ContactInfo: i.ContactInfo, ReporterID: i.ReporterID}
}
