package models

// DeclinedReason is a catalog entry explaining why work was declined.
// An empty OrganizationID makes the reason visible to every organization.
type DeclinedReason struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrganizationID string `gorm:"size:36;uniqueIndex:idx_declined_reason_org_code"`
	Code           string `gorm:"size:32;not null;uniqueIndex:idx_declined_reason_org_code"`
	Label          string `gorm:"size:128;not null"`
	RequiresNotes  bool   `gorm:"default:false"`
	SortOrder      int    `gorm:"default:0"`
	Active         bool   `gorm:"default:true"`
}

// DeletedReason is a catalog entry explaining why a repair item was removed.
type DeletedReason struct {
	ID             string `gorm:"primaryKey;size:36"`
	OrganizationID string `gorm:"size:36;uniqueIndex:idx_deleted_reason_org_code"`
	Code           string `gorm:"size:32;not null;uniqueIndex:idx_deleted_reason_org_code"`
	Label          string `gorm:"size:128;not null"`
	RequiresNotes  bool   `gorm:"default:false"`
	SortOrder      int    `gorm:"default:0"`
	Active         bool   `gorm:"default:true"`
}
