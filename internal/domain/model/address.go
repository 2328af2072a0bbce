package model

type Address struct {
	BaseModel
	UserID     string `gorm:"not null;type:varchar(36);index" json:"userId"`
	FullName   string `gorm:"not null;type:varchar(100)" json:"fullName"`
	Phone      string `gorm:"not null;type:varchar(20)" json:"phone"`
	Line1      string `gorm:"not null;type:varchar(255)" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2,omitempty"`
	City       string `gorm:"not null;type:varchar(100)" json:"city"`
	State      string `gorm:"not null;type:varchar(100)" json:"state"`
	PostalCode string `gorm:"not null;type:varchar(20)" json:"postalCode"`
	Country    string `gorm:"not null;type:varchar(50);default:'India'" json:"country"`
}
