package model

import "time"

// Project groups tasks; templates pass their project on to generated instances.
type Project struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;index:idx_user_project_name,unique,priority:1"`
	Name      string `gorm:"index:idx_user_project_name,unique,priority:2"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:ProjectID"`
}

// Area is a broader life area (work, health, study, etc.).
type Area struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
