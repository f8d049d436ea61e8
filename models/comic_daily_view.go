package models

// ComicDailyView stores aggregated view counts per day and comic.
type ComicDailyView struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Day         string `gorm:"index:idx_cdv_day_comic,unique;size:10;not null" json:"day"` // YYYY-MM-DD
	ComicNumber int    `gorm:"index;index:idx_cdv_day_comic,unique;not null" json:"comic_number"`
	Views       int64  `gorm:"not null;default:0" json:"views"`
}

// DayLayout is the format of ComicDailyView.Day.
const DayLayout = "2006-01-02"
