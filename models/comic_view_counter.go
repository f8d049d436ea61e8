package models

// ComicViewCounter stores the cumulative number of recorded views for one xkcd comic.
// The table name matches the schema created by the original web app so both can share it.
type ComicViewCounter struct {
	ComicNumber int   `gorm:"primaryKey;autoIncrement:false" json:"comic_number"`
	ViewCount   int64 `gorm:"not null;default:0" json:"view_count"`
}

// TableName keeps the legacy table name.
func (ComicViewCounter) TableName() string {
	return "xkcd_app_xkcdcomicviews"
}
