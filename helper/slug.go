package helper

import (
	"fmt"

	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GenerateUniqueCanteenSlug appends -1, -2, ... until the slug is free.
func GenerateUniqueCanteenSlug(tx *gorm.DB, name string) string {
	base := slug.Make(name)
	result := base
	i := 1

	for {
		var count int64
		tx.Model(&model.Canteen{}).
			Where("slug = ?", result).
			Count(&count)

		if count == 0 {
			break
		}
		result = fmt.Sprintf("%s-%d", base, i)
		i++
	}

	return result
}
