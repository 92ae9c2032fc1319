package enums

import "fmt"

// ItemType maps to the item_type_enum enum in Postgres.
type ItemType string

const (
	ItemTypeBook      ItemType = "BOOK"
	ItemTypeDVD       ItemType = "DVD"
	ItemTypeEquipment ItemType = "EQUIPMENT"
)

var validItemTypes = []ItemType{
	ItemTypeBook,
	ItemTypeDVD,
	ItemTypeEquipment,
}

// IsValid reports whether the value matches the canonical item type enum.
func (t ItemType) IsValid() bool {
	for _, candidate := range validItemTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseItemType converts raw input into ItemType.
func ParseItemType(value string) (ItemType, error) {
	for _, candidate := range validItemTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item type %q", value)
}
