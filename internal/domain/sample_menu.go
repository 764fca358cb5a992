package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SampleMenu is the house menu. It seeds a fresh database and stands in for
// the catalog when the backend cannot be reached. CreatedAt values are
// spaced a minute apart from base so creation order is stable.
func SampleMenu(base time.Time) []CatalogItem {
	type row struct {
		id, name, desc, price, image string
		cat                          Category
	}
	rows := []row{
		{"classic-espresso", "Classic Espresso", "Rich and bold espresso shot with perfect crema", "3.50", "https://images.pexels.com/photos/312418/pexels-photo-312418.jpeg", CategoryEspresso},
		{"caramel-macchiato", "Caramel Macchiato", "Smooth espresso with steamed milk and caramel drizzle", "5.25", "https://images.pexels.com/photos/373639/pexels-photo-373639.jpeg", CategoryLatte},
		{"vanilla-latte", "Vanilla Latte", "Creamy latte with vanilla syrup and perfect foam art", "4.95", "https://images.pexels.com/photos/851555/pexels-photo-851555.jpeg", CategoryLatte},
		{"traditional-cappuccino", "Traditional Cappuccino", "Equal parts espresso, steamed milk, and foam", "4.25", "https://images.pexels.com/photos/302899/pexels-photo-302899.jpeg", CategoryCappuccino},
		{"house-americano", "House Americano", "Double shot espresso with hot water", "3.75", "https://images.pexels.com/photos/1251175/pexels-photo-1251175.jpeg", CategoryAmericano},
		{"mocha-delight", "Mocha Delight", "Espresso with chocolate syrup and whipped cream", "5.50", "https://images.pexels.com/photos/414720/pexels-photo-414720.jpeg", CategorySpecial},
		{"iced-coffee", "Iced Coffee", "Cold brew coffee served over ice", "4.00", "https://images.pexels.com/photos/1251175/pexels-photo-1251175.jpeg", CategoryAmericano},
		{"hazelnut-latte", "Hazelnut Latte", "Smooth latte with hazelnut syrup", "5.00", "https://images.pexels.com/photos/851555/pexels-photo-851555.jpeg", CategoryLatte},
	}

	base = base.UTC().Truncate(time.Second)
	out := make([]CatalogItem, len(rows))
	for i, r := range rows {
		out[i] = CatalogItem{
			ID:          r.id,
			Name:        r.name,
			Description: r.desc,
			Price:       decimal.RequireFromString(r.price),
			ImageURL:    r.image,
			Category:    r.cat,
			Available:   true,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}
