package grocery

import (
	"strings"

	"github.com/dukerupert/shopmate/internal/model"
)

// Categorize returns the category for the given item name.
// Matching is case-insensitive: a category whose name equals the item name
// wins, otherwise the first category with a keyword contained in the name.
// Falls back to "Uncategorized" if nothing matches.
func Categorize(itemName string, categories []model.Category) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return model.DefaultCategory
	}

	// Phase 1: category name
	for _, c := range categories {
		if strings.ToLower(c.Name) == name {
			return c.Name
		}
	}

	// Phase 2: keyword substring, in category order
	for _, c := range categories {
		for _, k := range c.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" && strings.Contains(name, k) {
				return c.Name
			}
		}
	}

	return model.DefaultCategory
}

// SystemCategories returns the built-in categories every household starts
// with. Order matters: categories whose keywords overlap with broader ones
// come first ("ice cream" before "cream", "dish soap" before "soap").
func SystemCategories() []model.Category {
	out := make([]model.Category, len(systemCategories))
	for i, c := range systemCategories {
		out[i] = model.Category{
			ID:       c.id,
			Name:     c.name,
			Icon:     c.icon,
			Keywords: append([]string(nil), c.keywords...),
			IsSystem: true,
		}
	}
	return out
}

type systemCategory struct {
	id       string
	name     string
	icon     string
	keywords []string
}

var systemCategories = []systemCategory{
	{"sys-frozen", "Frozen", "snowflake", []string{
		"frozen", "ice cream", "popsicle", "ice pop", "pizza rolls", "tater tots", "waffles",
	}},
	{"sys-pantry", "Pantry", "archive", []string{
		"peanut butter", "canned", "broth", "pasta", "spaghetti", "noodle", "rice", "flour",
		"sugar", "olive oil", "vegetable oil", "vinegar", "ketchup", "mustard", "mayo",
		"salsa", "honey", "spice", "soup", "cereal", "oats", "jam", "jelly", "black beans",
		"baking soda",
	}},
	{"sys-household", "Household", "home", []string{
		"paper towel", "toilet paper", "dish soap", "detergent", "trash bag", "garbage bag",
		"aluminum foil", "plastic wrap", "sponge", "cleaner", "bleach", "napkin", "light bulb",
		"batteries",
	}},
	{"sys-personal-care", "Personal Care", "heart", []string{
		"shampoo", "conditioner", "toothpaste", "toothbrush", "deodorant", "soap", "lotion",
		"razor", "floss", "sunscreen", "tissues",
	}},
	{"sys-meat", "Meat & Seafood", "beef", []string{
		"chicken", "beef", "pork", "turkey", "bacon", "sausage", "steak", "salmon", "tuna",
		"shrimp", "fish", "lamb", "hot dog", "deli meat",
	}},
	{"sys-produce", "Produce", "apple", []string{
		"apple", "banana", "lettuce", "spinach", "tomato", "potato", "onion", "garlic",
		"carrot", "avocado", "lemon", "cucumber", "mushroom", "broccoli", "berries",
		"grape", "salad", "eggplant", "celery", "kale", "cilantro", "zucchini", "melon",
	}},
	{"sys-dairy", "Dairy", "milk", []string{
		"oat milk", "almond milk", "milk", "cheese", "yogurt", "butter", "cream", "egg",
	}},
	{"sys-bakery", "Bakery", "croissant", []string{
		"bread", "bagel", "muffin", "tortilla", "croissant", "baguette", "bun", "roll",
	}},
	{"sys-beverages", "Beverages", "coffee", []string{
		"coffee", "juice", "soda", "sparkling water", "water", "beer", "wine", "kombucha", "tea",
	}},
	{"sys-snacks", "Snacks", "cookie", []string{
		"chips", "crackers", "pretzels", "popcorn", "cookies", "candy", "chocolate", "nuts",
		"granola bar",
	}},
}
