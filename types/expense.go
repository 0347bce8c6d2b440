package types

import "time"

// ExpenseCategory is the closed set of spend categories.
type ExpenseCategory string

const (
	CategoryFood         ExpenseCategory = "food"
	CategoryDrinks       ExpenseCategory = "drinks"
	CategoryShopping     ExpenseCategory = "shopping"
	CategoryExperience   ExpenseCategory = "experience"
	CategoryCounter      ExpenseCategory = "counter"
	CategoryTravel       ExpenseCategory = "travel"
	CategoryLocalCommute ExpenseCategory = "local commute"
)

// IsValid checks if the category is one of the supported values.
func (c ExpenseCategory) IsValid() bool {
	switch c {
	case CategoryFood, CategoryDrinks, CategoryShopping, CategoryExperience,
		CategoryCounter, CategoryTravel, CategoryLocalCommute:
		return true
	default:
		return false
	}
}

// String provides a string representation of the category.
func (c ExpenseCategory) String() string {
	return string(c)
}

// Categories returns all supported categories.
func Categories() []ExpenseCategory {
	return []ExpenseCategory{
		CategoryFood, CategoryDrinks, CategoryShopping, CategoryExperience,
		CategoryCounter, CategoryTravel, CategoryLocalCommute,
	}
}

// Location is an optional geotag on an expense. Any subset of fields may be
// present.
type Location struct {
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
	Label string   `json:"label,omitempty"`
}

// Expense represents a single spend within a trip. Expenses are immutable
// once created; the only lifecycle operation besides creation is deletion,
// which also releases the associated receipt image.
type Expense struct {
	ID       string          `json:"id"`
	TripID   string          `json:"tripId"`
	Amount   float64         `json:"amount"` // units of the trip's currency
	Category ExpenseCategory `json:"category"`
	// Timestamp is when the spend occurred, distinct from CreatedAt.
	Timestamp time.Time `json:"timestamp"`
	Location  *Location `json:"location,omitempty"`
	Notes     string    `json:"notes"`
	// ImageURL is an opaque receipt reference owned by the storage
	// collaborator; the engine only threads it through.
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateExpenseParams holds the caller-supplied fields for adding an expense.
type CreateExpenseParams struct {
	Amount    float64         `json:"amount"`
	Category  ExpenseCategory `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
	Location  *Location       `json:"location,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}
