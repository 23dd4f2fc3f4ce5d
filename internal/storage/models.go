package storage

// User mirrors a row of the users table.
type User struct {
	ID                  int64
	PhoneNumber         string
	Name                string
	BudgetFixedCents    int64
	BudgetVariableCents int64
	BudgetAntCents      int64
	Level               string
	Points              int64
	LastInteraction     string
	CreatedAt           string
	UpdatedAt           string
}

// Transaction mirrors a row of the transactions table.
type Transaction struct {
	ID              int64
	UserID          int64
	PhoneNumber     string
	Type            string
	Category        string
	AmountCents     int64
	Description     string
	OriginalMessage string
	Date            string
	Month           int64
	Year            int64
	IsRecurring     int64
	CreatedAt       string
	UpdatedAt       string
}

type TypeTotalRow struct {
	Type       string
	TotalCents int64
	Count      int64
}

type CategoryTotalRow struct {
	Category   string
	Type       string
	TotalCents int64
	Count      int64
}
