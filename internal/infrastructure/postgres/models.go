package postgres

import "time"

type productRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	SKU           string `gorm:"column:sku"`
	PurchaseCount int64
	DeletedAt     *time.Time
}

func (productRow) TableName() string { return "products" }

type variantRow struct {
	ID        string `gorm:"primaryKey"`
	ProductID string
	Label     string
	Stock     int
}

func (variantRow) TableName() string { return "size_variants" }

type cartRow struct {
	UserID    string `gorm:"primaryKey"`
	UpdatedAt time.Time
}

func (cartRow) TableName() string { return "carts" }

type cartLineRow struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	UserID         string
	ProductID      string
	Size           string
	Quantity       int
	UnitPriceCents int64
	AddedAt        time.Time
}

func (cartLineRow) TableName() string { return "cart_lines" }

type discountRow struct {
	Code             string `gorm:"primaryKey"`
	Kind             string
	AmountOffCents   int64
	PercentOff       int64
	MinSubtotalCents int64
	StartsAt         *time.Time
	EndsAt           *time.Time
	UsageLimit       int64
	TimesUsed        int64
}

func (discountRow) TableName() string { return "discount_codes" }

type addressRow struct {
	ID         string `gorm:"primaryKey"`
	FullName   string
	Line1      string `gorm:"column:line1"`
	Line2      string `gorm:"column:line2"`
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

func (addressRow) TableName() string { return "addresses" }

type orderRow struct {
	ID                string `gorm:"primaryKey"`
	UserID            string
	Email             string
	Status            string
	Currency          string
	SubtotalCents     int64
	DiscountCents     int64
	DiscountCode      string
	TaxCents          int64
	ShippingCents     int64
	TotalCents        int64
	ShippingAddressID string
	BillingAddressID  string
	IdempotencyKey    *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
}

func (orderRow) TableName() string { return "orders" }

type orderItemRow struct {
	ID             string `gorm:"primaryKey"`
	OrderID        string
	Position       int
	ProductID      string
	VariantID      *string
	Name           string
	SKU            string `gorm:"column:sku"`
	Size           string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
}

func (orderItemRow) TableName() string { return "order_items" }

type paymentRow struct {
	ID          string `gorm:"primaryKey"`
	OrderID     string
	Provider    string
	ProviderRef string
	Status      string
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (paymentRow) TableName() string { return "payment_records" }

type eventRow struct {
	Seq       int64  `gorm:"->"`
	ID        string `gorm:"primaryKey"`
	OrderID   string
	Kind      string
	Message   string
	Metadata  map[string]string `gorm:"serializer:json;type:jsonb"`
	CreatedAt time.Time
}

func (eventRow) TableName() string { return "order_events" }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
