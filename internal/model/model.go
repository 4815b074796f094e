// internal/model/model.go
package model

import "time"

const TimeFormat = time.RFC3339

// Session is the live authentication state as reported by the identity
// provider. It is reconstructed on every auth event and never persisted here.
type Session struct {
	Present     bool   `json:"present"`
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

// User mirrors the profiles collection. Permissions, when non-empty, is an
// explicit override list that replaces the role-derived set.
type User struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	Username    string       `json:"username"`
	Role        string       `json:"role"`
	Permissions []Permission `json:"permissions,omitempty"`
}

type InventoryItem struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Stock         int        `json:"stock"`
	Unit          string     `json:"unit"`
	MinStock      int        `json:"min_stock"`
	MaxStock      int        `json:"max_stock"`
	AverageCost   float64    `json:"average_cost"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	BatchNumber   string     `json:"batch_number,omitempty"`
	Location      string     `json:"location"`
	LastChecked   *time.Time `json:"last_checked,omitempty"`
	LastCheckedBy string     `json:"last_checked_by,omitempty"`
}

// Order statuses. Transitions move forward only; RECEIVED records the
// receipt timestamp used by purchase-cycle analytics.
const (
	OrderPending   = "PENDING"
	OrderOrdered   = "ORDERED"
	OrderReceived  = "RECEIVED"
	OrderCancelled = "CANCELLED"
)

type Order struct {
	ID         string      `json:"id"`
	PONumber   string      `json:"po_number"`
	Vendor     string      `json:"vendor"`
	Status     string      `json:"status"`
	OrderedAt  *time.Time  `json:"ordered_at,omitempty"`
	ReceivedAt *time.Time  `json:"received_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Items      []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID              string  `json:"id"`
	OrderID         string  `json:"order_id"`
	InventoryItemID string  `json:"inventory_item_id,omitempty"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	UnitCost        float64 `json:"unit_cost"`
	Total           float64 `json:"total"`
}

type PriceItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

type MedicalCode struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	GroupID     string `json:"group_id,omitempty"`
	Insurer     string `json:"insurer,omitempty"`
}

type CodeGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type FormTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DailyReport struct {
	ID           string    `json:"id"`
	ReportDate   time.Time `json:"report_date"`
	TotalIncome  float64   `json:"total_income"`
	TotalExpense float64   `json:"total_expense"`
	Notes        string    `json:"notes,omitempty"`
	CreatedBy    string    `json:"created_by"`
}

// RoleConfig is one row per role in the role_permissions view of the world:
// the remote store keeps one row per role+permission pair, this is the
// aggregated shape the engine works with.
type RoleConfig struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// ActivityLog entries are append-only; only Details may be edited afterwards
// (audit correction), and only by elevated roles.
type ActivityLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	User      string    `json:"user"`
}

// Billing rule kinds.
const (
	RuleSurcharge = "SURCHARGE"
	RuleDiscount  = "DISCOUNT"
)

// BillingRule is a locally maintained price adjustment applied on top of the
// remote price list, scoped to a price-item category when Category is set.
type BillingRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Kind      string    `json:"kind"`
	Percent   float64   `json:"percent"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Petty cash actions.
const (
	CashDeposit    = "DEPOSIT"
	CashWithdrawal = "WITHDRAWAL"
)

type PettyCashTransaction struct {
	ID             string    `json:"id"`
	User           string    `json:"user"`
	Amount         float64   `json:"amount"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason"`
	RunningBalance float64   `json:"running_balance"`
	Timestamp      time.Time `json:"timestamp"`
}

// ItemScan is the structured result of a vision scan of a physical item.
type ItemScan struct {
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	BatchNumber string     `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	Quantity    int        `json:"quantity"`
}
