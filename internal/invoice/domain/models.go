// Package domain contains the supplier invoice model and workflow contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DateLayout is the wire format of issue and due dates.
const DateLayout = "2006-01-02"

// Invoice is a supplier invoice record.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey;autoIncrement:false"`
	Number        string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_invoices_number"`
	SupplierName  string          `gorm:"type:varchar(255);not null"`
	SupplierTaxID string          `gorm:"column:supplier_tax_id;type:varchar(255);not null"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	VatAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'UAH'"`
	Status        Status          `gorm:"type:varchar(16);not null;default:'pending'"`
	IssueDate     datatypes.Date  `gorm:"type:date;not null"`
	DueDate       datatypes.Date  `gorm:"type:date;not null"`
	CreatedAt     time.Time       `gorm:"precision:6;not null;index:idx_invoices_created_at"`
	// UpdatedAt is the row version for conditional updates and needs
	// microsecond precision in every dialect.
	UpdatedAt time.Time `gorm:"precision:6;not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceFields is the validated, normalized set of client-writable attributes.
type InvoiceFields struct {
	Number        string
	SupplierName  string
	SupplierTaxID string
	NetAmount     decimal.Decimal
	VatAmount     decimal.Decimal
	GrossAmount   decimal.Decimal
	Currency      string
	Status        Status
	IssueDate     time.Time
	DueDate       time.Time
}

// Apply replaces every client-writable attribute of inv.
func (f InvoiceFields) Apply(inv *Invoice) {
	inv.Number = f.Number
	inv.SupplierName = f.SupplierName
	inv.SupplierTaxID = f.SupplierTaxID
	inv.NetAmount = f.NetAmount.Round(2)
	inv.VatAmount = f.VatAmount.Round(2)
	inv.GrossAmount = f.GrossAmount.Round(2)
	inv.Currency = f.Currency
	inv.Status = f.Status
	inv.IssueDate = datatypes.Date(f.IssueDate)
	inv.DueDate = datatypes.Date(f.DueDate)
}

// IssueDateString formats the issue date as YYYY-MM-DD.
func (i Invoice) IssueDateString() string {
	return time.Time(i.IssueDate).Format(DateLayout)
}

// DueDateString formats the due date as YYYY-MM-DD.
func (i Invoice) DueDateString() string {
	return time.Time(i.DueDate).Format(DateLayout)
}
