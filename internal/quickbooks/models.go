package quickbooks

import "time"

// Ref points at another QuickBooks entity.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address,omitempty"`
}

type PhoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type MemoRef struct {
	Value string `json:"value"`
}

type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type MetaData struct {
	CreateTime      time.Time `json:"CreateTime"`
	LastUpdatedTime time.Time `json:"LastUpdatedTime"`
}

type SalesItemLineDetail struct {
	ItemRef   *Ref    `json:"ItemRef,omitempty"`
	Qty       float64 `json:"Qty,omitempty"`
	UnitPrice float64 `json:"UnitPrice,omitempty"`
}

// Line is an invoice line. Only SalesItemLineDetail lines are written; other
// detail types are read back as-is.
type Line struct {
	ID                  string               `json:"Id,omitempty"`
	LineNum             int                  `json:"LineNum,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              float64              `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

type Invoice struct {
	ID           string        `json:"Id,omitempty"`
	SyncToken    string        `json:"SyncToken,omitempty"`
	Sparse       bool          `json:"sparse,omitempty"`
	DocNumber    string        `json:"DocNumber,omitempty"`
	TxnDate      string        `json:"TxnDate,omitempty"`
	DueDate      string        `json:"DueDate,omitempty"`
	CustomerRef  *Ref          `json:"CustomerRef,omitempty"`
	Line         []Line        `json:"Line,omitempty"`
	TotalAmt     float64       `json:"TotalAmt,omitempty"`
	Balance      float64       `json:"Balance,omitempty"`
	BillEmail    *EmailAddress `json:"BillEmail,omitempty"`
	CustomerMemo *MemoRef      `json:"CustomerMemo,omitempty"`
	PrivateNote  string        `json:"PrivateNote,omitempty"`
	EmailStatus  string        `json:"EmailStatus,omitempty"`
	MetaData     *MetaData     `json:"MetaData,omitempty"`
}

type Customer struct {
	ID               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	DisplayName      string           `json:"DisplayName"`
	CompanyName      string           `json:"CompanyName,omitempty"`
	GivenName        string           `json:"GivenName,omitempty"`
	FamilyName       string           `json:"FamilyName,omitempty"`
	PrimaryEmailAddr *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *PhoneNumber     `json:"PrimaryPhone,omitempty"`
	BillAddr         *PhysicalAddress `json:"BillAddr,omitempty"`
	Balance          float64          `json:"Balance,omitempty"`
	Active           bool             `json:"Active,omitempty"`
}

type Item struct {
	ID               string  `json:"Id,omitempty"`
	SyncToken        string  `json:"SyncToken,omitempty"`
	Name             string  `json:"Name"`
	Description      string  `json:"Description,omitempty"`
	Type             string  `json:"Type,omitempty"`
	UnitPrice        float64 `json:"UnitPrice,omitempty"`
	IncomeAccountRef *Ref    `json:"IncomeAccountRef,omitempty"`
	Active           bool    `json:"Active,omitempty"`
}

type Account struct {
	ID             string `json:"Id,omitempty"`
	Name           string `json:"Name"`
	AccountType    string `json:"AccountType"`
	AccountSubType string `json:"AccountSubType,omitempty"`
	Active         bool   `json:"Active,omitempty"`
}

type CompanyInfo struct {
	ID          string           `json:"Id,omitempty"`
	CompanyName string           `json:"CompanyName"`
	LegalName   string           `json:"LegalName,omitempty"`
	Country     string           `json:"Country,omitempty"`
	Email       *EmailAddress    `json:"Email,omitempty"`
	CompanyAddr *PhysicalAddress `json:"CompanyAddr,omitempty"`
}

// queryResponse is the envelope of a /query call.
type queryResponse struct {
	QueryResponse struct {
		Invoice       []Invoice  `json:"Invoice"`
		Customer      []Customer `json:"Customer"`
		Item          []Item     `json:"Item"`
		Account       []Account  `json:"Account"`
		StartPosition int        `json:"startPosition"`
		MaxResults    int        `json:"maxResults"`
		TotalCount    int        `json:"totalCount"`
	} `json:"QueryResponse"`
}
