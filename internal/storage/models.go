package storage

import "database/sql"

// Row types mirror the tables one to one. Dates, amounts and timestamps are TEXT.

type Movement struct {
	ID                 int64
	MovementDate       string
	Amount             string
	CategoryLabel      string
	SourceKind         string
	Ref                sql.NullString
	ApplicationAccount int64
}

type DailyBalance struct {
	BalanceDate    string
	OpeningBalance string
	ClosingBalance string
	Description    string
	Note           string
	CreatedAt      string
	UpdatedAt      string
}

type BankSnapshot struct {
	ID           int64
	SnapshotDate string
	BankID       string
	BankName     string
	Amount       string
}

type BillingTotal struct {
	ID                 int64
	BillingDate        string
	AccountID          string
	Amount             string
	ApplicationAccount int64
}

type ApplicationOpening struct {
	OpeningDate string
	Amount      string
	Note        string
}

type RecalcJob struct {
	ID            string
	Kind          string
	StartDate     string
	EndDate       string
	AnchorOpening sql.NullString
	Status        string
	Error         string
	CreatedAt     string
	UpdatedAt     string
}
