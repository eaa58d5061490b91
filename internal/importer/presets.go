package importer

import "github.com/cleared-dev/finscan/internal/model"

func cols(date, desc, amount string) []model.ColumnBinding {
	c := []model.ColumnBinding{
		{Field: model.FieldDate, Header: date},
		{Field: model.FieldDescription, Header: desc},
	}
	if amount != "" {
		c = append(c, model.ColumnBinding{Field: model.FieldAmount, Header: amount})
	}
	return c
}

func builtinPresets() []Preset {
	return []Preset{
		{
			Name:        "chase_checking",
			Institution: "Chase",
			Identifiers: []string{"Details", "Posting Date", "Description", "Amount", "Type", "Balance"},
			Mapping: model.CsvMapping{
				Columns:    cols("Posting Date", "Description", "Amount"),
				DateFormat: "%m/%d/%Y",
				AmountMode: model.AmountSigned,
			},
		},
		{
			Name:        "chase_credit",
			Institution: "Chase",
			Identifiers: []string{"Transaction Date", "Post Date", "Description", "Category", "Type", "Amount", "Memo"},
			Mapping: model.CsvMapping{
				Columns:    cols("Transaction Date", "Description", "Amount"),
				DateFormat: "%m/%d/%Y",
				AmountMode: model.AmountSigned,
			},
		},
		{
			Name:        "bank_of_america",
			Institution: "Bank of America",
			Identifiers: []string{"Date", "Description", "Amount", "Running Bal."},
			Mapping: model.CsvMapping{
				Columns:    cols("Date", "Description", "Amount"),
				DateFormat: "%m/%d/%Y",
				AmountMode: model.AmountSigned,
			},
		},
		{
			Name:        "citi",
			Institution: "Citi",
			Identifiers: []string{"Status", "Date", "Description", "Debit", "Credit"},
			Mapping: model.CsvMapping{
				Columns:      cols("Date", "Description", ""),
				DateFormat:   "%m/%d/%Y",
				AmountMode:   model.AmountDebitCredit,
				DebitColumn:  "Debit",
				CreditColumn: "Credit",
			},
		},
		{
			Name:        "capital_one",
			Institution: "Capital One",
			Identifiers: []string{"Transaction Date", "Posted Date", "Card No.", "Description", "Debit", "Credit"},
			Mapping: model.CsvMapping{
				Columns:      cols("Transaction Date", "Description", ""),
				DateFormat:   "%Y-%m-%d",
				AmountMode:   model.AmountDebitCredit,
				DebitColumn:  "Debit",
				CreditColumn: "Credit",
			},
		},
		{
			Name:        "mint_export",
			Institution: "Mint",
			Identifiers: []string{"Date", "Description", "Original Description", "Amount", "Transaction Type"},
			Mapping: model.CsvMapping{
				Columns: append(cols("Date", "Description", "Amount"),
					model.ColumnBinding{Field: model.FieldOriginalDescription, Header: "Original Description"}),
				DateFormat:    "%m/%d/%Y",
				AmountMode:    model.AmountTypeColumn,
				TypeColumn:    "Transaction Type",
				DebitKeywords: []string{"debit"},
			},
		},
	}
}
