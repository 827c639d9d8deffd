package service

import (
	"strings"
	"testing"
)

const masterCSVHeader = "instrument_token,exchange_token,tradingsymbol,name,expiry,strike,tick_size,lot_size,instrument_type,series,segment,exchange\n"

func TestParseMasterCSV(t *testing.T) {
	csvData := masterCSVHeader +
		"300,1,NIFTY25SEP24000CE,NIFTY,2025-09-25,24000,0.05,75,CE,,NFO-OPT,NFO\n" +
		"101,2,RELIANCE,RELIANCE,,0,0.05,1,EQ,EQ,EQ,NSE\n"

	records, err := ParseMasterCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	opt := records[0]
	if opt.InstrumentToken != 300 || opt.Tradingsymbol != "NIFTY25SEP24000CE" {
		t.Errorf("bad option row: %+v", opt)
	}
	if opt.Strike != 24000 || opt.Expiry != "2025-09-25" || opt.InstrumentType != "CE" {
		t.Errorf("bad option fields: %+v", opt)
	}
	if !opt.IsOption() || !opt.IsDerivative() {
		t.Errorf("option classification wrong: %+v", opt)
	}

	eq := records[1]
	if eq.InstrumentToken != 101 || eq.Exchange != "NSE" || eq.LotSize != 1 {
		t.Errorf("bad equity row: %+v", eq)
	}
	if eq.IsOption() || eq.IsDerivative() {
		t.Errorf("equity classification wrong: %+v", eq)
	}
}

func TestParseMasterCSV_BadToken(t *testing.T) {
	csvData := masterCSVHeader +
		"notanumber,1,X,X,,0,0.05,1,EQ,EQ,EQ,NSE\n"

	if _, err := ParseMasterCSV(strings.NewReader(csvData)); err == nil {
		t.Fatal("expected error for non-numeric token")
	}
}

func TestParseMasterCSV_WrongColumnCount(t *testing.T) {
	csvData := masterCSVHeader + "300,1,X\n"

	if _, err := ParseMasterCSV(strings.NewReader(csvData)); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestParseMasterCSV_NoDataRows(t *testing.T) {
	if _, err := ParseMasterCSV(strings.NewReader(masterCSVHeader)); err == nil {
		t.Fatal("expected error for header-only input")
	}
}
