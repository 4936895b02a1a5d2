package sequence

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	day := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		kind  Kind
		value int64
		want  string
	}{
		{KindLabOrder, 7, "LAB-20240115-007"},
		{KindRadOrder, 12, "RAD-20240115-012"},
		{KindPrescription, 3, "RX-20240115-003"},
		{KindBill, 41, "BILL-20240115-0041"},
		{KindAdmission, 1, "IPD-20240115-001"},
		{KindPurchaseOrder, 9, "PO-20240115-009"},
		{KindOPDToken, 7, "OPD007"},
		{KindPatient, 1, "P0001"},
		{KindHospitalCode, 101, "H101"},
	}
	for _, tt := range tests {
		if got := Format(tt.kind, tt.value, day); got != tt.want {
			t.Errorf("Format(%s, %d) = %q, want %q", tt.kind, tt.value, got, tt.want)
		}
	}
}

func TestFormat_WidensPastPadding(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if got := Format(KindOPDToken, 1234, day); got != "OPD1234" {
		t.Errorf("Format = %q, want OPD1234", got)
	}
}

func TestDailyKinds(t *testing.T) {
	if dailyKinds[KindPatient] {
		t.Error("patient numbers must not reset daily")
	}
	if dailyKinds[KindHospitalCode] {
		t.Error("hospital codes must not reset daily")
	}
	for _, k := range []Kind{KindOPDToken, KindLabOrder, KindRadOrder, KindPrescription, KindBill, KindAdmission} {
		if !dailyKinds[k] {
			t.Errorf("%s should reset daily", k)
		}
	}
}
