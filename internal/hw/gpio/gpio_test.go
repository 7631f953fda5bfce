package gpio

import "testing"

func TestMockDriver_ReadBackWrittenLevel(t *testing.T) {
	d := &MockDriver{}
	if err := d.SetupPin(24, Output); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}

	lvl, err := d.ReadPin(24)
	if err != nil {
		t.Fatalf("ReadPin: %v", err)
	}
	if lvl != Low {
		t.Errorf("unwritten pin = %v, want LOW", lvl)
	}

	if err := d.WritePin(24, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if lvl, _ := d.ReadPin(24); lvl != High {
		t.Errorf("pin 24 = %v, want HIGH", lvl)
	}
	if lvl, _ := d.ReadPin(25); lvl != Low {
		t.Errorf("pin 25 = %v, want LOW (untouched)", lvl)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", d)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("String() = %q/%q", High.String(), Low.String())
	}
}
