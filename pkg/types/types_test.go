package types

import (
	"encoding/json"
	"testing"
)

func TestAttributeMapRejectsNestedValues(t *testing.T) {
	var m AttributeMap
	err := json.Unmarshal([]byte(`{"color":"red","weight_kg":1.5,"fragile":true,"dims":{"w":1}}`), &m)
	if err == nil {
		t.Fatal("expected nested object to be rejected")
	}
}

func TestAttributeMapScanValue(t *testing.T) {
	in := AttributeMap{
		"color":     StringAttr("red"),
		"weight_kg": NumberAttr(1.5),
		"fragile":   BoolAttr(true),
	}
	stored, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var out AttributeMap
	if err := out.Scan(stored); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out["color"].String == nil || *out["color"].String != "red" {
		t.Fatalf("unexpected color %+v", out["color"])
	}
	if out["weight_kg"].Number == nil || *out["weight_kg"].Number != 1.5 {
		t.Fatalf("unexpected weight %+v", out["weight_kg"])
	}
	if out["fragile"].Bool == nil || !*out["fragile"].Bool {
		t.Fatalf("unexpected fragile %+v", out["fragile"])
	}
	if keys := out.Keys(); len(keys) != 3 || keys[0] != "color" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestAddressValueRequiresCountryCode(t *testing.T) {
	addr := Address{Recipient: "Ana", Line1: "1 Main St", City: "Austin", Country: "USA"}
	if _, err := addr.Value(); err == nil {
		t.Fatal("expected 3-letter country to be rejected")
	}
	addr.Country = "us"
	stored, err := addr.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var decoded Address
	if err := decoded.Scan(stored); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if decoded.Country != "US" {
		t.Fatalf("expected normalized country, got %q", decoded.Country)
	}
}
