package validate

import (
	"strings"
	"testing"
)

func TestClientID(t *testing.T) {
	valid := []string{"desk-1", "a", "workstation_3", "0b6c9f2e-5d1a-4f7e-9c3b-2a8d671e0f44"}
	for _, id := range valid {
		if !ClientID(id) {
			t.Errorf("ClientID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "desk 1", "desk/1", "desk.1", strings.Repeat("x", ClientIDMaxLen+1)}
	for _, id := range invalid {
		if ClientID(id) {
			t.Errorf("ClientID(%q) = true, want false", id)
		}
	}
}

func TestOrderNumber(t *testing.T) {
	valid := []string{"OD-100", "2025-0042", "Pedido 42"}
	for _, n := range valid {
		if !OrderNumber(n) {
			t.Errorf("OrderNumber(%q) = false, want true", n)
		}
	}

	invalid := []string{"", "a/b", "a\\b", "a\nb", strings.Repeat("9", OrderNumberMaxLen+1)}
	for _, n := range invalid {
		if OrderNumber(n) {
			t.Errorf("OrderNumber(%q) = true, want false", n)
		}
	}
}
