package eventhub

import (
	"reflect"
	"testing"
)

func TestEmitCallsHooksInRegistrationOrder(t *testing.T) {
	var hub Hub
	var order []string
	hub.On("connected", "a", func(args ...any) { order = append(order, "a") })
	hub.On("connected", "b", func(args ...any) { order = append(order, "b") })
	hub.On("connected", "c", func(args ...any) { order = append(order, "c") })

	hub.Emit("connected")

	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Fatalf("expected a,b,c in order, got %v", order)
	}
}

func TestEmitPassesArgsThrough(t *testing.T) {
	var hub Hub
	var got []any
	hub.On("crypt_modeselected", "recorder", func(args ...any) { got = args })

	hub.Emit("crypt_modeselected", "aes")

	if len(got) != 1 || got[0] != "aes" {
		t.Fatalf("expected args [aes], got %v", got)
	}
}

func TestEmitOnUnregisteredEventIsNoop(t *testing.T) {
	var hub Hub
	hub.Emit("nobody_listens")
}

func TestOnReplacesExistingHookWithSameNameWithoutReordering(t *testing.T) {
	var hub Hub
	var order []string
	hub.On("tick", "a", func(args ...any) { order = append(order, "a1") })
	hub.On("tick", "b", func(args ...any) { order = append(order, "b") })
	hub.On("tick", "a", func(args ...any) { order = append(order, "a2") })

	hub.Emit("tick")

	if !reflect.DeepEqual(order, []string{"a2", "b"}) {
		t.Fatalf("expected replaced a to keep its original position, got %v", order)
	}
}

func TestOffRemovesHook(t *testing.T) {
	var hub Hub
	called := false
	hub.On("kick", "a", func(args ...any) { called = true })
	hub.Off("kick", "a")

	hub.Emit("kick")

	if called {
		t.Fatal("expected removed hook not to fire")
	}
}

func TestHubZeroValueIsReadyToUse(t *testing.T) {
	var hub Hub
	hub.Emit("anything")
	hub.On("anything", "x", func(args ...any) {})
	hub.Emit("anything")
}
