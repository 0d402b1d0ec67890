package breezer

import (
	"testing"
	"time"
)

func baseState(deviceID string, fanSpeed int) DeviceState {
	return DeviceState{
		DeviceID:   deviceID,
		Power:      true,
		FanSpeed:   fanSpeed,
		Mode:       ModeSupplyVentilation,
		TargetTemp: 21.0,
		RoomTemp:   UnknownRoomTemp,
		Online:     true,
		Source:     SourcePoll,
	}
}

func TestTrackerOverlayMasksStaleValue(t *testing.T) {
	now := time.Now()
	tr := NewTracker(10 * time.Second)

	tr.Record("brz-1", FieldFanSpeed, 7, now)

	// Poll 2s later still reports the old speed.
	polled := baseState("brz-1", 3)
	got := tr.ApplyOverlay("brz-1", polled, now.Add(2*time.Second))

	if got.FanSpeed != 7 {
		t.Errorf("FanSpeed = %d, want 7 (commanded value masks stale poll)", got.FanSpeed)
	}
	if polled.FanSpeed != 3 {
		t.Errorf("polled snapshot mutated: FanSpeed = %d, want 3", polled.FanSpeed)
	}
}

func TestTrackerExpiryRevertsToPolledValue(t *testing.T) {
	now := time.Now()
	tr := NewTracker(10 * time.Second)

	tr.Record("brz-1", FieldFanSpeed, 7, now)

	// Poll after the guard window: the true device state wins.
	got := tr.ApplyOverlay("brz-1", baseState("brz-1", 3), now.Add(12*time.Second))
	if got.FanSpeed != 3 {
		t.Errorf("FanSpeed = %d, want 3 after guard window expiry", got.FanSpeed)
	}
	if n := tr.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0 after expiry", n)
	}
}

func TestTrackerConfirmationRetiresEarly(t *testing.T) {
	now := time.Now()
	tr := NewTracker(10 * time.Second)

	tr.Record("brz-1", FieldFanSpeed, 7, now)

	// Device applied the command: polled value equals commanded value.
	got := tr.ApplyOverlay("brz-1", baseState("brz-1", 7), now.Add(2*time.Second))
	if got.FanSpeed != 7 {
		t.Fatalf("FanSpeed = %d, want 7", got.FanSpeed)
	}
	if n := tr.PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0 after confirmation", n)
	}

	// A later genuine external change must not be masked.
	got = tr.ApplyOverlay("brz-1", baseState("brz-1", 2), now.Add(4*time.Second))
	if got.FanSpeed != 2 {
		t.Errorf("FanSpeed = %d, want 2 (confirmed command no longer masks)", got.FanSpeed)
	}
}

func TestTrackerSupersede(t *testing.T) {
	now := time.Now()
	tr := NewTracker(10 * time.Second)

	tr.Record("brz-1", FieldFanSpeed, 5, now)
	tr.Record("brz-1", FieldFanSpeed, 7, now.Add(time.Second))

	if n := tr.PendingCount(); n != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (newer command supersedes)", n)
	}

	got := tr.ApplyOverlay("brz-1", baseState("brz-1", 3), now.Add(2*time.Second))
	if got.FanSpeed != 7 {
		t.Errorf("FanSpeed = %d, want 7 (only the latest command is honored)", got.FanSpeed)
	}
}

func TestTrackerIndependentFields(t *testing.T) {
	now := time.Now()
	tr := NewTracker(10 * time.Second)

	tr.Record("brz-1", FieldFanSpeed, 7, now)
	tr.Record("brz-1", FieldTargetTemp, 24.0, now)

	polled := baseState("brz-1", 3)
	got := tr.ApplyOverlay("brz-1", polled, now.Add(time.Second))

	if got.FanSpeed != 7 {
		t.Errorf("FanSpeed = %d, want 7", got.FanSpeed)
	}
	if got.TargetTemp != 24.0 {
		t.Errorf("TargetTemp = %v, want 24.0", got.TargetTemp)
	}
	if got.Mode != ModeSupplyVentilation {
		t.Errorf("Mode = %v, want unchanged supply_ventilation", got.Mode)
	}
}

func TestTrackerPrune(t *testing.T) {
	now := time.Now()
	tr := NewTracker(10 * time.Second)

	tr.Record("brz-1", FieldFanSpeed, 7, now)
	tr.Record("brz-2", FieldPower, true, now.Add(5*time.Second))

	tr.Prune(now.Add(11 * time.Second))

	if n := tr.PendingCount(); n != 1 {
		t.Errorf("PendingCount() = %d, want 1 (only the expired command pruned)", n)
	}
}

func TestTrackerNoPendingPassthrough(t *testing.T) {
	tr := NewTracker(10 * time.Second)
	polled := baseState("brz-1", 3)

	got := tr.ApplyOverlay("brz-1", polled, time.Now())
	if got != polled {
		t.Errorf("ApplyOverlay without pending commands = %+v, want unchanged %+v", got, polled)
	}
}
