package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/schoolguard/device-guardian/internal/events"
)

var testNow = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

var deviceCols = []string{"id", "school_id", "serial_number", "asset_tag", "device_name", "device_type", "status", "battery_percent", "last_seen", "created_at", "updated_at"}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn), mock
}

func deviceRow(id, schoolID int64, serial, tag string) *sqlmock.Rows {
	return sqlmock.NewRows(deviceCols).
		AddRow(id, schoolID, serial, tag, "", "Chromebook", StatusOnline, 80, testNow, testNow, testNow)
}

// TestNewDB tests the NewDB constructor with various scenarios.
func TestNewDB(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{name: "invalid DSN", dsn: "invalid-dsn"},
		{name: "empty DSN", dsn: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := NewDB(tt.dsn)
			if err == nil {
				db.Close()
				t.Errorf("NewDB(%q) expected error", tt.dsn)
			}
		})
	}
}

func TestDB_Close(t *testing.T) {
	db := &DB{conn: nil}
	if err := db.Close(); err != nil {
		t.Errorf("Close() with nil conn error = %v, want nil", err)
	}
}

func TestDB_FindDeviceBySerial(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantID    int64
		wantNil   bool
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM devices WHERE school_id = \\$1 AND serial_number = \\$2").
					WithArgs(int64(1), "ABC123").
					WillReturnRows(deviceRow(7, 1, "ABC123", "TAG-7"))
			},
			wantID: 7,
		},
		{
			name: "not found is nil without error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM devices").
					WithArgs(int64(1), "ABC123").
					WillReturnRows(sqlmock.NewRows(deviceCols))
			},
			wantNil: true,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM devices").
					WithArgs(int64(1), "ABC123").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setupMock(mock)

			d, err := db.FindDeviceBySerial(ctx, 1, "ABC123")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindDeviceBySerial() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNil && d != nil {
				t.Errorf("FindDeviceBySerial() = %+v, want nil", d)
			}
			if tt.wantID != 0 {
				if d == nil || d.ID != tt.wantID {
					t.Fatalf("FindDeviceBySerial() = %+v, want id %d", d, tt.wantID)
				}
				if d.BatteryPercent == nil || *d.BatteryPercent != 80 {
					t.Errorf("BatteryPercent = %v, want 80", d.BatteryPercent)
				}
				if d.LastSeen == nil || !d.LastSeen.Equal(testNow) {
					t.Errorf("LastSeen = %v, want %v", d.LastSeen, testNow)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestDB_FindDeviceByMAC_NormalizesAddress(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM device_network_identities n JOIN devices d").
		WithArgs("aa:bb:cc:dd:ee:ff", int64(3)).
		WillReturnRows(deviceRow(9, 3, "S9", "T9"))

	d, err := db.FindDeviceByMAC(context.Background(), 3, " AA-BB-CC-DD-EE-FF ")
	if err != nil {
		t.Fatalf("FindDeviceByMAC() error = %v", err)
	}
	if d == nil || d.ID != 9 {
		t.Fatalf("FindDeviceByMAC() = %+v, want id 9", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_GetDevice_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM devices WHERE id = \\$1").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(deviceCols))

	_, err := db.GetDevice(context.Background(), 42)
	if err == nil || !strings.Contains(err.Error(), "device not found") {
		t.Errorf("GetDevice() error = %v, want not found", err)
	}
}

func TestDB_OfflineSweep(t *testing.T) {
	ctx := context.Background()
	cutoff := testNow.Add(-20 * time.Minute)
	school := int64(5)

	tests := []struct {
		name     string
		schoolID *int64
		wantArg  any
		affected int64
	}{
		{name: "all schools", schoolID: nil, wantArg: nil, affected: 3},
		{name: "one school", schoolID: &school, wantArg: int64(5), affected: 1},
		{name: "nothing stale", schoolID: nil, wantArg: nil, affected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec("UPDATE devices SET status = 'offline'").
				WithArgs(cutoff, tt.wantArg).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			n, err := db.OfflineSweep(ctx, tt.schoolID, cutoff)
			if err != nil {
				t.Fatalf("OfflineSweep() error = %v", err)
			}
			if int64(n) != tt.affected {
				t.Errorf("OfflineSweep() = %d, want %d", n, tt.affected)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func webEvent(schoolID int64, deviceID *int64) *events.NormalizedEvent {
	return &events.NormalizedEvent{
		SchoolID:  schoolID,
		DeviceID:  deviceID,
		EventType: events.TypeWebAccess,
		Severity:  events.SeverityMedium,
		Source:    "sonicwall",
		Message:   "web_access blocked: badsite.com",
		Payload:   events.WebActivityPayload(events.WebActivity{Source: "sonicwall"}),
		CreatedAt: testNow,
	}
}

func TestDB_InsertEvent_WithNetworkIdentity(t *testing.T) {
	db, mock := newMock(t)
	deviceID := int64(7)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO device_network_identities").
		WithArgs(int64(7), "aa:bb:cc:dd:ee:ff", "lab-cb-07", "10.1.2.3", testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(int64(1), int64(7), events.TypeWebAccess, events.SeverityMedium, "sonicwall", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectCommit()

	ev := webEvent(1, &deviceID)
	err := db.InsertEvent(context.Background(), ev, &NetworkUpsert{
		DeviceID: 7,
		MAC:      "AA:BB:CC:DD:EE:FF",
		IP:       "10.1.2.3",
		Hostname: "lab-cb-07",
		SeenAt:   testNow,
	})
	if err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if ev.ID != 101 {
		t.Errorf("event ID = %d, want 101", ev.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_InsertEvent_RollsBackOnFailure(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(int64(1), nil, events.TypeWebAccess, events.SeverityMedium, "sonicwall", sqlmock.AnyArg(), sqlmock.AnyArg(), testNow).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := db.InsertEvent(context.Background(), webEvent(1, nil), nil)
	if err == nil || !strings.Contains(err.Error(), "failed to insert event") {
		t.Fatalf("InsertEvent() error = %v, want insert failure", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_RecordTelemetry(t *testing.T) {
	db, mock := newMock(t)
	battery := 10

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE devices SET battery_percent").
		WithArgs(int64(7), int64(10), testNow).
		WillReturnRows(sqlmock.NewRows(deviceCols).
			AddRow(7, 1, "ABC123", "TAG-7", "", "", StatusOnline, 10, testNow, testNow, testNow))
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(55))
	mock.ExpectCommit()

	ev := events.NormalizeTelemetry(1, events.Telemetry{BatteryPercent: &battery}, testNow)
	d, err := db.RecordTelemetry(context.Background(), 7, &battery, testNow, ev)
	if err != nil {
		t.Fatalf("RecordTelemetry() error = %v", err)
	}
	if d.BatteryPercent == nil || *d.BatteryPercent != 10 {
		t.Errorf("BatteryPercent = %v, want 10", d.BatteryPercent)
	}
	if ev.DeviceID == nil || *ev.DeviceID != 7 {
		t.Errorf("event DeviceID = %v, want 7", ev.DeviceID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_RecordTelemetry_DeviceMissing(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE devices SET battery_percent").
		WillReturnRows(sqlmock.NewRows(deviceCols))
	mock.ExpectRollback()

	ev := events.NormalizeTelemetry(1, events.Telemetry{}, testNow)
	_, err := db.RecordTelemetry(context.Background(), 7, nil, testNow, ev)
	if err == nil || !strings.Contains(err.Error(), "device not found") {
		t.Errorf("RecordTelemetry() error = %v, want device not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_SyncInventoryDevice(t *testing.T) {
	db, mock := newMock(t)

	cols := append(append([]string{}, deviceCols...), "created")
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO devices").
		WithArgs(int64(1), "SER1", "TAG-1", "Chromebook", StatusOnline, testNow).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(12, 1, "SER1", "TAG-1", "", "Chromebook", StatusOnline, nil, testNow, testNow, testNow, true))
	mock.ExpectExec("INSERT INTO external_device_ids").
		WithArgs(int64(12), "google", "g-device-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))
	mock.ExpectCommit()

	seen := testNow
	inv := events.Inventory{SerialNumber: "SER1", AssetTag: "TAG-1", ExternalID: "g-device-1"}
	ev := events.NormalizeInventory(1, "google", inv, testNow)
	d, created, err := db.SyncInventoryDevice(context.Background(), InventoryRecord{
		SchoolID:     1,
		Source:       "google",
		ExternalID:   "g-device-1",
		SerialNumber: "SER1",
		AssetTag:     "TAG-1",
		DeviceType:   "Chromebook",
		LastSeen:     &seen,
	}, ev)
	if err != nil {
		t.Fatalf("SyncInventoryDevice() error = %v", err)
	}
	if !created {
		t.Error("SyncInventoryDevice() created = false, want true")
	}
	if d.ID != 12 || d.BatteryPercent != nil {
		t.Errorf("SyncInventoryDevice() device = %+v", d)
	}
	if ev.ID != 77 || ev.DeviceID == nil || *ev.DeviceID != 12 {
		t.Errorf("inventory event = %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_SyncInventoryDevice_RequiresSerial(t *testing.T) {
	db, _ := newMock(t)
	_, _, err := db.SyncInventoryDevice(context.Background(), InventoryRecord{SchoolID: 1}, &events.NormalizedEvent{})
	if err == nil {
		t.Error("SyncInventoryDevice() expected error for empty serial")
	}
}

func TestDB_ListEnabledRules(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM policy_rules WHERE school_id = \\$1 AND enabled = TRUE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "name", "enabled", "rule_type", "params", "severity", "created_at"}).
			AddRow(1, 1, "Block games", true, "deny_domain", []byte(`{"domain":"badsite.com"}`), "high", testNow).
			AddRow(2, 1, "Future", true, "time_window", []byte(`{}`), "low", testNow))

	rules, err := db.ListEnabledRules(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListEnabledRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("ListEnabledRules() returned %d rules, want 2", len(rules))
	}
	if string(rules[0].Params) != `{"domain":"badsite.com"}` {
		t.Errorf("Params = %s", rules[0].Params)
	}
}

func TestDB_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
	}{
		{name: "valid key", exists: true},
		{name: "unknown key", exists: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(")).
				WithArgs(int64(1), "k-123").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			ok, err := db.ValidateAPIKey(context.Background(), 1, "k-123")
			if err != nil {
				t.Fatalf("ValidateAPIKey() error = %v", err)
			}
			if ok != tt.exists {
				t.Errorf("ValidateAPIKey() = %v, want %v", ok, tt.exists)
			}
		})
	}
}

func TestDB_AdminEmails(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT email FROM users").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a@district.org").AddRow("b@district.org"))

	emails, err := db.AdminEmails(context.Background(), 1)
	if err != nil {
		t.Fatalf("AdminEmails() error = %v", err)
	}
	if len(emails) != 2 || emails[0] != "a@district.org" {
		t.Errorf("AdminEmails() = %v", emails)
	}
}

func TestDB_InsertAlert(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("INSERT INTO alerts").
		WithArgs(int64(1), nil, AlertTypeSecurity, "high", "Policy 'x' triggered.").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, testNow))

	a := &Alert{SchoolID: 1, AlertType: AlertTypeSecurity, Severity: "high", Message: "Policy 'x' triggered."}
	if err := db.InsertAlert(context.Background(), a); err != nil {
		t.Fatalf("InsertAlert() error = %v", err)
	}
	if a.ID != 9 || !a.CreatedAt.Equal(testNow) || a.Acknowledged {
		t.Errorf("InsertAlert() alert = %+v", a)
	}
}

func TestDB_ListAlerts(t *testing.T) {
	db, mock := newMock(t)
	alertCols := []string{"id", "school_id", "device_id", "alert_type", "severity", "message", "acknowledged", "created_at"}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("FROM alerts WHERE school_id = \\$1 ORDER BY created_at DESC").
		WithArgs(int64(1), 50, 0).
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow(2, 1, 7, AlertTypeThreshold, "medium", "battery", false, testNow).
			AddRow(1, 1, nil, AlertTypeSecurity, "high", "policy", true, testNow.Add(-time.Hour)))

	res, err := db.ListAlerts(context.Background(), 1, 50, 0)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if res.Total != 2 || len(res.Alerts) != 2 {
		t.Fatalf("ListAlerts() = %+v", res)
	}
	if res.Alerts[0].DeviceID == nil || *res.Alerts[0].DeviceID != 7 {
		t.Errorf("first alert DeviceID = %v, want 7", res.Alerts[0].DeviceID)
	}
	if res.Alerts[1].DeviceID != nil {
		t.Errorf("second alert DeviceID = %v, want nil", res.Alerts[1].DeviceID)
	}
}

func TestDB_AcknowledgeAlert_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("UPDATE alerts SET acknowledged = TRUE").
		WithArgs(int64(9), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.AcknowledgeAlert(context.Background(), 2, 9)
	if err == nil || !strings.Contains(err.Error(), "alert not found") {
		t.Errorf("AcknowledgeAlert() error = %v, want not found", err)
	}
}

func TestDB_RecordDelivery(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO alert_deliveries").
		WithArgs(int64(9), "a@district.org", DeliveryFailed, "connection refused", 4, testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := db.RecordDelivery(context.Background(), &AlertDelivery{
		AlertID:   9,
		Recipient: "a@district.org",
		Status:    DeliveryFailed,
		Error:     "connection refused",
		Attempts:  4,
		UpdatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("RecordDelivery() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_DeleteDevice(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM devices")).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for _, table := range []string{"device_network_identities", "external_device_ids", "alert_deliveries", "alerts", "events", "devices"} {
		mock.ExpectExec("DELETE FROM " + table + " WHERE").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := db.DeleteDevice(context.Background(), 1, 7); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDB_DeleteDevice_OtherSchool(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM devices")).
		WithArgs(int64(7), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := db.DeleteDevice(context.Background(), 2, 7)
	if err == nil || !strings.Contains(err.Error(), "device not found") {
		t.Errorf("DeleteDevice() error = %v, want not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
