package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var alertTestColumns = []string{
	"alert_id", "rule_id", "device_id", "severity", "status", "description",
	"data", "resolution", "resolved_by", "resolved_at", "created_at", "updated_at",
}

func alertRow(alertID, status string) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(alertTestColumns).AddRow(
		alertID, "rule-1", "meter-1", "high", status, "power above threshold",
		[]byte(`{"power":6000}`), nil, nil, nil, now, now,
	)
}

func TestDB_CreateAlert(t *testing.T) {
	db, mock := newMockDB(t)

	ruleID := "rule-1"
	alert := &Alert{
		AlertID:     "alert-1",
		RuleID:      &ruleID,
		DeviceID:    "meter-1",
		Severity:    "high",
		Description: "power above threshold",
		Data:        map[string]any{"power": 6000.0},
	}

	mock.ExpectQuery("INSERT INTO alerts").
		WithArgs("alert-1", &ruleID, "meter-1", "high", "power above threshold", sqlmock.AnyArg()).
		WillReturnRows(alertRow("alert-1", "active"))

	created, err := db.CreateAlert(context.Background(), alert)
	if err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}
	if created.Status != "active" {
		t.Errorf("CreateAlert() status = %v, want active", created.Status)
	}
	if created.Data["power"] != 6000.0 {
		t.Errorf("CreateAlert() snapshot = %v, want power=6000", created.Data)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Mock expectations were not met: %v", err)
	}
}

func TestDB_GetOpenAlert(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantNil   bool
		wantErr   bool
	}{
		{
			name: "open alert exists",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("status != 'resolved'").
					WithArgs("rule-1", "meter-1").
					WillReturnRows(alertRow("alert-1", "active"))
			},
		},
		{
			name: "acknowledged still counts as open",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("status != 'resolved'").
					WithArgs("rule-1", "meter-1").
					WillReturnRows(alertRow("alert-1", "acknowledged"))
			},
		},
		{
			name: "no open alert",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("status != 'resolved'").
					WithArgs("rule-1", "meter-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantNil: true,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("status != 'resolved'").
					WithArgs("rule-1", "meter-1").
					WillReturnError(sql.ErrConnDone)
			},
			wantNil: true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.setupMock(mock)

			alert, err := db.GetOpenAlert(context.Background(), "rule-1", "meter-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetOpenAlert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (alert == nil) != tt.wantNil {
				t.Errorf("GetOpenAlert() = %v, wantNil %v", alert, tt.wantNil)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Mock expectations were not met: %v", err)
			}
		})
	}
}

func TestDB_AcknowledgeAlert(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "active alert acknowledged",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SET status = 'acknowledged'").
					WithArgs("alert-1").
					WillReturnRows(alertRow("alert-1", "acknowledged"))
			},
		},
		{
			name: "alert missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SET status = 'acknowledged'").
					WithArgs("alert-1").
					WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs("alert-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: ErrNotFound,
		},
		{
			name: "already resolved",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SET status = 'acknowledged'").
					WithArgs("alert-1").
					WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery("SELECT EXISTS").
					WithArgs("alert-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantErr: ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.setupMock(mock)

			alert, err := db.AcknowledgeAlert(context.Background(), "alert-1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AcknowledgeAlert() error = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("AcknowledgeAlert() error = %v", err)
				}
				if alert.Status != "acknowledged" {
					t.Errorf("AcknowledgeAlert() status = %v, want acknowledged", alert.Status)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Mock expectations were not met: %v", err)
			}
		})
	}
}

func TestDB_ResolveAlert(t *testing.T) {
	t.Run("resolves open alert", func(t *testing.T) {
		db, mock := newMockDB(t)
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows(alertTestColumns).AddRow(
			"alert-1", "rule-1", "meter-1", "high", "resolved", "power above threshold",
			[]byte(`{}`), "fixed", "user-1", now, now, now,
		)
		mock.ExpectQuery("SET status = 'resolved'").
			WithArgs("alert-1", "fixed", "user-1").
			WillReturnRows(rows)

		alert, err := db.ResolveAlert(context.Background(), "alert-1", "user-1", "fixed")
		if err != nil {
			t.Fatalf("ResolveAlert() error = %v", err)
		}
		if alert.Status != "resolved" {
			t.Errorf("ResolveAlert() status = %v, want resolved", alert.Status)
		}
		if alert.ResolvedAt == nil {
			t.Error("ResolveAlert() resolvedAt not set")
		}
		if alert.Resolution == nil || *alert.Resolution != "fixed" {
			t.Errorf("ResolveAlert() resolution = %v, want fixed", alert.Resolution)
		}
	})

	t.Run("double resolve is invalid transition", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SET status = 'resolved'").
			WithArgs("alert-1", "fixed", "user-1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("alert-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := db.ResolveAlert(context.Background(), "alert-1", "user-1", "fixed")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("ResolveAlert() error = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestDB_ListAlerts(t *testing.T) {
	db, mock := newMockDB(t)

	status := "active"
	device := "meter-1"
	mock.ExpectQuery("FROM alerts WHERE 1=1 AND status = \\$1 AND device_id = \\$2").
		WithArgs(status, device, 50, 0).
		WillReturnRows(alertRow("alert-1", "active"))

	alerts, err := db.ListAlerts(context.Background(), AlertFilter{Status: &status, DeviceID: &device}, 50, 0)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertID != "alert-1" {
		t.Errorf("ListAlerts() = %+v, want one alert-1 row", alerts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Mock expectations were not met: %v", err)
	}
}
