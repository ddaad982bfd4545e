package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"riskengine/src/model"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRiskEventRepositoryCreate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewRiskEventRepositoryWithDB(mockDB)

	evt := model.NewRiskEvent(model.EventDailyLossBreach, model.SeverityCritical, -2.01, time.Now()).
		WithCommand(model.CommandCloseAll)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "risk_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	record := model.NewRiskEventRecord(evt)
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("unexpected error creating risk event: %v", err)
	}
	if record.ID != 7 {
		t.Fatalf("expected id 7, got %d", record.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRiskEventRepositoryByKind(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewRiskEventRepositoryWithDB(mockDB)

	since := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_id", "version", "kind", "severity", "value", "timestamp"}).
		AddRow(1, "a", 1, "DailyLossBreach", "Critical", -2.01, since.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "risk_events" WHERE kind = $1 AND timestamp >= $2 ORDER BY timestamp ASC, id ASC`)).
		WithArgs("DailyLossBreach", since).
		WillReturnRows(rows)

	results, err := repo.ByKind(context.Background(), model.EventDailyLossBreach, since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].EventID != "a" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].ToRiskEvent().Kind != model.EventDailyLossBreach {
		t.Fatalf("kind not mapped back: %+v", results[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRiskEventRepositoryRecentSQLite(t *testing.T) {
	db := newSQLiteDB(t, &model.RiskEventRecord{})
	repo := NewRiskEventRepositoryWithDB(db)
	ctx := context.Background()

	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	kinds := []model.EventKind{
		model.EventDailyLossWarning,
		model.EventDailyLossBreach,
		model.EventCircuitBreakerActivated,
	}
	for i, k := range kinds {
		evt := model.NewRiskEvent(k, model.SeverityHigh, float64(i), base.Add(time.Duration(i)*time.Second))
		if err := repo.Create(ctx, model.NewRiskEventRecord(evt)); err != nil {
			t.Fatalf("create %s: %v", k, err)
		}
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Kind != string(model.EventCircuitBreakerActivated) || recent[1].Kind != string(model.EventDailyLossBreach) {
		t.Fatalf("records not newest first: %s, %s", recent[0].Kind, recent[1].Kind)
	}

	breaches, err := repo.ByKind(ctx, model.EventDailyLossBreach, base)
	if err != nil {
		t.Fatalf("by kind: %v", err)
	}
	if len(breaches) != 1 || breaches[0].Value != 1 {
		t.Fatalf("unexpected breaches: %+v", breaches)
	}
}
