/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package outofstock

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/models"
)

func newOutOfStockTestService(t *testing.T) *Service {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&models.CustomerOutOfStock{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return NewService(database, nil, events.NewBus(), zerolog.Nop())
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newOutOfStockTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		record models.CustomerOutOfStock
		wantOK bool
	}{
		{
			name:   "valid",
			record: models.CustomerOutOfStock{CustomerName: "王记针织", ProductName: "毛衣A", Quantity: 20},
			wantOK: true,
		},
		{
			name:   "missing customer",
			record: models.CustomerOutOfStock{ProductName: "毛衣A", Quantity: 20},
		},
		{
			name:   "missing product",
			record: models.CustomerOutOfStock{CustomerName: "王记针织", Quantity: 20},
		},
		{
			name:   "zero quantity",
			record: models.CustomerOutOfStock{CustomerName: "王记针织", ProductName: "毛衣A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := tt.record
			err := svc.Create(ctx, &record)
			if tt.wantOK && err != nil {
				t.Fatalf("create: %v", err)
			}
			if !tt.wantOK && err == nil {
				t.Fatal("expected validation error")
			}
			if tt.wantOK {
				if record.ID == "" {
					t.Fatal("ID not assigned")
				}
				if record.Status != models.OutOfStockPending {
					t.Fatalf("status = %s, want pending", record.Status)
				}
			}
		})
	}
}

func TestListPaginatesAndFilters(t *testing.T) {
	svc := newOutOfStockTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := models.CustomerOutOfStock{CustomerName: "客户", ProductName: "毛衣", Quantity: i + 1}
		if err := svc.Create(ctx, &record); err != nil {
			t.Fatalf("create record %d: %v", i, err)
		}
		if i < 2 {
			if err := svc.UpdateStatus(ctx, record.ID, models.OutOfStockCompleted, "keeper"); err != nil {
				t.Fatalf("complete record %d: %v", i, err)
			}
		}
	}

	page, err := svc.List(ctx, models.OutOfStockPending, 1, 2)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("pending total = %d, want 3", page.Total)
	}
	if len(page.Records) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Records))
	}

	second, err := svc.List(ctx, models.OutOfStockPending, 2, 2)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Records) != 1 {
		t.Fatalf("second page = %d records, want 1", len(second.Records))
	}

	all, err := svc.List(ctx, "", 1, 50)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all.Total != 5 {
		t.Fatalf("total = %d, want 5", all.Total)
	}
}

func TestUpdateStatusRejectsUnknownTransitions(t *testing.T) {
	svc := newOutOfStockTestService(t)
	ctx := context.Background()

	record := models.CustomerOutOfStock{CustomerName: "客户", ProductName: "毛衣", Quantity: 3}
	if err := svc.Create(ctx, &record); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.UpdateStatus(ctx, record.ID, models.OutOfStockPending, "keeper"); err == nil {
		t.Fatal("transition back to pending must be rejected")
	}

	if err := svc.UpdateStatus(ctx, "no-such-id", models.OutOfStockCompleted, "keeper"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("unknown record error = %v, want ErrRecordNotFound", err)
	}
}

func TestCompletePublishesEvent(t *testing.T) {
	svc := newOutOfStockTestService(t)
	ctx := context.Background()

	sub := svc.bus.Subscribe(events.EventOutOfStockCompleted)
	defer svc.bus.Unsubscribe(events.EventOutOfStockCompleted, sub)

	record := models.CustomerOutOfStock{CustomerName: "客户", ProductName: "毛衣", Quantity: 3}
	if err := svc.Create(ctx, &record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateStatus(ctx, record.ID, models.OutOfStockCompleted, "keeper"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	select {
	case payload := <-sub:
		if payload["entity_id"] != record.ID {
			t.Fatalf("payload = %+v", payload)
		}
	default:
		t.Fatal("no completion event published")
	}
}
