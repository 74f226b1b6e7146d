package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/bloodbank/internal/adapter/notify"
	"github.com/rl1809/bloodbank/internal/adapter/storage"
	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/core/service"
	"github.com/rl1809/bloodbank/internal/database"
	"github.com/rl1809/bloodbank/internal/migrations"
)

const (
	bloodType     = domain.BloodTypeONeg
	initialUnits  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	backend := flag.String("store", "memory", "memory or sqlite")
	flag.Parse()

	ctx := context.Background()
	logger := zap.NewNop()

	var st storage.Store
	switch *backend {
	case "memory":
		st = storage.NewMemoryStore()
	case "sqlite":
		db, err := database.Connect(ctx, database.Options{Driver: "sqlite", DSN: ":memory:"})
		if err != nil {
			log.Fatalf("failed to open sqlite: %v", err)
		}
		defer db.Close()
		if err := migrations.Run(ctx, db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		st = storage.NewSQLAdapter(db)
	default:
		log.Fatalf("unknown store %q", *backend)
	}

	admin, err := st.CreateUser(ctx, domain.User{Username: "admin", PasswordHash: "-", IsStaff: true})
	if err != nil {
		log.Fatalf("failed to create admin: %v", err)
	}
	requester, err := st.CreateUser(ctx, domain.User{Username: "requester", PasswordHash: "-"})
	if err != nil {
		log.Fatalf("failed to create requester: %v", err)
	}

	if _, err := st.UpsertInventory(ctx, bloodType, initialUnits); err != nil {
		log.Fatalf("failed to stock inventory: %v", err)
	}

	ids := make([]int64, totalRequests)
	for i := range ids {
		req, err := st.CreateRequest(ctx, requester.ID, bloodType, 1)
		if err != nil {
			log.Fatalf("failed to create request: %v", err)
		}
		ids[i] = req.ID
	}

	dispatcher := service.NewAlertDispatcher(notify.NewLogSink(logger), queueSize, time.Second, logger)
	dispatcher.Start(1)
	defer dispatcher.Close()

	monitor := service.NewLowStockMonitor(st, dispatcher, service.DefaultCriticalThreshold, nil, logger)
	fulfillment := service.NewFulfillmentService(st, st, monitor, logger)

	// Counters
	var successCount, shortCount, otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	// Every request is fulfilled twice to exercise the double-fulfillment guard.
	for _, id := range append(ids, ids...) {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()

			_, err := fulfillment.Fulfill(ctx, admin.Caller(), id)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrInsufficientInventory):
				shortCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", *backend)
	fmt.Printf("Initial Units:    %d\n", initialUnits)
	fmt.Printf("Fulfill Calls:    %d\n", 2*totalRequests)
	fmt.Printf("Fulfilled:        %d\n", success)
	fmt.Printf("Insufficient:     %d\n", shortCount.Load())
	fmt.Printf("Already handled:  %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialUnits {
		fmt.Printf("PASS: Exactly %d requests fulfilled\n", initialUnits)
	} else {
		fmt.Printf("FAIL: Expected %d fulfilled, got %d\n", initialUnits, success)
	}

	rec, err := st.GetInventory(ctx, bloodType)
	if err != nil {
		log.Fatalf("failed to read inventory: %v", err)
	}
	fmt.Printf("Final Units: %d\n", rec.UnitsAvailable)

	if rec.UnitsAvailable == 0 {
		fmt.Println("PASS: Inventory depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected 0 units, got %d\n", rec.UnitsAvailable)
	}
}
