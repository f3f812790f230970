package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniehj/arctanwines-crm-sub000/internal/adapter/rates"
	"github.com/daniehj/arctanwines-crm-sub000/internal/adapter/storage"
	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	totalUnits    = 20
	totalRequests = 50
	eventBuffer   = 1000
)

// Drives concurrent single-unit reservations against one lot to demonstrate
// that exactly totalUnits of totalRequests callers win, with Redis carrying
// the advisory gauge and the in-memory store standing in for MySQL.
func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	store := storage.NewMemoryStore()
	cache := storage.NewRedisAdapter(rdb)
	coordinator := service.NewReservationCoordinator(eventBuffer, logger)
	engine := service.NewLotEngine(store, cache, coordinator, logger)
	engine.StartWorkers(4)

	// Build one sellable lot
	importDate := time.Now()
	lot, err := engine.CreateLot(ctx, service.CreateLotParams{
		BatchNumber:   "STRESS-001",
		CatalogItemID: uuid.New(),
		SupplierID:    uuid.New(),
		TotalUnits:    totalUnits,
		HomeCurrency:  domain.NOK,
		ImportDate:    importDate,
	})
	if err != nil {
		log.Fatalf("create lot: %v", err)
	}

	rateProvider := rates.NewStaticProvider()
	rateProvider.SetRate(domain.EUR, domain.NOK, importDate, decimal.RequireFromString("11.5"))

	if _, err := engine.AddCostEntry(ctx, lot.ID, service.CostEntryParams{
		Category:   domain.CostAcquisition,
		Amount:     domain.NewMoney(24000, domain.EUR),
		IncurredOn: importDate,
		Allocation: domain.AllocatePerUnit,
	}); err != nil {
		log.Fatalf("add cost entry: %v", err)
	}
	if _, err := engine.FinalizeLot(ctx, lot.ID, rateProvider); err != nil {
		log.Fatalf("finalize lot: %v", err)
	}
	if _, err := engine.MakeAvailable(ctx, lot.ID, domain.NewMoney(24900, domain.NOK), 2, "main-warehouse"); err != nil {
		log.Fatalf("make available: %v", err)
	}

	// Spawn concurrent reservations
	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := engine.Reserve(ctx, lot.ID, 1, 0)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, service.ErrInsufficientStock) {
				failCount.Add(1)
			} else {
				log.Printf("unexpected reserve error: %v", err)
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Lot Units:        %d\n", totalUnits)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(totalUnits) && fail == int32(totalRequests-totalUnits) {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d rejected\n", totalUnits, totalRequests-totalUnits)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			totalUnits, totalRequests-totalUnits, success, fail)
	}

	inv, err := engine.Peek(lot.ID)
	if err != nil {
		log.Fatalf("peek: %v", err)
	}
	fmt.Printf("Counters: on_hand=%d reserved=%d sold=%d available=%d\n",
		inv.UnitsOnHand, inv.UnitsReserved, inv.UnitsSold, inv.AvailableForSale())

	if inv.AvailableForSale() == 0 && inv.UnitsReserved == totalUnits {
		fmt.Println("PASS: All units reserved, none oversold")
	} else {
		fmt.Println("FAIL: Counter state inconsistent")
	}

	engine.Stop()

	finalGauge, _ := rdb.Get(ctx, "stock:"+lot.ID.String()).Int()
	fmt.Printf("Final Redis Gauge: %d\n", finalGauge)
}
